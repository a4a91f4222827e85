package embedding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deckardhq/deckard/internal/models"
	"github.com/deckardhq/deckard/pkg/utils"
)

// Canonical projects a content unit's payload to the text the embedder sees.
// It is a pure function of the payload: the same payload always yields the
// same text, which in turn yields the same vector. Queries are embedded with
// the same function (CanonicalQuery), keeping corpus and query in one space.
func Canonical(unit *models.ContentUnit) string {
	switch unit.Kind {
	case models.KindText:
		return utils.CollapseWhitespace(unit.Text)
	case models.KindTable:
		return canonicalTable(unit.Table)
	case models.KindChart:
		return canonicalChart(unit.Chart)
	default:
		return ""
	}
}

// CanonicalQuery projects a question plus opaque prior-turn context to
// embedding input. The context is appended verbatim, never parsed.
func CanonicalQuery(question, context string) string {
	q := utils.CollapseWhitespace(question)
	if context == "" {
		return q
	}
	return q + "\n" + utils.CollapseWhitespace(context)
}

func canonicalTable(t *models.TablePayload) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Table:")
	if len(t.Header) > 0 {
		b.WriteString(" ")
		b.WriteString(joinCells(t.Header))
	}
	for _, row := range t.Rows {
		b.WriteString("\n")
		b.WriteString(joinCells(row))
	}
	return b.String()
}

func joinCells(cells []string) string {
	trimmed := make([]string, len(cells))
	for i, c := range cells {
		trimmed[i] = utils.CollapseWhitespace(c)
	}
	return strings.Join(trimmed, " | ")
}

func canonicalChart(c *models.ChartPayload) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(utils.CollapseWhitespace(c.Description))
	if len(c.Series) > 0 {
		b.WriteString("\nSeries:")
		for _, p := range c.Series {
			b.WriteString(fmt.Sprintf(" %s=%s;", utils.CollapseWhitespace(p.Label), formatValue(p.Value)))
		}
	}
	return b.String()
}

// formatValue renders numbers without trailing zeros so the projection is
// stable across float formatting quirks.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
