package extract

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/deckardhq/deckard/internal/models"
)

// chartData recovers a native chart's title and series values. The embedded
// workbook is the source of truth when present; otherwise the cached category
// and value points in the chart XML are used. Failures yield empty results,
// never an error: series data is a bonus on top of the visual description.
func (p *pptxPackage) chartData(chartPath string) (string, []models.SeriesPoint) {
	data, err := p.read(chartPath)
	if err != nil {
		return "", nil
	}
	var doc chartXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", nil
	}
	title := doc.titleText()

	if series := p.workbookSeries(chartPath); len(series) > 0 {
		return title, series
	}
	return title, doc.cachedSeries()
}

// workbookSeries reads the chart's embedded .xlsx via its rels.
func (p *pptxPackage) workbookSeries(chartPath string) []models.SeriesPoint {
	rels, err := p.rels(chartPath)
	if err != nil {
		return nil
	}
	for _, rel := range rels {
		if rel.Type != relTypePackage {
			continue
		}
		wbPath := resolveTarget(chartPath, rel.Target)
		if !strings.HasSuffix(strings.ToLower(wbPath), ".xlsx") {
			continue
		}
		data, err := p.read(wbPath)
		if err != nil {
			continue
		}
		if series := parseWorkbookSeries(data); len(series) > 0 {
			return series
		}
	}
	return nil
}

// parseWorkbookSeries reads the first sheet as (label, value) pairs. A header
// row (non-numeric second column) is skipped.
func parseWorkbookSeries(data []byte) []models.SeriesPoint {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil
	}

	var series []models.SeriesPoint
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		label := strings.TrimSpace(row[0])
		value, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil || label == "" {
			continue
		}
		series = append(series, models.SeriesPoint{Label: label, Value: value})
	}
	return series
}

// chartXML is the subset of DrawingML chart markup we consume: the title and
// the cached category/value points of each series.
type chartXML struct {
	Chart struct {
		Title struct {
			Runs []string `xml:"tx>rich>p>r>t"`
		} `xml:"title"`
		PlotArea struct {
			Series []seriesXML `xml:"barChart>ser"`
			Line   []seriesXML `xml:"lineChart>ser"`
			Pie    []seriesXML `xml:"pieChart>ser"`
		} `xml:"plotArea"`
	} `xml:"chart"`
}

type seriesXML struct {
	Cat struct {
		StrPts []ptXML `xml:"strRef>strCache>pt"`
		NumPts []ptXML `xml:"numRef>numCache>pt"`
	} `xml:"cat"`
	Val struct {
		Pts []ptXML `xml:"numRef>numCache>pt"`
	} `xml:"val"`
}

type ptXML struct {
	Idx int    `xml:"idx,attr"`
	V   string `xml:"v"`
}

func (c *chartXML) titleText() string {
	return strings.TrimSpace(strings.Join(c.Chart.Title.Runs, " "))
}

func (c *chartXML) cachedSeries() []models.SeriesPoint {
	all := append(append(c.Chart.PlotArea.Series, c.Chart.PlotArea.Line...), c.Chart.PlotArea.Pie...)
	var out []models.SeriesPoint
	for _, s := range all {
		labels := make(map[int]string)
		for _, pt := range s.Cat.StrPts {
			labels[pt.Idx] = pt.V
		}
		for _, pt := range s.Cat.NumPts {
			labels[pt.Idx] = pt.V
		}
		for _, pt := range s.Val.Pts {
			v, err := strconv.ParseFloat(strings.TrimSpace(pt.V), 64)
			if err != nil {
				continue
			}
			label := strings.TrimSpace(labels[pt.Idx])
			if label == "" {
				label = strconv.Itoa(pt.Idx)
			}
			out = append(out, models.SeriesPoint{Label: label, Value: v})
		}
	}
	return out
}
