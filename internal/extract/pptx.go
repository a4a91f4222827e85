package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/deckardhq/deckard/internal/models"
)

const (
	pptxSlidePrefix = "ppt/slides/slide"
	relTypeImage    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	relTypeChart    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"
	relTypeNotes    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	relTypePackage  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/package"
)

// slideNumber matches the N in ppt/slides/slideN.xml.
var slideNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX parses a .pptx (Office Open XML zip). Each slide yields drafts
// in shape-tree order: text frames, tables, and picture or chart regions.
// A slide whose XML fails to parse becomes a draft with Err set; the rest of
// the deck still extracts.
func extractPPTX(content []byte, name string) (*Deck, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, corrupt(fmt.Errorf("not a zip container: %v", err))
	}

	pkg := newPptxPackage(zr)
	slidePaths := pkg.slidePaths()
	if len(slidePaths) == 0 {
		return nil, corrupt(fmt.Errorf("no slides in package"))
	}

	deck := &Deck{
		Title:  pkg.title(name),
		Format: "pptx",
		Slides: make([]SlideDraft, len(slidePaths)),
	}
	for i, slidePath := range slidePaths {
		draft := SlideDraft{Index: i}
		units, notes, err := pkg.parseSlide(slidePath)
		if err != nil {
			draft.Err = fmt.Errorf("slide %d: %w", i, err)
		} else {
			draft.Units = units
			draft.Notes = notes
		}
		deck.Slides[i] = draft
	}
	return deck, nil
}

// pptxPackage wraps the zip reader with file lookup by name.
type pptxPackage struct {
	files map[string]*zip.File
}

func newPptxPackage(zr *zip.Reader) *pptxPackage {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return &pptxPackage{files: files}
}

func (p *pptxPackage) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("missing package part %q", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// slidePaths returns slide part names ordered by slide number.
func (p *pptxPackage) slidePaths() []string {
	type numbered struct {
		path string
		n    int
	}
	var slides []numbered
	for name := range p.files {
		m := slideNumber.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, numbered{path: name, n: n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	out := make([]string, len(slides))
	for i, s := range slides {
		out[i] = s.path
	}
	return out
}

// title reads dc:title from docProps/core.xml, falling back to the file name.
func (p *pptxPackage) title(fallback string) string {
	data, err := p.read("docProps/core.xml")
	if err != nil {
		return fallback
	}
	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(data, &core); err != nil || strings.TrimSpace(core.Title) == "" {
		return fallback
	}
	return strings.TrimSpace(core.Title)
}

// relationship is one entry in a part's .rels file.
type relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// rels loads the relationships of the given part. A missing .rels part is not
// an error; it just means no images, charts, or notes.
func (p *pptxPackage) rels(partPath string) (map[string]relationship, error) {
	relPath := path.Join(path.Dir(partPath), "_rels", path.Base(partPath)+".rels")
	data, err := p.read(relPath)
	if err != nil {
		return map[string]relationship{}, nil
	}
	var doc struct {
		Rels []relationship `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %q: %w", relPath, err)
	}
	out := make(map[string]relationship, len(doc.Rels))
	for _, r := range doc.Rels {
		out[r.ID] = r
	}
	return out, nil
}

// resolveTarget turns a relationship target relative to a part into a package path.
func resolveTarget(partPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(partPath), target))
}

// parseSlide walks one slide's shape tree in document order.
func (p *pptxPackage) parseSlide(slidePath string) ([]DraftUnit, string, error) {
	data, err := p.read(slidePath)
	if err != nil {
		return nil, "", err
	}
	rels, err := p.rels(slidePath)
	if err != nil {
		return nil, "", err
	}

	units, err := p.walkShapeTree(data, slidePath, rels)
	if err != nil {
		return nil, "", err
	}

	notes := ""
	for _, r := range rels {
		if r.Type == relTypeNotes {
			notes = p.notesText(resolveTarget(slidePath, r.Target))
			break
		}
	}
	return units, notes, nil
}

// walkShapeTree decodes sp, pic, and graphicFrame elements in the order they
// appear so unit ordinals reflect the author's layout order.
func (p *pptxPackage) walkShapeTree(data []byte, slidePath string, rels map[string]relationship) ([]DraftUnit, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var units []DraftUnit
	inTree := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse slide xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "spTree" {
				inTree = true
				continue
			}
			if !inTree {
				continue
			}
			switch t.Name.Local {
			case "sp":
				var sp shapeXML
				if err := dec.DecodeElement(&sp, &t); err != nil {
					return nil, fmt.Errorf("parse shape: %w", err)
				}
				if u, ok := sp.toDraft(); ok {
					units = append(units, u)
				}
			case "pic":
				var pic pictureXML
				if err := dec.DecodeElement(&pic, &t); err != nil {
					return nil, fmt.Errorf("parse picture: %w", err)
				}
				if u, ok := p.pictureDraft(pic, slidePath, rels); ok {
					units = append(units, u)
				}
			case "graphicFrame":
				var gf graphicFrameXML
				if err := dec.DecodeElement(&gf, &t); err != nil {
					return nil, fmt.Errorf("parse graphic frame: %w", err)
				}
				if u, ok := p.graphicFrameDraft(gf, slidePath, rels); ok {
					units = append(units, u)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "spTree" {
				inTree = false
			}
		}
	}
	return units, nil
}

// notesText pulls the plain text of a notes slide. Notes enrich the slide's
// text context; a broken notes part is ignored.
func (p *pptxPackage) notesText(notesPath string) string {
	data, err := p.read(notesPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(textRuns(data), " "))
}

// atRun matches <a:t>...</a:t> runs regardless of attributes.
var atRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

func textRuns(data []byte) []string {
	matches := atRun.FindAllSubmatch(data, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		s := strings.TrimSpace(xmlUnescape(string(m[1])))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var xmlEscaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func xmlUnescape(s string) string {
	return xmlEscaper.Replace(s)
}

// offsetXML and extentXML carry the EMU bounding box of a shape.
type offsetXML struct {
	X int64 `xml:"x,attr"`
	Y int64 `xml:"y,attr"`
}

type extentXML struct {
	Cx int64 `xml:"cx,attr"`
	Cy int64 `xml:"cy,attr"`
}

type xfrmXML struct {
	Off offsetXML `xml:"off"`
	Ext extentXML `xml:"ext"`
}

func (x *xfrmXML) region() *models.Region {
	if x == nil || (x.Ext.Cx == 0 && x.Ext.Cy == 0) {
		return nil
	}
	return &models.Region{X: x.Off.X, Y: x.Off.Y, W: x.Ext.Cx, H: x.Ext.Cy}
}

// shapeXML is a <p:sp> text frame.
type shapeXML struct {
	SpPr struct {
		Xfrm *xfrmXML `xml:"xfrm"`
	} `xml:"spPr"`
	TxBody struct {
		Paragraphs []struct {
			Runs []struct {
				Text string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"txBody"`
}

func (s *shapeXML) toDraft() (DraftUnit, bool) {
	var lines []string
	for _, para := range s.TxBody.Paragraphs {
		var b strings.Builder
		for _, run := range para.Runs {
			b.WriteString(run.Text)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return DraftUnit{}, false
	}
	return DraftUnit{
		Kind:   models.KindText,
		Text:   strings.Join(lines, "\n"),
		Region: s.SpPr.Xfrm.region(),
	}, true
}

// pictureXML is a <p:pic> image shape.
type pictureXML struct {
	BlipFill struct {
		Blip struct {
			Embed string `xml:"embed,attr"`
		} `xml:"blip"`
	} `xml:"blipFill"`
	SpPr struct {
		Xfrm *xfrmXML `xml:"xfrm"`
	} `xml:"spPr"`
}

func (p *pptxPackage) pictureDraft(pic pictureXML, slidePath string, rels map[string]relationship) (DraftUnit, bool) {
	rel, ok := rels[pic.BlipFill.Blip.Embed]
	if !ok || rel.Type != relTypeImage {
		return DraftUnit{}, false
	}
	mediaPath := resolveTarget(slidePath, rel.Target)
	data, err := p.read(mediaPath)
	if err != nil {
		return DraftUnit{}, false
	}
	return DraftUnit{
		Kind:   models.KindChart,
		Image:  &ImageRef{Data: data, MediaType: mediaTypeFor(mediaPath)},
		Region: pic.SpPr.Xfrm.region(),
	}, true
}

func mediaTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// graphicFrameXML is a <p:graphicFrame>: tables and native charts live here.
type graphicFrameXML struct {
	Xfrm    *xfrmXML `xml:"xfrm"`
	Graphic struct {
		GraphicData struct {
			Table *tableXML `xml:"tbl"`
			Chart *struct {
				ID string `xml:"id,attr"`
			} `xml:"chart"`
		} `xml:"graphicData"`
	} `xml:"graphic"`
}

type tableXML struct {
	TblPr struct {
		FirstRow string `xml:"firstRow,attr"`
	} `xml:"tblPr"`
	Rows []struct {
		Cells []struct {
			TxBody struct {
				Paragraphs []struct {
					Runs []struct {
						Text string `xml:"t"`
					} `xml:"r"`
				} `xml:"p"`
			} `xml:"txBody"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (p *pptxPackage) graphicFrameDraft(gf graphicFrameXML, slidePath string, rels map[string]relationship) (DraftUnit, bool) {
	region := gf.Xfrm.region()

	if tbl := gf.Graphic.GraphicData.Table; tbl != nil {
		payload := tableFromXML(tbl)
		if payload == nil {
			return DraftUnit{}, false
		}
		return DraftUnit{Kind: models.KindTable, Table: payload, Region: region}, true
	}

	if chart := gf.Graphic.GraphicData.Chart; chart != nil {
		rel, ok := rels[chart.ID]
		if !ok || rel.Type != relTypeChart {
			return DraftUnit{}, false
		}
		chartPath := resolveTarget(slidePath, rel.Target)
		title, series := p.chartData(chartPath)
		return DraftUnit{
			Kind:   models.KindChart,
			Title:  title,
			Series: series,
			Region: region,
		}, true
	}

	return DraftUnit{}, false
}

// tableFromXML flattens a table's cells. Header is set only when the source
// marks the first row as a header row.
func tableFromXML(tbl *tableXML) *models.TablePayload {
	grid := make([][]string, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			var parts []string
			for _, para := range cell.TxBody.Paragraphs {
				var b strings.Builder
				for _, run := range para.Runs {
					b.WriteString(run.Text)
				}
				if s := strings.TrimSpace(b.String()); s != "" {
					parts = append(parts, s)
				}
			}
			cells[i] = strings.Join(parts, " ")
		}
		grid = append(grid, cells)
	}
	if len(grid) == 0 {
		return nil
	}
	payload := &models.TablePayload{}
	if tbl.TblPr.FirstRow == "1" && len(grid) > 0 {
		payload.Header = grid[0]
		payload.Rows = grid[1:]
	} else {
		payload.Rows = grid
	}
	return payload
}
