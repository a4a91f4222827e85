package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/deckardhq/deckard/internal/models"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const slideWithShapes = `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <p:cSld><p:spTree>
    <p:sp>
      <p:spPr><a:xfrm><a:off x="100" y="200"/><a:ext cx="5000" cy="1000"/></a:xfrm></p:spPr>
      <p:txBody>
        <a:p><a:r><a:t>Quarterly </a:t></a:r><a:r><a:t>Results</a:t></a:r></a:p>
        <a:p><a:r><a:t>Revenue grew 12%</a:t></a:r></a:p>
      </p:txBody>
    </p:sp>
    <p:graphicFrame>
      <p:xfrm><a:off x="0" y="3000"/><a:ext cx="4000" cy="2000"/></p:xfrm>
      <a:graphic><a:graphicData>
        <a:tbl>
          <a:tblPr firstRow="1"/>
          <a:tr><a:tc><a:txBody><a:p><a:r><a:t>Region</a:t></a:r></a:p></a:txBody></a:tc>
                <a:tc><a:txBody><a:p><a:r><a:t>Revenue</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
          <a:tr><a:tc><a:txBody><a:p><a:r><a:t>EMEA</a:t></a:r></a:p></a:txBody></a:tc>
                <a:tc><a:txBody><a:p><a:r><a:t>40</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
        </a:tbl>
      </a:graphicData></a:graphic>
    </p:graphicFrame>
    <p:pic>
      <p:blipFill><a:blip r:embed="rId2"/></p:blipFill>
      <p:spPr><a:xfrm><a:off x="6000" y="0"/><a:ext cx="3000" cy="3000"/></a:xfrm></p:spPr>
    </p:pic>
  </p:spTree></p:cSld>
</p:sld>`

const slideRels = `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
  <Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide" Target="../notesSlides/notesSlide1.xml"/>
</Relationships>`

const notesSlide = `<?xml version="1.0"?>
<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
         xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>Mention the EMEA turnaround here.</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:notes>`

const coreProps = `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
                   xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>FY25 Review</dc:title>
</cp:coreProperties>`

func TestExtractPPTX(t *testing.T) {
	content := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml":            slideWithShapes,
		"ppt/slides/_rels/slide1.xml.rels": slideRels,
		"ppt/notesSlides/notesSlide1.xml":  notesSlide,
		"ppt/media/image1.png":             "\x89PNG fake image bytes",
		"docProps/core.xml":                coreProps,
	})

	deck, err := NewExtractor().ExtractBytes(content, ".pptx", "fallback")
	if err != nil {
		t.Fatalf("ExtractBytes failed: %v", err)
	}
	if deck.Title != "FY25 Review" {
		t.Errorf("title = %q, want FY25 Review", deck.Title)
	}
	if deck.Format != "pptx" {
		t.Errorf("format = %q, want pptx", deck.Format)
	}
	if len(deck.Slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(deck.Slides))
	}

	slide := deck.Slides[0]
	if slide.Err != nil {
		t.Fatalf("slide error: %v", slide.Err)
	}
	if len(slide.Units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(slide.Units))
	}

	// Units come back in shape-tree order: text, table, picture.
	text := slide.Units[0]
	if text.Kind != models.KindText {
		t.Fatalf("unit 0 kind = %s, want text", text.Kind)
	}
	if text.Text != "Quarterly Results\nRevenue grew 12%" {
		t.Errorf("text = %q", text.Text)
	}
	if text.Region == nil || text.Region.X != 100 || text.Region.W != 5000 {
		t.Errorf("text region = %+v", text.Region)
	}

	tbl := slide.Units[1]
	if tbl.Kind != models.KindTable {
		t.Fatalf("unit 1 kind = %s, want table", tbl.Kind)
	}
	if len(tbl.Table.Header) != 2 || tbl.Table.Header[0] != "Region" {
		t.Errorf("table header = %v", tbl.Table.Header)
	}
	if len(tbl.Table.Rows) != 1 || tbl.Table.Rows[0][1] != "40" {
		t.Errorf("table rows = %v", tbl.Table.Rows)
	}

	pic := slide.Units[2]
	if pic.Kind != models.KindChart {
		t.Fatalf("unit 2 kind = %s, want chart", pic.Kind)
	}
	if pic.Image == nil || len(pic.Image.Data) == 0 {
		t.Fatal("picture unit missing image bytes")
	}
	if pic.Image.MediaType != "image/png" {
		t.Errorf("media type = %q", pic.Image.MediaType)
	}

	if slide.Notes != "Mention the EMEA turnaround here." {
		t.Errorf("notes = %q", slide.Notes)
	}
}

func TestExtractPPTXTableWithoutHeaderFlag(t *testing.T) {
	slide := `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:graphicFrame><a:graphic><a:graphicData>
      <a:tbl>
        <a:tblPr/>
        <a:tr><a:tc><a:txBody><a:p><a:r><a:t>a</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
        <a:tr><a:tc><a:txBody><a:p><a:r><a:t>b</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
      </a:tbl>
    </a:graphicData></a:graphic></p:graphicFrame>
  </p:spTree></p:cSld>
</p:sld>`
	content := buildZip(t, map[string]string{"ppt/slides/slide1.xml": slide})

	deck, err := NewExtractor().ExtractBytes(content, ".pptx", "deck")
	if err != nil {
		t.Fatalf("ExtractBytes failed: %v", err)
	}
	tbl := deck.Slides[0].Units[0].Table
	if tbl.Header != nil {
		t.Errorf("expected nil header without firstRow flag, got %v", tbl.Header)
	}
	if len(tbl.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(tbl.Rows))
	}
}

func TestExtractPPTXSlideOrderAndGapIsolation(t *testing.T) {
	good := `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody><a:p><a:r><a:t>slide ten</a:t></a:r></a:p></p:txBody></p:sp>
  </p:spTree></p:cSld>
</p:sld>`
	content := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": good,
		"ppt/slides/slide2.xml":  "<p:sld><broken",
		"ppt/slides/slide1.xml":  good,
	})

	deck, err := NewExtractor().ExtractBytes(content, ".pptx", "deck")
	if err != nil {
		t.Fatalf("ExtractBytes failed: %v", err)
	}
	if len(deck.Slides) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(deck.Slides))
	}
	// Numeric order, not lexicographic: slide10 comes last.
	if deck.Slides[0].Err != nil || deck.Slides[2].Err != nil {
		t.Error("good slides should not carry errors")
	}
	if deck.Slides[1].Err == nil {
		t.Error("broken slide should carry an error")
	}
	if deck.Slides[2].Units[0].Text != "slide ten" {
		t.Errorf("slide order wrong: %+v", deck.Slides[2].Units)
	}
}

func TestExtractChartWithCachedSeries(t *testing.T) {
	slide := `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart"
       xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <p:cSld><p:spTree>
    <p:graphicFrame>
      <p:xfrm><a:off x="0" y="0"/><a:ext cx="100" cy="100"/></p:xfrm>
      <a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/chart">
        <c:chart r:id="rId1"/>
      </a:graphicData></a:graphic>
    </p:graphicFrame>
  </p:spTree></p:cSld>
</p:sld>`
	chart := `<?xml version="1.0"?>
<c:chartSpace xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart"
              xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <c:chart>
    <c:title><c:tx><c:rich><a:p><a:r><a:t>Revenue by Quarter</a:t></a:r></a:p></c:rich></c:tx></c:title>
    <c:plotArea><c:barChart><c:ser>
      <c:cat><c:strRef><c:strCache>
        <c:pt idx="0"><c:v>Q1</c:v></c:pt>
        <c:pt idx="1"><c:v>Q2</c:v></c:pt>
      </c:strCache></c:strRef></c:cat>
      <c:val><c:numRef><c:numCache>
        <c:pt idx="0"><c:v>10.5</c:v></c:pt>
        <c:pt idx="1"><c:v>12</c:v></c:pt>
      </c:numCache></c:numRef></c:val>
    </c:ser></c:barChart></c:plotArea>
  </c:chart>
</c:chartSpace>`
	slideRels := `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart" Target="../charts/chart1.xml"/>
</Relationships>`
	content := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml":            slide,
		"ppt/slides/_rels/slide1.xml.rels": slideRels,
		"ppt/charts/chart1.xml":            chart,
	})

	deck, err := NewExtractor().ExtractBytes(content, ".pptx", "deck")
	if err != nil {
		t.Fatalf("ExtractBytes failed: %v", err)
	}
	units := deck.Slides[0].Units
	if len(units) != 1 || units[0].Kind != models.KindChart {
		t.Fatalf("expected one chart unit, got %+v", units)
	}
	if units[0].Title != "Revenue by Quarter" {
		t.Errorf("chart title = %q", units[0].Title)
	}
	if len(units[0].Series) != 2 {
		t.Fatalf("expected 2 series points, got %d", len(units[0].Series))
	}
	if units[0].Series[0].Label != "Q1" || units[0].Series[0].Value != 10.5 {
		t.Errorf("series[0] = %+v", units[0].Series[0])
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("hello"), ".docx", "doc")
	if !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractCorruptPPTX(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("not a zip at all"), ".pptx", "deck")
	if !errors.Is(err, models.ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument, got %v", err)
	}
}

func TestExtractEmptyPPTX(t *testing.T) {
	content := buildZip(t, map[string]string{"other.txt": "nothing"})
	_, err := NewExtractor().ExtractBytes(content, ".pptx", "deck")
	if !errors.Is(err, models.ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument for zip without slides, got %v", err)
	}
}

func TestExtractCorruptPDF(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("%PDF-garbage"), ".pdf", "deck")
	if !errors.Is(err, models.ErrCorruptDocument) {
		t.Errorf("expected ErrCorruptDocument, got %v", err)
	}
}
