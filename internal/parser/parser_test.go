package parser

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"policy-rag/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildBlocksFindsAlignedTable(t *testing.T) {
	p := New(nil)
	page := textPage(1, "GENERAL CONDITIONS\n"+
		"The insured must pay premium on time.\n"+
		"\n"+
		"Plan      Premium    Sum Insured\n"+
		"Silver    5,000      3,00,000\n"+
		"Gold      8,000      5,00,000\n"+
		"\n"+
		"Claims are settled within 30 days.")

	blocks := p.BuildBlocks(page)
	require.Len(t, blocks, 3)

	assert.Equal(t, models.KindText, blocks[0].Kind)
	assert.Equal(t, "GENERAL CONDITIONS\nThe insured must pay premium on time.", blocks[0].Text)

	table := blocks[1]
	assert.Equal(t, models.KindTable, table.Kind)
	assert.Equal(t, models.MethodStream, table.Method)
	assert.InDelta(t, 0.85, table.Confidence, 1e-9)
	assert.Equal(t, [][]string{
		{"Plan", "Premium", "Sum Insured"},
		{"Silver", "5,000", "3,00,000"},
		{"Gold", "8,000", "5,00,000"},
	}, table.Rows)
	assert.Equal(t, "Plan | Premium | Sum Insured\nSilver | 5,000 | 3,00,000\nGold | 8,000 | 5,00,000", table.Text)

	assert.Equal(t, "Claims are settled within 30 days.", blocks[2].Text)
	for _, b := range blocks {
		assert.Equal(t, 1, b.Page)
	}
}

func TestBuildBlocksFallsBackToLayout(t *testing.T) {
	p := New(nil)
	page := textPage(2, "| Benefit | Limit |\n| Room rent | 1% of sum insured |\n| ICU | 2% |")

	blocks := p.BuildBlocks(page)
	require.Len(t, blocks, 1)
	assert.Equal(t, models.KindTable, blocks[0].Kind)
	assert.Equal(t, models.MethodLayout, blocks[0].Method)
	assert.InDelta(t, 0.7, blocks[0].Confidence, 1e-9)
	assert.Equal(t, [][]string{{"Benefit", "Limit"}, {"Room rent", "1% of sum insured"}, {"ICU", "2%"}}, blocks[0].Rows)
	assert.Equal(t, 2, blocks[0].Page)
}

func TestBuildBlocksKeepsRejectedRegionAsText(t *testing.T) {
	p := New(nil)
	page := textPage(1, "Table 1\nThis is free text describing benefits\nthat continues on another line")

	blocks := p.BuildBlocks(page)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Table 1", blocks[0].Text)
	assert.Equal(t, models.KindText, blocks[1].Kind)
	assert.Equal(t, models.MethodFallback, blocks[1].Method)
	assert.Equal(t, "This is free text describing benefits\nthat continues on another line", blocks[1].Text)
}

func TestBuildBlocksEmptyPage(t *testing.T) {
	assert.Empty(t, New(nil).BuildBlocks(Page{Number: 1}))
}

func TestTextLineIgnoresSentenceSpacing(t *testing.T) {
	l := textLine(0, "Covered.  The insurer pays.")
	require.Len(t, l.Spans, 1)
	assert.Equal(t, "Covered. The insurer pays.", l.Text())

	l = textLine(0, "Gold\t8,000")
	require.Len(t, l.Spans, 2)
	assert.Equal(t, 5.0, l.Spans[1].X0)

	l = textLine(0, "ICU charges:  2% of sum insured")
	require.Len(t, l.Spans, 2)
	assert.Equal(t, "2% of sum insured", l.Spans[1].Text)
}

func TestBuildBlocksFindsKeyValueSchedule(t *testing.T) {
	page := textPage(1, "Room rent:      1% of sum insured\n"+
		"ICU charges:    2% of sum insured\n"+
		"Ambulance fee:  Rs. 2,000")

	blocks := New(nil).BuildBlocks(page)
	require.Len(t, blocks, 1)
	assert.Equal(t, models.KindTable, blocks[0].Kind)
	assert.Equal(t, models.MethodStream, blocks[0].Method)
	assert.Equal(t, [][]string{
		{"Room rent:", "1% of sum insured"},
		{"ICU charges:", "2% of sum insured"},
		{"Ambulance fee:", "Rs. 2,000"},
	}, blocks[0].Rows)
}

func TestLatticeRows(t *testing.T) {
	region := Region{
		Unit: 5,
		Lines: []Line{
			{Y: 0, Spans: []Span{{X0: 5, X1: 20, Text: "Plan"}, {X0: 55, X1: 80, Text: "Premium"}}},
			{Y: 10, Spans: []Span{{X0: 5, X1: 20, Text: "Gold"}, {X0: 55, X1: 75, Text: "8000"}}},
		},
		Rules: []Rule{
			{X0: 0, X1: 0, Y0: -10, Y1: 30},
			{X0: 50, X1: 50, Y0: -10, Y1: 30},
			{X0: 100, X1: 100, Y0: -10, Y1: 30},
		},
	}
	rows, err := latticeRows(region)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Plan", "Premium"}, {"Gold", "8000"}}, rows)
}

func TestLatticeRowsMergesWrappedCells(t *testing.T) {
	region := Region{
		Unit: 5,
		Lines: []Line{
			{Y: 0, Spans: []Span{{X0: 5, X1: 40, Text: "Room rent"}, {X0: 55, X1: 65, Text: "1%"}}},
			{Y: 8, Spans: []Span{{X0: 5, X1: 40, Text: "(per day)"}}},
			{Y: 20, Spans: []Span{{X0: 5, X1: 20, Text: "ICU"}, {X0: 55, X1: 65, Text: "2%"}}},
		},
		Rules: []Rule{
			{X0: 0, X1: 0, Y0: -5, Y1: 28},
			{X0: 50, X1: 50, Y0: -5, Y1: 28},
			{X0: 100, X1: 100, Y0: -5, Y1: 28},
			{X0: 0, X1: 100, Y0: -5, Y1: -5},
			{X0: 0, X1: 100, Y0: 15, Y1: 15},
			{X0: 0, X1: 100, Y0: 28, Y1: 28},
		},
	}
	rows, err := latticeRows(region)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Room rent (per day)", "1%"}, {"ICU", "2%"}}, rows)
}

func TestLatticeRowsWithoutRules(t *testing.T) {
	_, err := latticeRows(Region{Lines: []Line{{Y: 0, Spans: []Span{{Text: "a"}, {X0: 10, Text: "b"}}}}})
	assert.ErrorIs(t, err, models.ErrTableStructureInvalid)
}

func TestTableValidator(t *testing.T) {
	v := TableValidator{MinRows: 2, MinFillRatio: 0.5}

	tests := []struct {
		name string
		rows [][]string
		fill float64
		ok   bool
	}{
		{"full", [][]string{{"a", "b"}, {"c", "d"}}, 1, true},
		{"half filled", [][]string{{"a", ""}, {"", "d"}}, 0.5, true},
		{"too sparse", [][]string{{"a", ""}, {"", ""}, {"", ""}}, 0, false},
		{"too few rows", [][]string{{"a", "b"}}, 0, false},
		{"single column", [][]string{{"a"}, {"b"}}, 0, false},
		{"ragged", [][]string{{"a", "b"}, {"c"}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill, err := v.Check(tt.rows)
			if !tt.ok {
				assert.ErrorIs(t, err, models.ErrTableStructureInvalid)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.fill, fill, 1e-9)
		})
	}
}

func TestTableFromRowsFallsBackToText(t *testing.T) {
	p := New(nil)
	b := p.TableFromRows(3, [][]string{{"Only one cell"}}, models.MethodSheet)
	assert.Equal(t, models.KindText, b.Kind)
	assert.Equal(t, models.MethodFallback, b.Method)
	assert.Equal(t, "Only one cell", b.Text)
	assert.Equal(t, 3, b.Page)
}

func TestDocxBlocks(t *testing.T) {
	xmlDoc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Exclusions</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Cosmetic surgery is </w:t></w:r><w:r><w:t>not covered.</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Plan</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Premium</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Gold</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>8,000</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:br w:type="page"/><w:t>Claims</w:t></w:r></w:p>
</w:body></w:document>`

	blocks, pages, err := New(nil).docxBlocks(xmlDoc)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, blocks, 4)

	assert.True(t, blocks[0].Heading)
	assert.Equal(t, "Exclusions", blocks[0].Text)
	assert.Equal(t, "Cosmetic surgery is not covered.", blocks[1].Text)
	assert.False(t, blocks[1].Heading)

	assert.Equal(t, models.KindTable, blocks[2].Kind)
	assert.Equal(t, models.MethodDocx, blocks[2].Method)
	assert.Equal(t, [][]string{{"Plan", "Premium"}, {"Gold", "8,000"}}, blocks[2].Rows)

	assert.Equal(t, "Claims", blocks[3].Text)
	assert.Equal(t, 2, blocks[3].Page)
}

func TestExtractMarkdown(t *testing.T) {
	path := writeFile(t, t.TempDir(), "benefits.md", `# Schedule of Benefits

Room rent is capped.

| Benefit | Limit |
|---|---|
| Room rent | 1% |
| ICU | 2% |

- Item one
`)
	doc, err := New(nil).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "benefits.md", doc.Source)
	require.Len(t, doc.Blocks, 4)

	assert.True(t, doc.Blocks[0].Heading)
	assert.Equal(t, "Schedule of Benefits", doc.Blocks[0].Text)
	assert.Equal(t, "Room rent is capped.", doc.Blocks[1].Text)
	assert.Equal(t, models.KindTable, doc.Blocks[2].Kind)
	assert.Equal(t, [][]string{{"Benefit", "Limit"}, {"Room rent", "1%"}, {"ICU", "2%"}}, doc.Blocks[2].Rows)
	assert.Equal(t, "Item one", doc.Blocks[3].Text)
}

func TestExtractXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Plan", "Premium"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Gold", 8000}))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "Rates exclude taxes"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc, err := New(nil).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Pages)
	require.Len(t, doc.Blocks, 2)

	assert.Equal(t, models.KindTable, doc.Blocks[0].Kind)
	assert.Equal(t, models.MethodSheet, doc.Blocks[0].Method)
	assert.Equal(t, [][]string{{"Plan", "Premium"}, {"Gold", "8000"}}, doc.Blocks[0].Rows)

	assert.Equal(t, models.KindText, doc.Blocks[1].Kind)
	assert.Equal(t, "Rates exclude taxes", doc.Blocks[1].Text)
	assert.Equal(t, 2, doc.Blocks[1].Page)
}

func TestExtractPPTX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for name, body := range map[string]string{
		"ppt/slides/slide2.xml": `<p:sld><a:p><a:r><a:t>Claims</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide1.xml": `<p:sld><a:p><a:r><a:t>Premium &amp; Grace</a:t></a:r></a:p><a:p><a:r><a:t>Grace period 30 days</a:t></a:r></a:p></p:sld>`,
		"ppt/presentation.xml":  `<p:presentation/>`,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	doc, err := New(nil).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Pages)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "Premium & Grace\nGrace period 30 days", doc.Blocks[0].Text)
	assert.Equal(t, 1, doc.Blocks[0].Page)
	assert.Equal(t, "Claims", doc.Blocks[1].Text)
	assert.Equal(t, 2, doc.Blocks[1].Page)
}

func TestExtractTextSplitsPagesOnFormFeed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "policy.txt", "Page one text\fPage two text")
	doc, err := New(nil).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Pages)
	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, 1, doc.Blocks[0].Page)
	assert.Equal(t, "Page two text", doc.Blocks[1].Text)
	assert.Equal(t, 2, doc.Blocks[1].Page)
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	p := New(nil)

	_, err := p.Extract(writeFile(t, dir, "data.bin", "x"))
	assert.ErrorIs(t, err, models.ErrExtractionFailure)

	_, err = p.Extract(filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, models.ErrExtractionFailure)

	_, err = p.Extract(writeFile(t, dir, "broken.pdf", "this is not a pdf"))
	assert.ErrorIs(t, err, models.ErrExtractionFailure)
}

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.pdf", "")
	writeFile(t, dir, "a.txt", "")
	writeFile(t, dir, "sub/c.md", "")
	writeFile(t, dir, "ignore.bin", "")
	single := writeFile(t, t.TempDir(), "single.docx", "")

	got, err := CollectSources(dir, single)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "sub", "c.md"),
		single,
	}, got)

	_, err = CollectSources(filepath.Join(dir, "nope"))
	assert.ErrorIs(t, err, models.ErrExtractionFailure)
}
