package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

// Span is a run of text on a line, separated from its neighbours by a column-sized gap.
type Span struct {
	X0, X1 float64
	Text   string
}

// Line is one visual line. Y grows downwards so that lines sort top to bottom.
type Line struct {
	Y     float64
	Spans []Span
	Raw   string // the line with its original spacing
}

// Text joins the spans of the line with single spaces.
func (l Line) Text() string {
	parts := make([]string, 0, len(l.Spans))
	for _, s := range l.Spans {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Rule is a ruling line segment drawn on the page, in the same coordinates as Line.Y.
type Rule struct {
	X0, Y0, X1, Y1 float64
}

func (r Rule) vertical() bool   { return r.X1-r.X0 < r.Y1-r.Y0 }
func (r Rule) horizontal() bool { return !r.vertical() }

// Page is the layout of one page as seen by the block builder.
type Page struct {
	Number int
	Lines  []Line
	Rules  []Rule
	Unit   float64 // approximate character width in page coordinates
}

// Region is a run of lines suspected to hold a table.
type Region struct {
	Page  int
	Lines []Line
	Rules []Rule
	Unit  float64
}

// Text returns the region as plain lines, used when no strategy accepts it.
func (r Region) Text() string {
	lines := make([]string, 0, len(r.Lines))
	for _, l := range r.Lines {
		if t := l.Text(); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

var tableMarkerRe = regexp.MustCompile(models.TableMarkerRegex)

const maxMarkerWords = 8

func isMarker(l Line) bool {
	t := l.Text()
	return tableMarkerRe.MatchString(t) && len(strings.Fields(t)) <= maxMarkerWords
}

func columnar(l Line) bool {
	return len(l.Spans) >= 2
}

// BuildBlocks splits a page into paragraph text blocks and table blocks in
// reading order. Paragraphs break where the vertical gap between lines is
// larger than ParagraphGapFactor times the typical line spacing.
func (p *Parser) BuildBlocks(page Page) []models.ContentBlock {
	lines := make([]Line, 0, len(page.Lines))
	for _, l := range page.Lines {
		if strings.TrimSpace(l.Text()) != "" {
			lines = append(lines, l)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Y < lines[j].Y })
	if len(lines) == 0 {
		return nil
	}

	breaks := p.paragraphBreaks(lines)

	var (
		blocks []models.ContentBlock
		para   []string
	)
	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, models.ContentBlock{
				Kind:   models.KindText,
				Page:   page.Number,
				Text:   strings.Join(para, "\n"),
				Method: models.MethodText,
			})
			para = nil
		}
	}

	for i := 0; i < len(lines); {
		if end := p.regionEnd(lines, breaks, i); end > i {
			flush()
			region := Region{Page: page.Number, Lines: lines[i:end], Rules: page.Rules, Unit: page.Unit}
			blocks = append(blocks, p.extractTable(region))
			i = end
			continue
		}
		if breaks[i] {
			flush()
		}
		para = append(para, lines[i].Text())
		i++
	}
	flush()
	return blocks
}

// regionEnd returns the end of a table candidate starting at i, or i if none.
// A candidate is either a run of at least TableMinRows columnar lines, or the
// lines of the paragraph that follows an explicit table marker.
func (p *Parser) regionEnd(lines []Line, breaks []bool, i int) int {
	minRows := p.cfg.TableMinRows

	if i > 0 && isMarker(lines[i-1]) && !columnar(lines[i-1]) {
		j := i + 1
		for j < len(lines) && !breaks[j] {
			j++
		}
		if j-i >= minRows {
			return j
		}
	}

	j := i
	for j < len(lines) && columnar(lines[j]) {
		j++
	}
	if j-i >= minRows {
		return j
	}
	return i
}

// paragraphBreaks marks lines that start a new paragraph.
func (p *Parser) paragraphBreaks(lines []Line) []bool {
	breaks := make([]bool, len(lines))
	if len(lines) == 0 {
		return breaks
	}
	breaks[0] = true

	gaps := make([]float64, 0, len(lines))
	for i := 1; i < len(lines); i++ {
		if g := lines[i].Y - lines[i-1].Y; g > 0 {
			gaps = append(gaps, g)
		}
	}
	if len(gaps) == 0 {
		return breaks
	}
	sorted := append([]float64(nil), gaps...)
	sort.Float64s(sorted)
	typical := sorted[len(sorted)/2]

	for i := 1; i < len(lines); i++ {
		if lines[i].Y-lines[i-1].Y > p.cfg.ParagraphGapFactor*typical {
			breaks[i] = true
		}
	}
	return breaks
}

// extractTable runs the strategy chain over a region. The first strategy whose
// rows pass validation wins; if none does, the region is kept as a text block.
func (p *Parser) extractTable(r Region) models.ContentBlock {
	for _, s := range p.strategies {
		rows, err := s.Extract(r)
		if err == nil {
			var fill float64
			fill, err = p.validator.Check(rows)
			if err == nil {
				return tableBlock(r.Page, rows, s.Name, fill*s.Weight)
			}
		}
		log.Debug().Int("page", r.Page).Str("strategy", s.Name).Err(err).Msg("Table strategy rejected region")
	}
	log.Warn().Int("page", r.Page).Int("lines", len(r.Lines)).Msg("No table strategy accepted region, keeping it as text")
	return models.ContentBlock{
		Kind:   models.KindText,
		Page:   r.Page,
		Text:   r.Text(),
		Method: models.MethodFallback,
	}
}

// TableFromRows validates rows that came from a structured source (DOCX,
// spreadsheet or Markdown table). Invalid tables fall back to text.
func (p *Parser) TableFromRows(page int, rows [][]string, method string) models.ContentBlock {
	rows = padRows(trimRows(rows))
	fill, err := p.validator.Check(rows)
	if err != nil {
		log.Debug().Int("page", page).Str("method", method).Err(err).Msg("Structured table rejected, keeping it as text")
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if t := strings.TrimSpace(strings.Join(row, " ")); t != "" {
				lines = append(lines, t)
			}
		}
		return models.ContentBlock{Kind: models.KindText, Page: page, Text: strings.Join(lines, "\n"), Method: models.MethodFallback}
	}
	return tableBlock(page, rows, method, fill)
}

func tableBlock(page int, rows [][]string, method string, confidence float64) models.ContentBlock {
	return models.ContentBlock{
		Kind:       models.KindTable,
		Page:       page,
		Text:       CanonicalTableText(rows),
		Rows:       rows,
		Method:     method,
		Confidence: confidence,
	}
}

// CanonicalTableText renders rows one per line with " | " between cells.
func CanonicalTableText(rows [][]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " | ")
	}
	return strings.Join(lines, "\n")
}

// trimRows trims cells and drops rows that are entirely empty.
func trimRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		empty := true
		for i, c := range row {
			cells[i] = strings.Join(strings.Fields(c), " ")
			if cells[i] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, cells)
		}
	}
	return out
}

// padRows extends short rows with empty cells up to the widest row.
func padRows(rows [][]string) [][]string {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row
	}
	return rows
}
