package parser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"policy-rag/internal/models"
)

const (
	// Rectangles thinner than this are treated as ruling lines.
	maxRuleThickness = 2.0
	// Word spacing as a fraction of the font size.
	wordGapFactor = 0.15
	// Baseline distance, as a fraction of the font size, within which glyphs share a line.
	lineTolerance = 0.3
)

func (p *Parser) parsePDF(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path)}

	f, err := os.Open(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}

	doc.Pages = reader.NumPage()
	for i := 1; i <= doc.Pages; i++ {
		page, err := p.readPDFPage(reader, i)
		if err != nil {
			log.Warn().Err(err).Str("source", doc.Source).Int("page", i).Msg("Skipping page")
			doc.Failures = append(doc.Failures, models.PageFailure{Page: i, Reason: err.Error()})
			continue
		}
		doc.Blocks = append(doc.Blocks, p.BuildBlocks(page)...)
	}
	return doc, nil
}

// readPDFPage lays out one page from its positioned glyphs. The pdf library
// panics on some malformed content streams, so a panic is reported as a page error.
func (p *Parser) readPDFPage(r *pdf.Reader, i int) (page Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed page content: %v", rec)
		}
	}()

	pg := r.Page(i)
	if pg.V.IsNull() {
		return Page{Number: i, Unit: 1}, nil
	}

	content := pg.Content()
	if lines := glyphLines(content.Text); len(lines) > 0 {
		page = p.pageFromGlyphs(i, lines)
		page.Rules = rulesFromRects(content.Rect)
		return page, nil
	}

	text, err := pg.GetPlainText(nil)
	if err != nil {
		return page, err
	}
	return textPage(i, text), nil
}

// glyphLine holds the glyphs that share a baseline.
type glyphLine struct {
	y      float64
	glyphs []pdf.Text
}

// glyphLines groups glyphs into lines, top of the page first. Glyphs whose
// baselines are within lineTolerance of the font size join the same line.
func glyphLines(texts []pdf.Text) []glyphLine {
	glyphs := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S == "" || t.S == "\n" || t.S == "\r" {
			continue
		}
		glyphs = append(glyphs, t)
	}
	sort.SliceStable(glyphs, func(a, b int) bool { return glyphs[a].Y > glyphs[b].Y })

	var lines []glyphLine
	for _, g := range glyphs {
		tol := max(g.FontSize*lineTolerance, 1)
		if n := len(lines); n > 0 && lines[n-1].y-g.Y <= tol {
			lines[n-1].glyphs = append(lines[n-1].glyphs, g)
			continue
		}
		lines = append(lines, glyphLine{y: g.Y, glyphs: []pdf.Text{g}})
	}
	return lines
}

// pageFromGlyphs merges glyphs into words and words into spans.
// A gap wider than ColumnGap characters starts a new span.
func (p *Parser) pageFromGlyphs(number int, lines []glyphLine) Page {
	page := Page{Number: number}

	var sizeSum float64
	var sizeN int
	for _, gl := range lines {
		texts := append([]pdf.Text(nil), gl.glyphs...)
		sort.SliceStable(texts, func(a, b int) bool { return texts[a].X < texts[b].X })

		line := Line{Y: -gl.y}
		var (
			cur         strings.Builder
			raw         strings.Builder
			x0, end, lx float64
			started     bool
			space       bool
		)
		closeSpan := func() {
			if t := strings.Join(strings.Fields(cur.String()), " "); t != "" {
				line.Spans = append(line.Spans, Span{X0: x0, X1: end, Text: t})
			}
			cur.Reset()
			started = false
			space = false
		}

		for _, t := range texts {
			if t.FontSize > 0 {
				sizeSum += t.FontSize
				sizeN++
			}
			if strings.TrimSpace(t.S) == "" {
				space = started
				continue
			}
			charW := max(t.FontSize*0.5, 1)
			w := t.W
			x := t.X
			if w <= 0 {
				// Fonts without a widths table do not advance between glyphs.
				w = float64(len([]rune(t.S))) * charW
				if started && x == lx {
					x = end
				}
			}
			if started {
				gap := x - end
				switch {
				case gap > p.cfg.ColumnGap*charW:
					closeSpan()
					raw.WriteString("  ")
				case space || gap > wordGapFactor*t.FontSize:
					cur.WriteByte(' ')
					raw.WriteByte(' ')
				}
			}
			if !started {
				x0 = x
				started = true
			}
			space = false
			cur.WriteString(t.S)
			raw.WriteString(t.S)
			lx = t.X
			end = x + w
		}
		closeSpan()

		if len(line.Spans) > 0 {
			line.Raw = raw.String()
			page.Lines = append(page.Lines, line)
		}
	}

	page.Unit = 5
	if sizeN > 0 {
		page.Unit = sizeSum / float64(sizeN) * 0.5
	}
	return page
}

func rulesFromRects(rects []pdf.Rect) []Rule {
	var rules []Rule
	for _, rc := range rects {
		w, h := rc.Max.X-rc.Min.X, rc.Max.Y-rc.Min.Y
		if w < 0 {
			w = -w
		}
		if h < 0 {
			h = -h
		}
		if min(w, h) > maxRuleThickness || max(w, h) < 2*maxRuleThickness {
			continue
		}
		rules = append(rules, Rule{
			X0: min(rc.Min.X, rc.Max.X),
			X1: max(rc.Min.X, rc.Max.X),
			Y0: -max(rc.Min.Y, rc.Max.Y),
			Y1: -min(rc.Min.Y, rc.Max.Y),
		})
	}
	return rules
}
