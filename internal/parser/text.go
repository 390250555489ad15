package parser

import (
	"bufio"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	pageBreak     = "\f"
	maxLineLength = 1024 * 1024
)

var (
	spanSepRe     = regexp.MustCompile(`\t+|\s{2,}|\s*\|\s*`)
	sentenceGapRe = regexp.MustCompile(`([.!?]) {2}(\S)`)
)

// textPages splits plain text into pages on form feeds.
func textPages(content string) []Page {
	var pages []Page
	for i, chunk := range strings.Split(content, pageBreak) {
		pages = append(pages, textPage(i+1, chunk))
	}
	return pages
}

// textPage lays out one page of plain text. Each line sits at its line number,
// so blank lines show up as paragraph gaps.
func textPage(number int, content string) Page {
	p := Page{Number: number, Unit: 1}
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for y := 0; scanner.Scan(); y++ {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		p.Lines = append(p.Lines, textLine(float64(y), raw))
	}
	return p
}

// textLine cuts a raw line into spans at tabs, pipes and runs of spaces.
// Positions are in characters.
func textLine(y float64, raw string) Line {
	raw = sentenceGapRe.ReplaceAllString(raw, "$1 $2")
	l := Line{Y: y, Raw: raw}

	add := func(from, to int) {
		seg := raw[from:to]
		t := strings.TrimSpace(seg)
		if t == "" {
			return
		}
		lead := len(seg) - len(strings.TrimLeft(seg, " \t"))
		x0 := float64(utf8.RuneCountInString(raw[:from+lead]))
		l.Spans = append(l.Spans, Span{X0: x0, X1: x0 + float64(utf8.RuneCountInString(t)), Text: t})
	}

	pos := 0
	for _, sep := range spanSepRe.FindAllStringIndex(raw, -1) {
		add(pos, sep[0])
		pos = sep[1]
	}
	add(pos, len(raw))
	return l
}
