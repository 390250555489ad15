package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"policy-rag/internal/models"
)

// parseXLSX treats every sheet as one page holding one table candidate.
func (p *Parser) parseXLSX(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path)}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	doc.Pages = len(sheets)
	for i, name := range sheets {
		page := i + 1
		rows, err := f.GetRows(name)
		if err != nil {
			log.Warn().Err(err).Str("source", doc.Source).Str("sheet", name).Msg("Skipping sheet")
			doc.Failures = append(doc.Failures, models.PageFailure{Page: page, Reason: err.Error()})
			continue
		}
		if len(trimRows(rows)) == 0 {
			continue
		}
		doc.Blocks = append(doc.Blocks, p.TableFromRows(page, rows, models.MethodSheet))
	}
	return doc, nil
}

var (
	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	slideTextRe = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
	slideParaRe = regexp.MustCompile(`</a:p>`)
)

// parsePPTX reads slide text straight from the archive, one page per slide.
func (p *Parser) parsePPTX(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path)}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	defer zr.Close()

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		if m := slideNameRe.FindStringSubmatch(file.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, file: file})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	doc.Pages = len(slides)
	for _, s := range slides {
		data, err := readZipFile(s.file)
		if err != nil {
			doc.Failures = append(doc.Failures, models.PageFailure{Page: s.n, Reason: err.Error()})
			continue
		}
		text := slideText(string(data))
		if text == "" {
			continue
		}
		doc.Blocks = append(doc.Blocks, p.BuildBlocks(textPage(s.n, text))...)
	}
	return doc, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// slideText keeps one line per drawing paragraph.
func slideText(xmlContent string) string {
	var lines []string
	for _, para := range slideParaRe.Split(xmlContent, -1) {
		var b strings.Builder
		for _, m := range slideTextRe.FindAllStringSubmatch(para, -1) {
			b.WriteString(unescapeXML(m[1]))
		}
		if t := strings.TrimSpace(b.String()); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
