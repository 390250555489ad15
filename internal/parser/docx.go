package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"policy-rag/internal/models"
)

func (p *Parser) parseDOCX(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path)}

	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	defer r.Close()

	blocks, pages, err := p.docxBlocks(r.Editable().GetContent())
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	doc.Blocks = blocks
	doc.Pages = pages
	return doc, nil
}

// docxWalker keeps the state of a WordprocessingML token walk.
type docxWalker struct {
	page     int
	para     strings.Builder
	heading  bool
	tblDepth int
	rows     [][]string
	row      []string
	cell     strings.Builder
	inText   bool
}

// docxBlocks walks document.xml. Paragraphs become text blocks, paragraphs
// styled as headings or titles become heading blocks and top-level tables are
// validated like any other structured table. Page numbers follow explicit
// page breaks.
func (p *Parser) docxBlocks(content string) ([]models.ContentBlock, int, error) {
	var (
		blocks []models.ContentBlock
		w      = docxWalker{page: 1}
	)

	dec := xml.NewDecoder(strings.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				if w.tblDepth == 0 {
					w.rows = nil
				}
				w.tblDepth++
			case "tr":
				if w.tblDepth == 1 {
					w.row = nil
				}
			case "tc":
				if w.tblDepth == 1 {
					w.cell.Reset()
				}
			case "p":
				w.para.Reset()
				w.heading = false
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" && isHeadingStyle(a.Value) {
						w.heading = true
					}
				}
			case "t":
				w.inText = true
			case "tab":
				w.para.WriteByte(' ')
			case "br":
				for _, a := range t.Attr {
					if a.Name.Local == "type" && a.Value == "page" {
						w.page++
					}
				}
			}

		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				w.inText = false
			case "p":
				text := strings.Join(strings.Fields(w.para.String()), " ")
				if text == "" {
					continue
				}
				switch {
				case w.tblDepth > 0:
					if w.cell.Len() > 0 {
						w.cell.WriteByte(' ')
					}
					w.cell.WriteString(text)
				default:
					blocks = append(blocks, models.ContentBlock{
						Kind: models.KindText, Page: w.page, Text: text, Method: models.MethodDocx, Heading: w.heading,
					})
				}
			case "tc":
				if w.tblDepth == 1 {
					w.row = append(w.row, w.cell.String())
				}
			case "tr":
				if w.tblDepth == 1 {
					w.rows = append(w.rows, w.row)
				}
			case "tbl":
				w.tblDepth--
				if w.tblDepth == 0 && len(w.rows) > 0 {
					blocks = append(blocks, p.TableFromRows(w.page, w.rows, models.MethodDocx))
					w.rows = nil
				}
			}
		}
	}
	return blocks, w.page, nil
}

func isHeadingStyle(style string) bool {
	s := strings.ToLower(style)
	return strings.HasPrefix(s, "heading") || s == "title" || s == "subtitle"
}
