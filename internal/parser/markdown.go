package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"policy-rag/internal/models"
)

func (p *Parser) parseMarkdown(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path), Pages: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	doc.Blocks, err = p.markdownBlocks(data)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	return doc, nil
}

// markdownBlocks parses GitHub flavoured Markdown. Headings become heading
// blocks, GFM tables go through table validation and every other leaf block
// becomes text.
func (p *Parser) markdownBlocks(src []byte) ([]models.ContentBlock, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	var blocks []models.ContentBlock
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, models.ContentBlock{
				Kind: models.KindText, Page: 1, Text: inlineText(node, src), Method: models.MethodMarkdown, Heading: true,
			})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if t := inlineText(node, src); strings.TrimSpace(t) != "" {
				blocks = append(blocks, models.ContentBlock{Kind: models.KindText, Page: 1, Text: t, Method: models.MethodMarkdown})
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if t := blockLines(node, src); strings.TrimSpace(t) != "" {
				blocks = append(blocks, models.ContentBlock{Kind: models.KindText, Page: 1, Text: t, Method: models.MethodMarkdown})
			}
			return ast.WalkSkipChildren, nil
		case *extast.Table:
			blocks = append(blocks, p.TableFromRows(1, tableRows(node, src), models.MethodMarkdown))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks, err
}

func tableRows(table *extast.Table, src []byte) [][]string {
	var rows [][]string
	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, inlineText(c, src))
		}
		rows = append(rows, row)
	}
	return rows
}

// inlineText collects the text of the inline children of n.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func blockLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimSpace(b.String())
}
