// Package parser extracts ordered content blocks from policy documents.
// PDF pages are laid out into lines and spans, table candidates go through a
// chain of table strategies and everything that is not a table stays prose.
package parser

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"policy-rag/internal/config"
	"policy-rag/internal/models"
)

type Parser struct {
	cfg        config.ExtractionConfig
	strategies []TableStrategy
	validator  TableValidator
}

// New returns a Parser using the extraction settings of cfg, or defaults when cfg is nil.
func New(cfg *config.Config) *Parser {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	ec := cfg.Extraction
	return &Parser{
		cfg:        ec,
		strategies: DefaultStrategies(),
		validator:  TableValidator{MinRows: ec.TableMinRows, MinFillRatio: ec.TableMinFillRatio},
	}
}

// WithStrategies replaces the table strategy chain.
func (p *Parser) WithStrategies(s ...TableStrategy) *Parser {
	p.strategies = s
	return p
}

var parsers = map[string]func(*Parser, string) (models.Document, error){
	".pdf":      (*Parser).parsePDF,
	".docx":     (*Parser).parseDOCX,
	".xlsx":     (*Parser).parseXLSX,
	".pptx":     (*Parser).parsePPTX,
	".md":       (*Parser).parseMarkdown,
	".markdown": (*Parser).parseMarkdown,
	".txt":      (*Parser).parseText,
}

// Supported reports whether path has an extension the parser can read.
func Supported(path string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads one file. Unreadable or unsupported files fail with
// models.ErrExtractionFailure; a bad page only adds a PageFailure.
func (p *Parser) Extract(path string) (models.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := parsers[ext]
	if !ok {
		return models.Document{Source: sourceName(path)},
			fmt.Errorf("%w: unsupported file format: %s", models.ErrExtractionFailure, ext)
	}
	return parse(p, path)
}

func (p *Parser) parseText(path string) (models.Document, error) {
	doc := models.Document{Source: sourceName(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
	}
	pages := textPages(string(data))
	doc.Pages = len(pages)
	for _, page := range pages {
		doc.Blocks = append(doc.Blocks, p.BuildBlocks(page)...)
	}
	return doc, nil
}

// CollectSources expands directories into the supported files below them,
// sorted by path. Plain file arguments are kept as given.
func CollectSources(paths ...string) ([]string, error) {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
		}
		if !info.IsDir() {
			out = append(out, path)
			continue
		}
		var found []string
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && Supported(p) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrExtractionFailure, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// sourceName is the identifier stored with every chunk of a file.
func sourceName(path string) string {
	return filepath.Base(path)
}

// SourceName exposes the source identifier derived from path.
func SourceName(path string) string {
	return sourceName(path)
}
