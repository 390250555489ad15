package chromemdb

import (
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"

	"policy-rag/internal/models"
)

// chromem metadata is a flat string map; these are its keys.
const (
	keySectionType    = "section_type"
	keySourceFile     = "source_file"
	keyChunkKind      = "chunk_kind"
	keyChunkIndex     = "chunk_index"
	keyPageStart      = "page_start"
	keyPageEnd        = "page_end"
	keyMethod         = "extraction_method"
	keyConfidence     = "table_confidence"
	keyCoverageTerms  = "coverage_terms"
	keyExclusionTerms = "exclusion_terms"
	keyLegalTerms     = "legal_terms"
	keyAmounts        = "amounts"
	keyPercentages    = "percentages"
	keyPolicyRefs     = "policy_references"
	keyWordCount      = "word_count"
	keyHasTableData   = "has_table_data"

	keyChunks = "chunks"
)

func sectionKey(section string) string {
	return "section:" + section
}

func toDocuments(records []models.IndexRecord) []chromem.Document {
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Metadata:  encodeMetadata(r.Embedding.Metadata, r.Features),
			Embedding: r.Embedding.Vector,
		}
	}
	return docs
}

func encodeMetadata(md models.ChunkMetadata, f models.FeatureRecord) map[string]string {
	return map[string]string{
		keySectionType:    md.SectionType.String(),
		keySourceFile:     md.SourceFile,
		keyChunkKind:      string(md.ChunkKind),
		keyChunkIndex:     itoa(md.ChunkIndex),
		keyPageStart:      itoa(md.PageStart),
		keyPageEnd:        itoa(md.PageEnd),
		keyMethod:         md.Method,
		keyConfidence:     strconv.FormatFloat(md.Confidence, 'f', -1, 64),
		keyCoverageTerms:  itoa(f.CoverageTerms),
		keyExclusionTerms: itoa(f.ExclusionTerms),
		keyLegalTerms:     itoa(f.LegalTerms),
		keyAmounts:        itoa(f.Amounts),
		keyPercentages:    itoa(f.Percentages),
		keyPolicyRefs:     strings.Join(f.PolicyReferences, ","),
		keyWordCount:      itoa(f.WordCount),
		keyHasTableData:   strconv.FormatBool(f.HasTableData),
	}
}

func toCandidate(r chromem.Result) models.Candidate {
	md := r.Metadata
	section, _ := models.ParseSectionType(md[keySectionType])
	confidence, _ := strconv.ParseFloat(md[keyConfidence], 64)
	hasTable, _ := strconv.ParseBool(md[keyHasTableData])

	var refs []string
	if md[keyPolicyRefs] != "" {
		refs = strings.Split(md[keyPolicyRefs], ",")
	}

	return models.Candidate{
		ID:         r.ID,
		Content:    r.Content,
		Similarity: float64(r.Similarity),
		Metadata: models.ChunkMetadata{
			SectionType: section,
			SourceFile:  md[keySourceFile],
			ChunkKind:   models.BlockKind(md[keyChunkKind]),
			ChunkIndex:  atoi(md[keyChunkIndex]),
			PageStart:   atoi(md[keyPageStart]),
			PageEnd:     atoi(md[keyPageEnd]),
			Method:      md[keyMethod],
			Confidence:  confidence,
		},
		Features: models.FeatureRecord{
			CoverageTerms:    atoi(md[keyCoverageTerms]),
			ExclusionTerms:   atoi(md[keyExclusionTerms]),
			LegalTerms:       atoi(md[keyLegalTerms]),
			Amounts:          atoi(md[keyAmounts]),
			Percentages:      atoi(md[keyPercentages]),
			PolicyReferences: refs,
			WordCount:        atoi(md[keyWordCount]),
			HasTableData:     hasTable,
		},
	}
}

// whereClause turns a filter into chromem's exact-match metadata predicate.
func whereClause(f *models.Filter) map[string]string {
	if f.IsEmpty() {
		return nil
	}
	where := make(map[string]string, 3)
	if f.SectionType != nil {
		where[keySectionType] = f.SectionType.String()
	}
	if f.SourceFile != "" {
		where[keySourceFile] = f.SourceFile
	}
	if f.ChunkKind != "" {
		where[keyChunkKind] = string(f.ChunkKind)
	}
	return where
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
