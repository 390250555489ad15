package models

import "fmt"

// BlockKind distinguishes prose from tabular content.
type BlockKind string

const (
	KindText  BlockKind = "text"
	KindTable BlockKind = "table"
)

// Extraction methods recorded on blocks and chunks.
const (
	MethodText     = "text"
	MethodLattice  = "lattice"
	MethodStream   = "stream"
	MethodLayout   = "layout"
	MethodFallback = "fallback"
	MethodDocx     = "docx"
	MethodSheet    = "sheet"
	MethodMarkdown = "markdown"
)

// ContentBlock is a unit of extracted content with page provenance.
type ContentBlock struct {
	Kind       BlockKind
	Page       int
	Text       string
	Rows       [][]string // parsed cells, tables only
	Method     string
	Confidence float64 // tables only
	Heading    bool    // the block is a declared heading
}

// PageFailure records a page that could not be extracted.
type PageFailure struct {
	Page   int    `json:"page" yaml:"page"`
	Reason string `json:"reason" yaml:"reason"`
}

// Document is the transient result of extracting one source file.
type Document struct {
	Source   string
	Pages    int
	Blocks   []ContentBlock
	Failures []PageFailure
}

// Chunk is the unit of retrieval.
type Chunk struct {
	ID          string
	Source      string
	Index       int
	StartWord   int // inclusive
	EndWord     int // exclusive
	PageStart   int
	PageEnd     int
	SectionType SectionType
	Kind        BlockKind
	Content     string
	Overlap     string // words shared with the previous chunk
	Method      string
	Confidence  float64
	Features    FeatureRecord
}

// ChunkID builds the stable id of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s_%d", source, index)
}

// FeatureRecord holds insurance-specific lexical features of a text.
type FeatureRecord struct {
	CoverageTerms    int      `json:"coverage_terms"`
	ExclusionTerms   int      `json:"exclusion_terms"`
	LegalTerms       int      `json:"legal_terms"`
	Amounts          int      `json:"amounts"`
	Percentages      int      `json:"percentages"`
	PolicyReferences []string `json:"policy_references,omitempty"`
	WordCount        int      `json:"word_count"`
	HasTableData     bool     `json:"has_table_data"`
}

// InsuranceTerms is the total count of recognised insurance terms.
func (f FeatureRecord) InsuranceTerms() int {
	return f.CoverageTerms + f.ExclusionTerms + f.LegalTerms
}

// HasPolicyReferences reports whether any policy-number-like token was found.
func (f FeatureRecord) HasPolicyReferences() bool {
	return len(f.PolicyReferences) > 0
}
