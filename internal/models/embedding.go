package models

// ChunkMetadata is the filterable metadata stored with every vector.
type ChunkMetadata struct {
	SectionType SectionType `json:"section_type"`
	SourceFile  string      `json:"source_file"`
	ChunkKind   BlockKind   `json:"chunk_kind"`
	ChunkIndex  int         `json:"chunk_index"`
	PageStart   int         `json:"page_start"`
	PageEnd     int         `json:"page_end"`
	Method      string      `json:"extraction_method,omitempty"`
	Confidence  float64     `json:"table_confidence,omitempty"`
}

// EmbeddingRecord is a dense vector plus the metadata needed for filtered search.
type EmbeddingRecord struct {
	Vector   []float32
	Metadata ChunkMetadata
}

// IndexRecord is what the ingestion path writes to the index.
type IndexRecord struct {
	ID        string
	Content   string
	Embedding EmbeddingRecord
	Features  FeatureRecord
}

// Filter is an exact-match predicate over chunk metadata. Empty fields match everything.
type Filter struct {
	SectionType *SectionType `json:"section_type,omitempty"`
	SourceFile  string       `json:"source_file,omitempty"`
	ChunkKind   BlockKind    `json:"chunk_kind,omitempty"`
}

// IsEmpty reports whether the filter restricts nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.SectionType == nil && f.SourceFile == "" && f.ChunkKind == "")
}

// Match reports whether metadata satisfies the filter.
func (f *Filter) Match(md ChunkMetadata) bool {
	if f.IsEmpty() {
		return true
	}
	if f.SectionType != nil && md.SectionType != *f.SectionType {
		return false
	}
	if f.SourceFile != "" && md.SourceFile != f.SourceFile {
		return false
	}
	if f.ChunkKind != "" && md.ChunkKind != f.ChunkKind {
		return false
	}
	return true
}

// Candidate is a nearest-neighbour hit returned by the index.
type Candidate struct {
	ID         string
	Content    string
	Metadata   ChunkMetadata
	Features   FeatureRecord
	Similarity float64
}
