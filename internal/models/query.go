package models

// QueryResult is one ranked chunk returned by a query.
type QueryResult struct {
	ChunkID         string        `json:"chunk_id"`
	Content         string        `json:"content"`
	Metadata        ChunkMetadata `json:"metadata"`
	SimilarityScore float64       `json:"similarity_score"`
	RelevanceScore  float64       `json:"relevance_score"`
	CombinedScore   float64       `json:"combined_score"`
	Rank            int           `json:"rank"`
}

// Failure is a document- or page-level ingestion failure.
type Failure struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// IngestResult summarises one ingestion batch.
type IngestResult struct {
	DocumentsProcessed int       `json:"documents_processed"`
	ChunksWritten      int       `json:"chunks_written"`
	Failures           []Failure `json:"failures"`
}

// Statistics describes the index contents.
type Statistics struct {
	TotalDocuments       int            `json:"total_documents"`
	TotalChunks          int            `json:"total_chunks"`
	PerSectionTypeCounts map[string]int `json:"per_section_type_counts"`
	ProcessedFiles       map[string]int `json:"processed_files"`
}

// PromptResponse is a generated answer with the context it was built from.
type PromptResponse struct {
	Query   string        `json:"query"`
	Source  string        `json:"source"`
	Content string        `json:"content"`
	Results []QueryResult `json:"results"`
}
