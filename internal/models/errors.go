package models

import "errors"

var (
	// ErrExtractionFailure means the source could not be opened or decoded at all.
	ErrExtractionFailure = errors.New("extraction failure")
	// ErrTableStructureInvalid is returned by table strategies whose output fails the sanity check.
	ErrTableStructureInvalid = errors.New("table structure invalid")
	// ErrEmbeddingUnavailable means the embedding model could not serve the request.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexUnavailable means the vector index could not serve the request.
	ErrIndexUnavailable = errors.New("index unavailable")
)
