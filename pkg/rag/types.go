// Package rag turns a query into a ranked, filtered set of context chunks
// from the vector backend, and provides the document ingestion pipeline
// that feeds it.
package rag

import "time"

// Chunk is one retrieved piece of context. Chunks live for the duration of
// one agent invocation and are never persisted by this package.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string

	// Score is the blended relevance score after reranking.
	Score float64

	// RawScore is the backend similarity before the keyword bonus.
	RawScore float64

	// InsertedAt is when the chunk was indexed. Used as the first
	// tie-break so equal scores order reproducibly.
	InsertedAt time.Time

	Metadata map[string]any
}

// Options controls one retrieval.
type Options struct {
	// K is the number of chunks to return. Zero uses the configured
	// default.
	K int

	// MinScore drops hits below this backend similarity. Negative
	// means use the configured default.
	MinScore float64

	// Filters are metadata equality constraints pushed to the backend
	// (media type, conversation scope, and the like).
	Filters map[string]any
}
