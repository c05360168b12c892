// Package vector abstracts the vector backend behind a narrow provider
// interface with embedded (chromem), remote (qdrant), and in-memory
// implementations.
package vector

import "context"

// Result is one scored hit from a similarity search.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Provider is a vector store. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string

	Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error

	Search(ctx context.Context, collection string, vec []float32, topK int) ([]Result, error)

	// SearchWithFilter restricts hits to those whose metadata matches
	// every filter entry.
	SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]Result, error)

	Delete(ctx context.Context, collection, id string) error

	CreateCollection(ctx context.Context, collection string, dimension int) error

	Close() error
}
