package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryProvider is a process-local vector store using cosine similarity.
// It backs the "memory" config kind and the test suites.
type MemoryProvider struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryDoc
}

type memoryDoc struct {
	vec      []float32
	content  string
	metadata map[string]any
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		collections: make(map[string]map[string]memoryDoc),
	}
}

func (p *MemoryProvider) Name() string { return "memory" }
func (p *MemoryProvider) Close() error { return nil }

func (p *MemoryProvider) CreateCollection(ctx context.Context, collection string, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.collections[collection]; !ok {
		p.collections[collection] = make(map[string]memoryDoc)
	}
	return nil
}

func (p *MemoryProvider) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	content := ""
	if c, ok := metadata["content"].(string); ok {
		content = c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	docs, ok := p.collections[collection]
	if !ok {
		docs = make(map[string]memoryDoc)
		p.collections[collection] = docs
	}
	docs[id] = memoryDoc{vec: vec, content: content, metadata: metadata}
	return nil
}

func (p *MemoryProvider) Search(ctx context.Context, collection string, vec []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vec, topK, nil)
}

func (p *MemoryProvider) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	docs := p.collections[collection]
	results := make([]Result, 0, len(docs))
	for id, doc := range docs {
		if !matchesFilter(doc.metadata, filter) {
			continue
		}
		results = append(results, Result{
			ID:       id,
			Score:    cosineSimilarity(vec, doc.vec),
			Content:  doc.content,
			Metadata: doc.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (p *MemoryProvider) Delete(ctx context.Context, collection, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if docs, ok := p.collections[collection]; ok {
		delete(docs, id)
	}
	return nil
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Provider = (*MemoryProvider)(nil)
