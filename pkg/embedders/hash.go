package embedders

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const hashDimension = 256

// HashEmbedder maps text into a fixed vector by hashing tokens into
// buckets. It has no semantic understanding; it exists so retrieval and
// ingestion stay functional, and deterministic, without credentials.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%hashDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (e *HashEmbedder) Dimension() int { return hashDimension }

func (e *HashEmbedder) Close() error { return nil }
