package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/strandkit/strand/pkg/rag"
)

// retrieverSearch backs the builtin search tool with the retrieval
// pipeline, rendering chunks into a plain-text observation.
type retrieverSearch struct {
	retriever *rag.Retriever
}

func (s *retrieverSearch) Search(ctx context.Context, query string, k int) (string, error) {
	chunks, err := s.retriever.Retrieve(ctx, query, rag.Options{K: k, MinScore: -1})
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "No matching documents found.", nil
	}

	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (%s, score %.3f) %s\n", i+1, c.DocumentID, c.Score, c.Text)
	}
	return b.String(), nil
}
