package rag

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/embedders"
	"github.com/strandkit/strand/pkg/observability"
	"github.com/strandkit/strand/pkg/vector"
)

// keywordBonusWeight blends token overlap into the backend similarity.
const keywordBonusWeight = 0.2

// minBackendK is the floor on the backend search size so the reranker has
// candidates to work with.
const minBackendK = 20

// Retriever is the retrieval pipeline: normalize, expand, search, filter,
// rerank, truncate. Safe for concurrent use.
type Retriever struct {
	backend    vector.Provider
	embedder   embedders.EmbedderProvider
	collection string
	cfg        config.RetrieverConfig
	synonyms   map[string][]string
	cache      *queryCache
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewRetriever(backend vector.Provider, embedder embedders.EmbedderProvider, collection string, cfg config.RetrieverConfig, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}

	synonyms := make(map[string][]string, len(defaultSynonyms)+len(cfg.Synonyms))
	for k, v := range defaultSynonyms {
		synonyms[k] = v
	}
	for k, v := range cfg.Synonyms {
		synonyms[k] = v
	}

	var cache *queryCache
	if cfg.Cache.Enabled {
		cache = newQueryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}

	return &Retriever{
		backend:    backend,
		embedder:   embedder,
		collection: collection,
		cfg:        cfg,
		synonyms:   synonyms,
		cache:      cache,
		logger:     logger,
		tracer:     observability.GetTracer("strand.rag"),
	}
}

// Retrieve returns up to opts.K chunks ranked by blended score. An empty
// result is not an error; backend failures surface as
// ErrVectorBackendUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Chunk, error) {
	start := time.Now()

	k := opts.K
	if k <= 0 {
		k = r.cfg.TopK
	}
	minScore := opts.MinScore
	if minScore < 0 {
		minScore = r.cfg.MinScore
	}

	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, observability.SpanRetrieval,
		trace.WithAttributes(attribute.Int("retrieval.k", k)),
	)
	defer span.End()

	key := cacheKey(normalized, k, minScore, opts.Filters)
	if r.cache != nil {
		if chunks, ok := r.cache.get(key); ok {
			span.SetAttributes(attribute.Bool("retrieval.cache_hit", true))
			return chunks, nil
		}
	}

	expanded := expandQuery(normalized, r.synonyms)

	searchCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	queryVec, err := r.embedder.Embed(searchCtx, expanded)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		observability.GetGlobalMetrics().RecordRetrieval(ctx, time.Since(start), 0, err)
		return nil, newRetrievalError("embedder", "Embed", "failed to embed query", query, err)
	}

	backendK := k
	if backendK < minBackendK {
		backendK = minBackendK
	}

	hits, err := r.backend.SearchWithFilter(searchCtx, r.collection, queryVec, backendK, opts.Filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		observability.GetGlobalMetrics().RecordRetrieval(ctx, time.Since(start), 0, err)
		return nil, newRetrievalError("vector_backend", "Search", "similarity search failed", query, err)
	}

	queryTokens := tokenSet(normalized)
	chunks := make([]Chunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		chunk := chunkFromResult(hit)
		chunk.Score = chunk.RawScore + keywordBonusWeight*jaccard(queryTokens, tokenSet(chunk.Text))
		chunks = append(chunks, chunk)
	}

	// Stable sort descending by blended score. Ties break by earlier
	// insertion timestamp, then by document id, so the ordering is
	// reproducible against an unchanged backend snapshot.
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if !chunks[i].InsertedAt.Equal(chunks[j].InsertedAt) {
			return chunks[i].InsertedAt.Before(chunks[j].InsertedAt)
		}
		return chunks[i].DocumentID < chunks[j].DocumentID
	})

	if len(chunks) > k {
		chunks = chunks[:k]
	}

	if r.cache != nil {
		r.cache.put(key, chunks)
	}

	observability.GetGlobalMetrics().RecordRetrieval(ctx, time.Since(start), len(chunks), nil)
	r.logger.Debug("retrieval complete",
		"query_len", len(query), "hits", len(hits), "returned", len(chunks))
	return chunks, nil
}

func chunkFromResult(hit vector.Result) Chunk {
	chunk := Chunk{
		ChunkID:  hit.ID,
		Text:     hit.Content,
		RawScore: hit.Score,
		Metadata: hit.Metadata,
	}
	if hit.Metadata != nil {
		if doc, ok := hit.Metadata["document_id"].(string); ok {
			chunk.DocumentID = doc
		}
		if chunk.Text == "" {
			if content, ok := hit.Metadata["content"].(string); ok {
				chunk.Text = content
			}
		}
		chunk.InsertedAt = parseInsertedAt(hit.Metadata["inserted_at"])
	}
	if chunk.DocumentID == "" {
		chunk.DocumentID = hit.ID
	}
	return chunk
}

// parseInsertedAt accepts the forms metadata round-trips through the
// backends: RFC3339 strings and unix-nano integers.
func parseInsertedAt(v any) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	case int64:
		return time.Unix(0, t)
	case float64:
		return time.Unix(0, int64(t))
	}
	return time.Time{}
}
