package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/embedders"
	"github.com/strandkit/strand/pkg/vector"
)

// Ingester runs the document pipeline: extract, chunk, embed, upsert.
// Every stored chunk carries the metadata the retriever needs for
// reranking and tie-breaking.
type Ingester struct {
	extractors []Extractor
	chunker    *Chunker
	embedder   embedders.EmbedderProvider
	backend    vector.Provider
	collection string
	maxSize    int64
	logger     *slog.Logger
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Source     string `json:"source,omitempty"`
}

func NewIngester(backend vector.Provider, embedder embedders.EmbedderProvider, collection string, cfg config.IngestConfig, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		extractors: DefaultExtractors(),
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder:   embedder,
		backend:    backend,
		collection: collection,
		maxSize:    cfg.MaxFileSize,
		logger:     logger,
	}
}

// IngestFile extracts text from the file at path and indexes it. The
// returned document id identifies all chunks of the file.
func (in *Ingester) IngestFile(ctx context.Context, path string, metadata map[string]any) (*IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if in.maxSize > 0 && info.Size() > in.maxSize {
		return nil, fmt.Errorf("file %s exceeds maximum ingest size (%d > %d bytes)", path, info.Size(), in.maxSize)
	}

	extractor, err := FindExtractor(in.extractors, path)
	if err != nil {
		return nil, err
	}
	text, err := extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["source"] = filepath.Base(path)
	merged["media_type"] = mediaTypeFor(path)

	result, err := in.IngestText(ctx, text, merged)
	if err != nil {
		return nil, err
	}
	result.Source = path
	return result, nil
}

// IngestText chunks and indexes already-extracted text.
func (in *Ingester) IngestText(ctx context.Context, text string, metadata map[string]any) (*IngestResult, error) {
	chunks := in.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no content to ingest")
	}

	docID := uuid.New().String()
	insertedAt := time.Now().UTC().Format(time.RFC3339Nano)

	for i, chunkText := range chunks {
		vec, err := in.embedder.Embed(ctx, chunkText)
		if err != nil {
			return nil, newRetrievalError("embedder", "Embed", fmt.Sprintf("failed to embed chunk %d", i), "", err)
		}

		chunkMeta := make(map[string]any, len(metadata)+4)
		for k, v := range metadata {
			chunkMeta[k] = v
		}
		chunkMeta["document_id"] = docID
		chunkMeta["chunk_index"] = i
		chunkMeta["content"] = chunkText
		chunkMeta["inserted_at"] = insertedAt

		chunkID := fmt.Sprintf("%s-%d", docID, i)
		if err := in.backend.Upsert(ctx, in.collection, chunkID, vec, chunkMeta); err != nil {
			return nil, newRetrievalError("vector_backend", "Upsert", fmt.Sprintf("failed to store chunk %d", i), "", err)
		}
	}

	in.logger.Info("document ingested", "document_id", docID, "chunks", len(chunks))
	return &IngestResult{DocumentID: docID, Chunks: len(chunks)}, nil
}

func mediaTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".pdf":
		return "pdf"
	case ".docx":
		return "docx"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}
