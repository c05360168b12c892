package config

import (
	"fmt"
	"time"
)

// RetrieverConfig configures the retrieval pipeline and its cache.
type RetrieverConfig struct {
	// TopK is the default number of chunks returned to callers.
	TopK int `yaml:"top_k"`

	// MinScore drops chunks below this similarity threshold.
	MinScore float64 `yaml:"min_score"`

	// Timeout bounds one vector backend call.
	Timeout time.Duration `yaml:"timeout"`

	Cache RetrievalCacheConfig `yaml:"cache"`

	// Synonyms extends the built-in expansion table. Keys are query
	// terms, values are appended expansions.
	Synonyms map[string][]string `yaml:"synonyms"`

	Ingest IngestConfig `yaml:"ingest"`
}

// RetrievalCacheConfig configures the best-effort LRU cache.
type RetrievalCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// IngestConfig configures the document ingestion pipeline.
type IngestConfig struct {
	// ChunkSize is the window length in words.
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of words shared between neighbors.
	ChunkOverlap int `yaml:"chunk_overlap"`

	// MaxFileSize caps a single source document.
	MaxFileSize int64 `yaml:"max_file_size"`
}

func (c *RetrieverConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 256
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 300
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 50
	}
	if c.Ingest.MaxFileSize == 0 {
		c.Ingest.MaxFileSize = 50 * 1024 * 1024
	}
}

func (c *RetrieverConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap must be smaller than chunk_size")
	}
	return nil
}
