package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/config"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"hello"}, req.Input)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		})
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(&config.EmbedderConfig{
		Kind:    "openai",
		Model:   "text-embedding-3-small",
		BaseURL: server.URL,
		APIKey:  "key",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 1536, e.Dimension())
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(&config.EmbedderConfig{Kind: "openai"})
	assert.Error(t, err)
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.5, 0.25},
		})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(&config.EmbedderConfig{
		Kind:    "ollama",
		Model:   "nomic-embed-text",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestNewEmbedder_UnknownKind(t *testing.T) {
	_, err := NewEmbedder(&config.EmbedderConfig{Kind: "cohere"})
	assert.Error(t, err)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder()

	a, err := e.Embed(context.Background(), "lease sweep interval")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "lease sweep interval")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, e.Dimension())

	c, err := e.Embed(context.Background(), "completely different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Unit norm for cosine comparisons.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}
