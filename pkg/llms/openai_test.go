package llms

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

func newTestProviderConfig(name, baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:    name,
		Kind:    config.ProviderOpenAI,
		Model:   "gpt-4o-mini",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}
}

func openAICompletion(text string) openAIResponse {
	var resp openAIResponse
	resp.Choices = append(resp.Choices, struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	}{
		Message:      openAIMessage{Role: "assistant", Content: text},
		FinishReason: "stop",
	})
	resp.Usage = openAIUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	return resp
}

func TestOpenAIProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)

		json.NewEncoder(w).Encode(openAICompletion("hi there"))
	}))
	defer server.Close()

	p := NewOpenAIProvider(newTestProviderConfig("openai", server.URL))
	gen, err := p.Generate(context.Background(), "hello", GenerateParams{})
	require.NoError(t, err)

	assert.Equal(t, "hi there", gen.Text)
	assert.Equal(t, 10, gen.PromptTokens)
	assert.Equal(t, 5, gen.CompletionTokens)
	assert.Equal(t, 15, gen.TotalTokens)
}

// Chain of two providers where the first answers 503: the dispatcher must
// return a single result from the second and mark the first backing off.
func TestProviderFallback_FirstReturns503(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAICompletion("answer from b"))
	}))
	defer up.Close()

	a := NewOpenAIProvider(newTestProviderConfig("a", down.URL))
	b := NewOpenAIProvider(newTestProviderConfig("b", up.URL))
	d := NewDispatcher([]LLMProvider{a, b}, nil)

	gen, err := d.Generate(context.Background(), "hello", GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "b", gen.Provider)
	assert.Equal(t, "answer from b", gen.Text)
	assert.True(t, d.BackingOff("a"))
}

func TestOpenAIProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(newTestProviderConfig("openai", server.URL))
	_, err := p.Generate(context.Background(), "hello", GenerateParams{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider("")
	gen, err := p.Generate(context.Background(), "what is up", GenerateParams{})
	require.NoError(t, err)
	assert.True(t, gen.Fallback)
	assert.NotEmpty(t, gen.Text)

	// Two calls with the same prompt produce the same text.
	again, err := p.Generate(context.Background(), "what is up", GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, gen.Text, again.Text)
}

func TestNewProviderChain(t *testing.T) {
	cfgs := []*config.ProviderConfig{
		{Name: "a", Kind: config.ProviderOpenAI, Model: "gpt-4o"},
		{Name: "s", Kind: config.ProviderStub},
	}
	providers, err := NewProviderChain(cfgs)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "a", providers[0].Name())

	_, err = NewProviderChain([]*config.ProviderConfig{{Kind: "bogus"}})
	assert.Error(t, err)
}
