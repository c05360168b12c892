package llms

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/httpclient"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server. No API key required.
type OllamaProvider struct {
	cfg        *config.ProviderConfig
	httpClient *httpclient.Client
	baseURL    string
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

func NewOllamaProvider(cfg *config.ProviderConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaProvider{
		cfg:        cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseGenericHeaders),
		baseURL:    baseURL,
	}
}

func (p *OllamaProvider) Name() string  { return p.cfg.Name }
func (p *OllamaProvider) Model() string { return p.cfg.Model }
func (p *OllamaProvider) Close() error  { return nil }

func (p *OllamaProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	request := ollamaRequest{
		Model:  p.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: params.temperature(p.cfg.Temperature),
			NumPredict:  params.maxTokens(p.cfg.MaxTokens),
		},
	}

	var response ollamaResponse
	if err := postJSON(ctx, p.httpClient, "Ollama", p.baseURL+"/api/generate", nil, request, &response); err != nil {
		return nil, err
	}

	if response.Error != "" {
		return nil, fmt.Errorf("Ollama API error: %s", response.Error)
	}

	return &Generation{
		Text:             response.Response,
		Model:            p.cfg.Model,
		PromptTokens:     response.PromptEvalCount,
		CompletionTokens: response.EvalCount,
		TotalTokens:      response.PromptEvalCount + response.EvalCount,
	}, nil
}
