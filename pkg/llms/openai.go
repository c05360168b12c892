package llms

import (
	"context"
	"fmt"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/httpclient"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to the OpenAI chat completions API.
type OpenAIProvider struct {
	cfg        *config.ProviderConfig
	httpClient *httpclient.Client
	baseURL    string
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage openAIUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewOpenAIProvider(cfg *config.ProviderConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseOpenAIHeaders),
		baseURL:    baseURL,
	}
}

func (p *OpenAIProvider) Name() string  { return p.cfg.Name }
func (p *OpenAIProvider) Model() string { return p.cfg.Model }
func (p *OpenAIProvider) Close() error  { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	request := openAIRequest{
		Model:       p.cfg.Model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:   params.maxTokens(p.cfg.MaxTokens),
		Temperature: params.temperature(p.cfg.Temperature),
	}

	var response openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if err := postJSON(ctx, p.httpClient, "OpenAI", p.baseURL+"/chat/completions", headers, request, &response); err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return &Generation{
		Text:             response.Choices[0].Message.Content,
		Model:            p.cfg.Model,
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}, nil
}
