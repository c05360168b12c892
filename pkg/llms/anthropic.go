package llms

import (
	"context"
	"fmt"
	"strings"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/httpclient"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	cfg        *config.ProviderConfig
	httpClient *httpclient.Client
	baseURL    string
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicProvider(cfg *config.ProviderConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		cfg:        cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseAnthropicHeaders),
		baseURL:    baseURL,
	}
}

func (p *AnthropicProvider) Name() string  { return p.cfg.Name }
func (p *AnthropicProvider) Model() string { return p.cfg.Model }
func (p *AnthropicProvider) Close() error  { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	request := anthropicRequest{
		Model:       p.cfg.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   params.maxTokens(p.cfg.MaxTokens),
		Temperature: params.temperature(p.cfg.Temperature),
	}

	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": anthropicAPIVersion,
	}

	var response anthropicResponse
	if err := postJSON(ctx, p.httpClient, "Anthropic", p.baseURL+"/messages", headers, request, &response); err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, fmt.Errorf("Anthropic API error: %s", response.Error.Message)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content returned")
	}

	usage := response.Usage
	return &Generation{
		Text:             text.String(),
		Model:            p.cfg.Model,
		PromptTokens:     usage.InputTokens,
		CompletionTokens: usage.OutputTokens,
		TotalTokens:      usage.InputTokens + usage.OutputTokens,
	}, nil
}
