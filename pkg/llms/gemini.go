package llms

import (
	"context"
	"fmt"
	"strings"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/httpclient"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Gemini generateContent API.
type GeminiProvider struct {
	cfg        *config.ProviderConfig
	httpClient *httpclient.Client
	baseURL    string
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func NewGeminiProvider(cfg *config.ProviderConfig) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiProvider{
		cfg:        cfg,
		httpClient: newProviderHTTPClient(cfg, httpclient.ParseGenericHeaders),
		baseURL:    baseURL,
	}
}

func (p *GeminiProvider) Name() string  { return p.cfg.Name }
func (p *GeminiProvider) Model() string { return p.cfg.Model }
func (p *GeminiProvider) Close() error  { return nil }

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	request := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     params.temperature(p.cfg.Temperature),
			MaxOutputTokens: params.maxTokens(p.cfg.MaxTokens),
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.cfg.Model)
	headers := map[string]string{"x-goog-api-key": p.cfg.APIKey}

	var response geminiResponse
	if err := postJSON(ctx, p.httpClient, "Gemini", url, headers, request, &response); err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, fmt.Errorf("Gemini API error: %s", response.Error.Message)
	}
	if len(response.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	usage := response.UsageMetadata
	return &Generation{
		Text:             text.String(),
		Model:            p.cfg.Model,
		PromptTokens:     usage.PromptTokenCount,
		CompletionTokens: usage.CandidatesTokenCount,
		TotalTokens:      usage.TotalTokenCount,
	}, nil
}
