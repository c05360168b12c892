package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/httpclient"
)

func newProviderHTTPClient(cfg *config.ProviderConfig, parser httpclient.RateLimitHeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithHeaderParser(parser),
	)
}

// postJSON sends the payload, checks the status, and decodes the response
// body into out. Retry-exhaustion errors from the transport pass through
// unchanged so the dispatcher can classify them.
func postJSON(ctx context.Context, client *httpclient.Client, providerName, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		var retryable *httpclient.RetryableError
		if errors.As(err, &retryable) {
			return err
		}
		if resp != nil {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &APIError{
				Provider:   providerName,
				StatusCode: resp.StatusCode,
				Message:    string(bytes.TrimSpace(detail)),
			}
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", providerName, err)
	}
	return nil
}

func (p GenerateParams) temperature(def *float64) float64 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	if def != nil {
		return *def
	}
	return 0.7
}

func (p GenerateParams) maxTokens(def int) int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	if def > 0 {
		return def
	}
	return 4096
}
