package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/strandkit/strand/pkg/httpclient"
)

// maxResponseBytes caps how much of a remote response a tool observation
// may carry back into the reasoning loop.
const maxResponseBytes = 64 * 1024

type webRequestInput struct {
	URL    string            `json:"url" jsonschema:"description=The URL to request"`
	Method string            `json:"method,omitempty" jsonschema:"enum=GET,enum=HEAD,description=HTTP method. Defaults to GET"`
	Header map[string]string `json:"header,omitempty" jsonschema:"description=Additional request headers"`
}

// WebRequestTool performs read-only HTTP requests against an allowlist of
// hosts. An empty allowlist denies everything.
type WebRequestTool struct {
	name         string
	allowedHosts map[string]bool
	client       *httpclient.Client
}

func NewWebRequestTool(name string, allowedHosts []string) *WebRequestTool {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, host := range allowedHosts {
		allowed[strings.ToLower(host)] = true
	}
	return &WebRequestTool{
		name:         name,
		allowedHosts: allowed,
		client: httpclient.New(
			httpclient.WithMaxRetries(1),
			httpclient.WithHeaderParser(httpclient.ParseGenericHeaders),
		),
	}
}

func (t *WebRequestTool) GetName() string { return t.name }

func (t *WebRequestTool) GetDescription() string {
	return "Fetch the contents of a URL from an allowed host"
}

func (t *WebRequestTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.GetDescription(),
		InputSchema: GenerateSchema(&webRequestInput{}),
	}
}

func (t *WebRequestTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	var in webRequestInput
	if err := decodeArgs(args, &in); err != nil {
		return ToolResult{}, err
	}

	parsed, err := url.Parse(in.URL)
	if err != nil || parsed.Hostname() == "" {
		wrapped := fmt.Errorf("invalid url %q", in.URL)
		return ToolResult{Success: false, Error: wrapped.Error()}, wrapped
	}
	if !t.allowedHosts[strings.ToLower(parsed.Hostname())] {
		wrapped := fmt.Errorf("host %q is not in the allowed list", parsed.Hostname())
		return ToolResult{Success: false, Error: wrapped.Error()}, wrapped
	}

	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodHead {
		wrapped := fmt.Errorf("method %s is not permitted", method)
		return ToolResult{Success: false, Error: wrapped.Error()}, wrapped
	}

	req, err := http.NewRequestWithContext(ctx, method, in.URL, nil)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, err
	}
	for k, v := range in.Header {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return ToolResult{Success: false, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, err
	}
	if resp.StatusCode >= 400 {
		wrapped := fmt.Errorf("request failed with status %d", resp.StatusCode)
		return ToolResult{Success: false, Error: wrapped.Error(), Content: string(body)}, wrapped
	}

	return ToolResult{
		Success:  true,
		Content:  string(body),
		Metadata: map[string]any{"status_code": resp.StatusCode},
	}, nil
}
