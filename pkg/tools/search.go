package tools

import (
	"context"
	"fmt"
	"strings"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"description=The search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"minimum=1,description=Number of results to return"`
}

// SearchTool exposes the retrieval pipeline to agents.
type SearchTool struct {
	name     string
	provider SearchProvider
}

func NewSearchTool(name string, provider SearchProvider) *SearchTool {
	return &SearchTool{name: name, provider: provider}
}

func (t *SearchTool) GetName() string { return t.name }

func (t *SearchTool) GetDescription() string {
	return "Search the indexed knowledge base for relevant context"
}

func (t *SearchTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.GetDescription(),
		InputSchema: GenerateSchema(&searchInput{}),
	}
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	var in searchInput
	if err := decodeArgs(args, &in); err != nil {
		return ToolResult{}, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return ToolResult{Success: false, Error: "query cannot be empty"}, fmt.Errorf("query cannot be empty")
	}

	content, err := t.provider.Search(ctx, in.Query, in.TopK)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, err
	}
	if content == "" {
		content = "No relevant results found."
	}
	return ToolResult{Success: true, Content: content}, nil
}
