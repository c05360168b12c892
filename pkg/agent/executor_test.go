package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/llms"
	"github.com/strandkit/strand/pkg/tools"
)

type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
	available bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, params llms.GenerateParams) (*llms.Generation, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	if g.calls >= len(g.responses) {
		return nil, errors.New("script exhausted")
	}
	text := g.responses[g.calls]
	g.calls++
	return &llms.Generation{Text: text, Provider: "fake", Model: "fake-1"}, nil
}

func (g *scriptedGenerator) HasProviders() bool { return g.available }

type fakeToolExec struct {
	result tools.ToolResult
	err    error
	calls  int
	last   map[string]any
}

func (f *fakeToolExec) Execute(ctx context.Context, name string, args map[string]any) (tools.ToolResult, error) {
	f.calls++
	f.last = args
	return f.result, f.err
}

func (f *fakeToolExec) List() []tools.ToolInfo {
	return []tools.ToolInfo{{Name: "search", Description: "search the index"}}
}

func testDef() *config.AgentConfig {
	def := &config.AgentConfig{Role: "researcher", Tools: []string{"search"}}
	def.SetDefaults("researcher")
	return def
}

func TestExecute_FinalAnswer(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{"FINAL: the answer is 42"}}
	e := NewExecutor(gen, &fakeToolExec{}, nil)

	result, err := e.Execute(context.Background(), testDef(), "what is the answer", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "the answer is 42", result.Answer)
	assert.Equal(t, "fake", result.Provider)
	assert.False(t, result.Truncated)
	assert.False(t, result.Fallback)
	assert.Greater(t, result.TotalTokens, 0)
}

func TestExecute_ToolCallThenFinal(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{
		`I should look this up.` + "\n" + `TOOL: search {"query": "go generics"}`,
		"FINAL: generics landed in Go 1.18",
	}}
	toolExec := &fakeToolExec{result: tools.ToolResult{Success: true, Content: "Go 1.18 release notes"}}
	e := NewExecutor(gen, toolExec, nil)

	result, err := e.Execute(context.Background(), testDef(), "when did generics land", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "generics landed in Go 1.18", result.Answer)
	assert.Equal(t, []string{"search"}, result.ToolsUsed)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepStatusOK, result.Steps[0].Status)
	assert.Equal(t, "Go 1.18 release notes", result.Steps[0].Observation)
	assert.Equal(t, "I should look this up.", result.Steps[0].Thought)
	assert.Equal(t, 1, toolExec.calls)
	assert.Equal(t, "go generics", toolExec.last["query"])
}

func TestExecute_ToolFailureAbsorbed(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{
		`TOOL: search {"query": "x"}`,
		"FINAL: search was unavailable, answering from general knowledge",
	}}
	toolErr := &tools.ToolError{Tool: "search", Kind: tools.ErrToolExecutionFailed, Message: "backend down"}
	toolExec := &fakeToolExec{result: tools.ToolResult{Success: false, Error: "backend down"}, err: toolErr}
	e := NewExecutor(gen, toolExec, nil)

	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success, "tool failure must not abort the execution")
	assert.Contains(t, result.ToolsUsed, "search")
	require.NotEmpty(t, result.Steps)
	assert.Equal(t, StepStatusError, result.Steps[0].Status)
	assert.Contains(t, result.Steps[0].Observation, "failed")
}

func TestExecute_InvalidInputObservationHintsSchema(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{
		`TOOL: search {"querry": "typo"}`,
		"FINAL: done",
	}}
	toolErr := &tools.ToolError{Tool: "search", Kind: tools.ErrToolInputInvalid, Message: "bad args"}
	toolExec := &fakeToolExec{err: toolErr}
	e := NewExecutor(gen, toolExec, nil)

	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Steps[0].Observation, "schema")
}

func TestExecute_UnparseableBecomesFinal(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{"just some plain prose"}}
	e := NewExecutor(gen, &fakeToolExec{}, nil)

	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.ParseRecovery)
	assert.Equal(t, "just some plain prose", result.Answer)
}

func TestExecute_StepLimitTruncates(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{
		`TOOL: search {"query": "a"}`,
		`TOOL: search {"query": "b"}`,
	}}
	toolExec := &fakeToolExec{result: tools.ToolResult{Success: true, Content: "partial findings"}}
	e := NewExecutor(gen, toolExec, nil)

	two := 2
	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{MaxSteps: &two})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Contains(t, result.Answer, "partial findings")
	assert.Len(t, result.Steps, 2)
}

func TestExecute_ZeroMaxSteps(t *testing.T) {
	zero := 0

	gen := &scriptedGenerator{available: true, responses: []string{"FINAL: direct answer"}}
	e := NewExecutor(gen, &fakeToolExec{}, nil)
	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{MaxSteps: &zero})
	require.NoError(t, err)
	assert.Equal(t, "direct answer", result.Answer)
	assert.False(t, result.Truncated)

	gen = &scriptedGenerator{available: true, responses: []string{`TOOL: search {"query": "x"}`}}
	toolExec := &fakeToolExec{}
	e = NewExecutor(gen, toolExec, nil)
	result, err = e.Execute(context.Background(), testDef(), "query", nil, nil, Options{MaxSteps: &zero})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 0, toolExec.calls, "no tool runs when the step budget is zero")
}

func TestExecute_NoProvidersReturnsStub(t *testing.T) {
	gen := &scriptedGenerator{available: false}
	e := NewExecutor(gen, &fakeToolExec{}, nil)

	result, err := e.Execute(context.Background(), testDef(), "what about kubernetes", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Fallback)
	assert.Contains(t, result.Answer, "researcher")
	assert.Contains(t, result.Answer, "what about kubernetes")
	assert.Equal(t, 0, gen.calls)
}

func TestExecute_BlankInputAsksForClarification(t *testing.T) {
	gen := &scriptedGenerator{available: true}
	toolExec := &fakeToolExec{}
	e := NewExecutor(gen, toolExec, nil)

	result, err := e.Execute(context.Background(), testDef(), "   \n ", nil, nil, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, gen.calls, "no provider call for blank input")
	assert.Equal(t, 0, toolExec.calls)
	assert.NotEmpty(t, result.Answer)
}

func TestExecute_UnpermittedToolBecomesErrorObservation(t *testing.T) {
	gen := &scriptedGenerator{available: true, responses: []string{
		`TOOL: calculator {"expression": "1+1"}`,
		"FINAL: done without the calculator",
	}}
	toolExec := &fakeToolExec{}
	e := NewExecutor(gen, toolExec, nil)

	result, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, toolExec.calls)
	assert.NotContains(t, result.ToolsUsed, "calculator")
	assert.Equal(t, StepStatusError, result.Steps[0].Status)
	assert.Contains(t, result.Steps[0].Observation, "not permitted")
}

func TestExecute_DispatcherFailureIsCatastrophic(t *testing.T) {
	gen := &scriptedGenerator{available: true, err: errors.New("wire failure")}
	e := NewExecutor(gen, &fakeToolExec{}, nil)

	_, err := e.Execute(context.Background(), testDef(), "query", nil, nil, Options{})
	require.Error(t, err)
}
