package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/agent"
	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/conversation"
	"github.com/strandkit/strand/pkg/rag"
)

type fakeAgentRunner struct {
	answers  map[string]string
	failRole string
	inputs   []string
	roles    []string
}

func (f *fakeAgentRunner) Execute(ctx context.Context, def *config.AgentConfig, input string, chunks []rag.Chunk, history []agent.Message, opts agent.Options) (*agent.Result, error) {
	f.inputs = append(f.inputs, input)
	f.roles = append(f.roles, def.Role)
	if def.Role == f.failRole {
		return nil, errors.New("provider chain exhausted")
	}
	answer := f.answers[def.Role]
	if answer == "" {
		answer = fmt.Sprintf("%s output", def.Role)
	}
	return &agent.Result{Answer: answer, Role: def.Role, Success: true}, nil
}

type fakeRetriever struct {
	chunks []rag.Chunk
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, opts rag.Options) ([]rag.Chunk, error) {
	f.calls++
	return f.chunks, f.err
}

func testAgents() map[string]*config.AgentConfig {
	agents := config.DefaultAgentConfigs()
	for name, def := range agents {
		def.SetDefaults(name)
	}
	return agents
}

func testWorkflows() map[string]*config.WorkflowConfig {
	workflows := config.DefaultWorkflowConfigs()
	for name, wf := range workflows {
		wf.SetDefaults(name)
	}
	return workflows
}

func TestRun_UnknownWorkflow(t *testing.T) {
	r := NewRunner(testWorkflows(), testAgents(), &fakeAgentRunner{}, nil, nil, nil)

	_, err := r.Run(context.Background(), "does_not_exist", "input", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownWorkflow))
}

func TestRun_SimpleResearch(t *testing.T) {
	exec := &fakeAgentRunner{answers: map[string]string{"researcher": "research findings"}}
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, nil, nil)

	result, err := r.Run(context.Background(), "simple_research", "What is Go?", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "simple_research", result.WorkflowName)
	assert.Equal(t, "research findings", result.FinalAnswer)
	assert.Equal(t, []string{"researcher"}, result.AgentsUsed)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "What is Go?", exec.inputs[0])
	assert.False(t, result.ContextUsed, "no retriever and no history on this run")
}

func TestRun_MultiAgentChain(t *testing.T) {
	exec := &fakeAgentRunner{answers: map[string]string{
		"researcher": "raw facts",
		"analyst":    "interpreted facts",
		"writer":     "polished prose",
	}}
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, nil, nil)

	result, err := r.Run(context.Background(), "research_analyze_write", "Analyze AI trends", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"researcher", "analyst", "writer"}, result.AgentsUsed)
	require.Len(t, result.Steps, 3)
	for _, step := range result.Steps {
		require.NotNil(t, step.Result)
		assert.NotEmpty(t, step.Result.Answer)
	}
	assert.Equal(t, "polished prose", result.FinalAnswer, "final answer is the writer's output, not a concatenation")

	assert.Contains(t, exec.inputs[1], "raw facts")
	assert.Contains(t, exec.inputs[1], "previous step (researcher)")
	assert.Contains(t, exec.inputs[2], "interpreted facts")
}

func TestRun_StepFailureAbortsWithoutPersistence(t *testing.T) {
	exec := &fakeAgentRunner{failRole: "analyst"}
	store := conversation.NewMemoryStore()
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, store, nil)

	opts := &config.RequestOptions{SaveConversation: true, ConversationID: "c1"}
	result, err := r.Run(context.Background(), "research_analyze_write", "input", opts)
	require.NoError(t, err, "step failure is reported through the result, not as an error")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "analyst")
	assert.Len(t, result.Steps, 2, "workflow aborts at the failing step")
	assert.Empty(t, result.FinalAnswer)

	_, loadErr := store.LoadConversation(context.Background(), "c1", 0)
	assert.True(t, errors.Is(loadErr, conversation.ErrConversationNotFound), "no partial persistence on abort")
}

func TestRun_PersistsExactlyOneTurnOnSuccess(t *testing.T) {
	exec := &fakeAgentRunner{answers: map[string]string{"researcher": "the answer"}}
	store := conversation.NewMemoryStore()
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, store, nil)

	opts := &config.RequestOptions{SaveConversation: true}
	result, err := r.Run(context.Background(), "simple_research", "question", opts)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.ConversationID)

	messages, err := store.LoadConversation(context.Background(), result.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2, "exactly one user/assistant turn per successful run")
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, "question", messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Equal(t, "the answer", messages[1].Content)
}

func TestRun_NoPersistenceWithoutOptIn(t *testing.T) {
	exec := &fakeAgentRunner{}
	store := conversation.NewMemoryStore()
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, store, nil)

	result, err := r.Run(context.Background(), "simple_research", "question", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.ConversationID)

	page, err := store.ListConversations(context.Background(), 0, 0, false)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRun_RetrievalFeedsFirstStepOnly(t *testing.T) {
	retriever := &fakeRetriever{chunks: []rag.Chunk{{Text: "context"}}}
	exec := &fakeAgentRunner{}
	r := NewRunner(testWorkflows(), testAgents(), exec, retriever, nil, nil)

	result, err := r.Run(context.Background(), "research_analyze_write", "question", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, retriever.calls, "one retrieval per run")
	assert.True(t, result.ContextUsed)
}

func TestRun_RetrievalFailureDoesNotAbort(t *testing.T) {
	retriever := &fakeRetriever{err: rag.ErrVectorBackendUnavailable}
	exec := &fakeAgentRunner{answers: map[string]string{"researcher": "answered without context"}}
	r := NewRunner(testWorkflows(), testAgents(), exec, retriever, nil, nil)

	result, err := r.Run(context.Background(), "simple_research", "question", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "answered without context", result.FinalAnswer)
	assert.False(t, result.ContextUsed)
}

func TestRun_ConversationHistoryReachesAgent(t *testing.T) {
	store := conversation.NewMemoryStore()
	require.NoError(t, store.AppendMessages(context.Background(), "c1", []conversation.Message{
		{Role: conversation.RoleUser, Content: "earlier question"},
		{Role: conversation.RoleAssistant, Content: "earlier answer"},
	}))

	var gotHistory []agent.Message
	exec := &recordingRunner{onExecute: func(history []agent.Message) { gotHistory = history }}
	r := NewRunner(testWorkflows(), testAgents(), exec, nil, store, nil)

	opts := &config.RequestOptions{ConversationID: "c1"}
	result, err := r.Run(context.Background(), "simple_research", "follow-up", opts)
	require.NoError(t, err)
	require.Len(t, gotHistory, 2)
	assert.Equal(t, "earlier question", gotHistory[0].Content)
	assert.True(t, result.ContextUsed, "loaded history counts as context")
}

type recordingRunner struct {
	onExecute func(history []agent.Message)
}

func (r *recordingRunner) Execute(ctx context.Context, def *config.AgentConfig, input string, chunks []rag.Chunk, history []agent.Message, opts agent.Options) (*agent.Result, error) {
	if r.onExecute != nil {
		r.onExecute(history)
	}
	return &agent.Result{Answer: "ok", Role: def.Role, Success: true}, nil
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("Q: {{initial}}\nR: {{step.0}}", "the question", []string{"the research"})
	assert.Equal(t, "Q: the question\nR: the research", out)
}
