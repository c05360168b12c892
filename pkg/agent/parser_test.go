package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompletion_Final(t *testing.T) {
	out := parseCompletion("Thinking about it.\nFINAL: the answer")
	assert.Equal(t, outcomeFinal, out.kind)
	assert.Equal(t, "the answer", out.answer)
	assert.Equal(t, "Thinking about it.", out.thought)
}

func TestParseCompletion_FinalCaseInsensitive(t *testing.T) {
	out := parseCompletion("final: lowercased")
	assert.Equal(t, outcomeFinal, out.kind)
	assert.Equal(t, "lowercased", out.answer)
}

func TestParseCompletion_ToolCall(t *testing.T) {
	out := parseCompletion(`TOOL: search {"query": "go", "top_k": 3}`)
	require.Equal(t, outcomeToolCall, out.kind)
	assert.Equal(t, "search", out.tool)
	assert.Equal(t, "go", out.args["query"])
	assert.Equal(t, float64(3), out.args["top_k"])
}

func TestParseCompletion_ToolCallNoArgs(t *testing.T) {
	out := parseCompletion("TOOL: current_time")
	require.Equal(t, outcomeToolCall, out.kind)
	assert.Equal(t, "current_time", out.tool)
	assert.Empty(t, out.args)
}

func TestParseCompletion_FirstDirectiveWins(t *testing.T) {
	out := parseCompletion("FINAL: first\nTOOL: search {}")
	assert.Equal(t, outcomeFinal, out.kind)
	assert.Equal(t, "first", out.answer)
}

func TestParseCompletion_MalformedToolArgsIsNotAToolCall(t *testing.T) {
	out := parseCompletion("TOOL: search {not json")
	assert.Equal(t, outcomeUnparseable, out.kind)
}

func TestParseCompletion_Unparseable(t *testing.T) {
	out := parseCompletion("plain prose with no directive")
	assert.Equal(t, outcomeUnparseable, out.kind)
	assert.Equal(t, "plain prose with no directive", out.answer)
}
