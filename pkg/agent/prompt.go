package agent

import (
	"fmt"
	"strings"

	"github.com/strandkit/strand/pkg/config"
	"github.com/strandkit/strand/pkg/rag"
	"github.com/strandkit/strand/pkg/tools"
)

// buildPrompt assembles the model input: system prompt and goal, the tool
// contract, retrieved context, conversation history, prior reasoning
// steps, and finally the user input.
func buildPrompt(def *config.AgentConfig, input string, chunks []rag.Chunk, history []Message, steps []Step, toolInfos []tools.ToolInfo) string {
	var b strings.Builder

	if def.SystemPrompt != "" {
		b.WriteString(def.SystemPrompt)
		b.WriteString("\n")
	}
	if def.Goal != "" {
		fmt.Fprintf(&b, "Your goal: %s\n", def.Goal)
	}

	if len(toolInfos) > 0 {
		b.WriteString("\nYou may call the following tools:\n")
		for _, info := range toolInfos {
			fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
		}
		b.WriteString("\nRespond with exactly one of:\n")
		b.WriteString("  FINAL: <your complete answer>\n")
		b.WriteString("  TOOL: <tool_name> {\"arg\": \"value\"}\n")
	} else {
		b.WriteString("\nRespond with:\n  FINAL: <your complete answer>\n")
	}

	if len(chunks) > 0 {
		b.WriteString("\nRetrieved context:\n")
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, chunk.Text)
		}
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	if len(steps) > 0 {
		b.WriteString("\nYour previous steps:\n")
		for i, step := range steps {
			if step.Thought != "" {
				fmt.Fprintf(&b, "Step %d thought: %s\n", i+1, step.Thought)
			}
			if step.Action != "" {
				fmt.Fprintf(&b, "Step %d action: %s\n", i+1, step.Action)
			}
			if step.Observation != "" {
				fmt.Fprintf(&b, "Step %d observation (%s): %s\n", i+1, step.Status, step.Observation)
			}
		}
	}

	fmt.Fprintf(&b, "\nUser input: %s\n", input)
	return b.String()
}
