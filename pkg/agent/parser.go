package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyToolName = errors.New("tool directive has no tool name")

const (
	finalMarker = "FINAL:"
	toolMarker  = "TOOL:"
)

type outcomeKind int

const (
	outcomeFinal outcomeKind = iota
	outcomeToolCall
	outcomeUnparseable
)

// completionOutcome is the parsed form of one model completion. Thought
// captures any free text before the directive line.
type completionOutcome struct {
	kind    outcomeKind
	thought string
	answer  string
	tool    string
	args    map[string]any
}

// parseCompletion scans the completion for a FINAL: or TOOL: directive.
// Directives may follow thought lines; the first directive wins. Anything
// else is unparseable and gets promoted to a final answer by the caller.
func parseCompletion(text string) completionOutcome {
	var thoughtLines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if rest, ok := cutMarker(trimmed, finalMarker); ok {
			return completionOutcome{
				kind:    outcomeFinal,
				thought: strings.TrimSpace(strings.Join(thoughtLines, "\n")),
				answer:  rest,
			}
		}
		if rest, ok := cutMarker(trimmed, toolMarker); ok {
			name, args, err := parseToolDirective(rest)
			if err != nil {
				thoughtLines = append(thoughtLines, line)
				continue
			}
			return completionOutcome{
				kind:    outcomeToolCall,
				thought: strings.TrimSpace(strings.Join(thoughtLines, "\n")),
				tool:    name,
				args:    args,
			}
		}
		thoughtLines = append(thoughtLines, line)
	}

	return completionOutcome{kind: outcomeUnparseable, answer: strings.TrimSpace(text)}
}

func cutMarker(line, marker string) (string, bool) {
	if len(line) < len(marker) || !strings.EqualFold(line[:len(marker)], marker) {
		return "", false
	}
	return strings.TrimSpace(line[len(marker):]), true
}

// parseToolDirective splits "name {json args}". Missing args mean an
// empty argument map.
func parseToolDirective(rest string) (string, map[string]any, error) {
	rest = strings.TrimSpace(rest)
	name := rest
	rawArgs := ""
	if idx := strings.IndexAny(rest, " \t{"); idx >= 0 {
		if rest[idx] == '{' {
			name = strings.TrimSpace(rest[:idx])
			rawArgs = rest[idx:]
		} else {
			name = rest[:idx]
			rawArgs = strings.TrimSpace(rest[idx:])
		}
	}
	if name == "" {
		return "", nil, errEmptyToolName
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", nil, err
		}
	}
	return name, args, nil
}
