package chat

import (
	"regexp"
	"strings"

	"github.com/parleychat/parley/ai"
	"github.com/parleychat/parley/store"
)

// thinkingBannerPattern matches a decorative "**Thinking...**" banner some
// models emit at the top of a reply before the visible answer.
var thinkingBannerPattern = regexp.MustCompile(`(?i)^\*\*thinking(?:\.{3,}|…)\*\*[ \t]*\n*`)

// Reconcile rebuilds the ordered part list of an assistant message from a
// finished model run. Every tool call the model made is materialized as an
// invocation part followed by its result part, so the persisted transcript
// replays the turn faithfully even when the provider reported calls and
// results in separate shapes.
//
// Part order is fixed: reasoning, tool invocations, tool results, then the
// visible text.
func Reconcile(finalText string, reasoning []string, result *ai.ExecutionResult) []store.Part {
	parts := []store.Part{}

	joinedReasoning := strings.TrimSpace(strings.Join(reasoning, "\n"))
	if joinedReasoning != "" {
		parts = append(parts, store.NewReasoningPart(joinedReasoning))
	}

	var calls []ai.ToolCall
	var results []ai.ToolResult
	if result != nil {
		normalized := result.Normalized()
		calls = normalized.ToolCalls
		results = normalized.ToolResults
	}

	inputs := map[string]map[string]any{}
	for _, call := range calls {
		input := call.Input
		if input == nil {
			input = map[string]any{}
		}
		inputs[call.CallID] = input
		parts = append(parts, store.NewToolInvocationPart(call.ToolName, call.CallID, input))
	}
	for _, toolResult := range results {
		input := inputs[toolResult.CallID]
		if input == nil {
			input = map[string]any{}
		}
		parts = append(parts, store.NewToolResultPart(toolResult.ToolName, toolResult.CallID, input, outputMap(toolResult.Output)))
	}

	// Every invocation must have a matching result in the persisted record,
	// even when the stream was truncated before results arrived. Synthesize
	// one result per orphaned call. When no result at all arrived, the final
	// text is treated as the tool output and consumed; it is not repeated as
	// a trailing text part.
	resolved := map[string]bool{}
	for _, toolResult := range results {
		resolved[toolResult.CallID] = true
	}
	textConsumed := false
	for _, call := range calls {
		if resolved[call.CallID] {
			continue
		}
		output := map[string]any{}
		if len(results) == 0 && finalText != "" {
			output = map[string]any{"text": finalText}
			textConsumed = true
		}
		parts = append(parts, store.NewToolResultPart(call.ToolName, call.CallID, inputs[call.CallID], output))
	}

	cleanText := thinkingBannerPattern.ReplaceAllString(finalText, "")
	thinkingLines, cleanText := extractThinking(cleanText)
	if len(thinkingLines) > 0 && joinedReasoning == "" {
		parts = append(parts, store.NewReasoningPart(strings.Join(thinkingLines, "\n")))
	}
	if cleanText != "" && !textConsumed {
		parts = append(parts, store.NewTextPart(cleanText))
	}
	return parts
}

// extractThinking separates inline thinking blocks from the visible answer.
// A thinking block is a run of blockquote lines or *emphasized* lines whose
// first line mentions thinking; it ends at the first line that is neither.
// The scanner is idempotent: running it on its own clean output changes
// nothing.
func extractThinking(text string) (thinkingLines []string, cleanText string) {
	lines := strings.Split(text, "\n")
	visible := []string{}
	inThinking := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, ">"):
			inThinking = true
			if content := strings.TrimSpace(trimmed[1:]); content != "" {
				thinkingLines = append(thinkingLines, content)
			}
		case len(trimmed) >= 2 && strings.HasPrefix(trimmed, "*") && strings.HasSuffix(trimmed, "*") &&
			(strings.Contains(strings.ToLower(trimmed), "thinking") || inThinking):
			inThinking = true
			if content := strings.TrimSpace(trimmed[1 : len(trimmed)-1]); content != "" {
				thinkingLines = append(thinkingLines, content)
			}
		default:
			if inThinking && trimmed == "" {
				// Blank lines inside a thinking block are swallowed.
				continue
			}
			if !strings.HasPrefix(trimmed, "*") && !strings.HasPrefix(trimmed, ">") {
				inThinking = false
			}
			if !inThinking || trimmed != "" {
				visible = append(visible, line)
			}
		}
	}
	return thinkingLines, strings.TrimSpace(strings.Join(visible, "\n"))
}

// outputMap coerces an arbitrary tool output into the map shape stored on
// tool result parts.
func outputMap(output any) map[string]any {
	switch v := output.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"value": v}
	}
}
