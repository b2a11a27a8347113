package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedPrefersSteps(t *testing.T) {
	result := &ExecutionResult{
		Steps: []Step{
			{
				ToolCalls:   []ToolCall{{ToolName: "get_weather", CallID: "t1", Input: map[string]any{"latitude": 1.0}}},
				ToolResults: []ToolResult{{ToolName: "get_weather", CallID: "t1", Output: map[string]any{"temperature": 9.0}}},
			},
			{
				ToolCalls:   []ToolCall{{ToolName: "read_website", CallID: "t2"}},
				ToolResults: []ToolResult{{ToolName: "read_website", CallID: "t2", Output: "text"}},
			},
		},
		// Present but ignored: step-level detail wins.
		ResponseMessages: []ResponseMessage{
			{Role: "assistant", Content: []ResponseContent{{Type: "tool-call", ToolName: "bogus", CallID: "x"}}},
		},
	}

	normalized := result.Normalized()
	require.Len(t, normalized.ToolCalls, 2)
	require.Len(t, normalized.ToolResults, 2)
	assert.Equal(t, "get_weather", normalized.ToolCalls[0].ToolName)
	assert.Equal(t, "t2", normalized.ToolResults[1].CallID)
}

func TestNormalizedFlatShape(t *testing.T) {
	result := &ExecutionResult{
		ResponseMessages: []ResponseMessage{
			{
				Role: "assistant",
				Content: []ResponseContent{
					{Type: "text", Text: "calling a tool"},
					{Type: "tool-call", ToolName: "get_weather", CallID: "t1", Input: map[string]any{"latitude": 2.0}},
				},
			},
			{
				Role: "tool",
				Content: []ResponseContent{
					{Type: "tool-result", ToolName: "get_weather", CallID: "t1", Output: map[string]any{"value": "sunny"}},
				},
			},
		},
	}

	normalized := result.Normalized()
	require.Len(t, normalized.ToolCalls, 1)
	require.Len(t, normalized.ToolResults, 1)
	assert.Equal(t, map[string]any{"latitude": 2.0}, normalized.ToolCalls[0].Input)
	// Single-key {value: ...} wrappers are unwrapped.
	assert.Equal(t, "sunny", normalized.ToolResults[0].Output)
}

func TestNormalizedFlatShapeSkipsMalformedItems(t *testing.T) {
	result := &ExecutionResult{
		ResponseMessages: []ResponseMessage{
			{
				Role: "assistant",
				Content: []ResponseContent{
					{Type: "tool-call", ToolName: "", CallID: "t1"},
					{Type: "tool-call", ToolName: "get_weather", CallID: ""},
				},
			},
			{
				Role:    "user",
				Content: []ResponseContent{{Type: "tool-result", ToolName: "x", CallID: "y"}},
			},
		},
	}
	normalized := result.Normalized()
	assert.Empty(t, normalized.ToolCalls)
	assert.Empty(t, normalized.ToolResults)
}

func TestNormalizedNilReceiver(t *testing.T) {
	var result *ExecutionResult
	normalized := result.Normalized()
	assert.Empty(t, normalized.ToolCalls)
	assert.Empty(t, normalized.ToolResults)
}

func TestRunDeliversEventsThenResult(t *testing.T) {
	run := NewRun()
	go func() {
		run.Emit(context.Background(), StreamEvent{Type: StreamEventText, Text: "a"})
		run.Emit(context.Background(), StreamEvent{Type: StreamEventText, Text: "b"})
		run.Finish(&ExecutionResult{Text: "ab"}, nil)
	}()

	collected := ""
	for event := range run.Events() {
		collected += event.Text
	}
	assert.Equal(t, "ab", collected)

	result, err := run.Result()
	require.NoError(t, err)
	assert.Equal(t, "ab", result.Text)
}

func TestRunResultPreservedOnError(t *testing.T) {
	run := NewRun()
	go run.Finish(&ExecutionResult{Text: "partial"}, assert.AnError)

	for range run.Events() {
	}
	result, err := run.Result()
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "partial", result.Text)
}

func TestRunEmitGivesUpOnCancel(t *testing.T) {
	run := NewRun()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody is consuming and the buffer is full; Emit must not block.
	for i := 0; i < 20; i++ {
		run.Emit(ctx, StreamEvent{Type: StreamEventText, Text: "x"})
	}
	run.Finish(&ExecutionResult{}, ctx.Err())
	_, err := run.Result()
	assert.Error(t, err)
}
