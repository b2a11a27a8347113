package ai

import (
	"context"
)

// Message is one turn of model input history.
type Message struct {
	Role    string // system, user, assistant
	Content string
	// ImageURLs are forwarded on the model's native multimodal path.
	// Document attachments never land here; their extracted text is folded
	// into Content before the call.
	ImageURLs []string
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// ToolCall is a request by the model to invoke a named tool.
type ToolCall struct {
	ToolName string
	CallID   string
	Input    map[string]any
}

// ToolResult is the outcome of one tool invocation, matched to its call by CallID.
type ToolResult struct {
	ToolName string
	CallID   string
	Output   any
}

// Step is one round of model reasoning/tool-use within a single turn.
type Step struct {
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ResponseContent is one content item of a response message, used by
// execution paths that omit step-level detail.
type ResponseContent struct {
	Type     string // text, tool-call, tool-result
	Text     string
	ToolName string
	CallID   string
	Input    map[string]any
	Output   any
}

// ResponseMessage is one assistant or tool turn in the flat response-message
// list fallback shape.
type ResponseMessage struct {
	Role    string // assistant, tool
	Content []ResponseContent
}

// ExecutionResult is what a completed model invocation exposes. Either Steps
// carries per-step tool call/result lists, or only ResponseMessages is
// populated and tool activity must be recovered from it.
type ExecutionResult struct {
	Text             string
	Reasoning        []string
	Steps            []Step
	ResponseMessages []ResponseMessage
}

// NormalizedExecutionResult is the single shape downstream reconciliation
// works with, regardless of which form the upstream produced.
type NormalizedExecutionResult struct {
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Normalized flattens the execution result into matched tool call and result
// lists. When step-level detail is present it wins; otherwise calls and
// results are recovered from the flat response-message list by role and
// content-item type.
func (r *ExecutionResult) Normalized() *NormalizedExecutionResult {
	n := &NormalizedExecutionResult{}
	if r == nil {
		return n
	}

	if len(r.Steps) > 0 {
		for _, step := range r.Steps {
			n.ToolCalls = append(n.ToolCalls, step.ToolCalls...)
			n.ToolResults = append(n.ToolResults, step.ToolResults...)
		}
		return n
	}

	for _, msg := range r.ResponseMessages {
		switch msg.Role {
		case "assistant":
			for _, item := range msg.Content {
				if item.Type == "tool-call" && item.ToolName != "" && item.CallID != "" {
					input := item.Input
					if input == nil {
						input = map[string]any{}
					}
					n.ToolCalls = append(n.ToolCalls, ToolCall{
						ToolName: item.ToolName,
						CallID:   item.CallID,
						Input:    input,
					})
				}
			}
		case "tool":
			for _, item := range msg.Content {
				if item.Type == "tool-result" && item.ToolName != "" && item.CallID != "" {
					output := item.Output
					// Some providers wrap the result as {value: ...}.
					if m, ok := output.(map[string]any); ok {
						if v, exists := m["value"]; exists && len(m) == 1 {
							output = v
						}
					}
					n.ToolResults = append(n.ToolResults, ToolResult{
						ToolName: item.ToolName,
						CallID:   item.CallID,
						Output:   output,
					})
				}
			}
		}
	}
	return n
}

// StreamEventType discriminates live stream events from a model invocation.
type StreamEventType string

const (
	StreamEventText       StreamEventType = "text"
	StreamEventReasoning  StreamEventType = "reasoning"
	StreamEventToolCall   StreamEventType = "tool_call"
	StreamEventToolResult StreamEventType = "tool_result"
)

// StreamEvent is one incremental event produced during a model invocation.
type StreamEvent struct {
	Type       StreamEventType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// GenerateOptions carries per-call generation settings.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
	// MaxSteps bounds the tool-use loop. Zero means the default (10).
	MaxSteps int
}

// Run is one in-flight model invocation. Events are consumed incrementally
// from Events(); once that channel closes, Result returns the accumulated
// execution result (partial if the run was cancelled) and the terminal error,
// if any.
type Run struct {
	events chan StreamEvent
	done   chan struct{}
	result *ExecutionResult
	err    error
}

// NewRun creates an unstarted run. Producers (StreamingModel
// implementations) deliver events with Emit and must call Finish exactly
// once.
func NewRun() *Run {
	return &Run{
		events: make(chan StreamEvent, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the live event stream. The channel is closed when the run
// finishes, fails, or is cancelled.
func (r *Run) Events() <-chan StreamEvent {
	return r.events
}

// Result blocks until the run completes and returns the accumulated execution
// result. The result is non-nil even on error or cancellation: whatever was
// accumulated before the failure is preserved so a partial assistant reply can
// still be persisted.
func (r *Run) Result() (*ExecutionResult, error) {
	<-r.done
	return r.result, r.err
}

// Emit delivers one event to the consumer, giving up when the caller is gone.
func (r *Run) Emit(ctx context.Context, ev StreamEvent) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// Finish records the terminal result and closes the event stream.
func (r *Run) Finish(result *ExecutionResult, err error) {
	r.result = result
	r.err = err
	close(r.events)
	close(r.done)
}

// StreamingModel is the shape-independent contract the pipeline requires from
// a streaming model call.
type StreamingModel interface {
	StreamChat(ctx context.Context, messages []Message, tools []Tool, opts *GenerateOptions) (*Run, error)
}
