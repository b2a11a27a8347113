package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const defaultMaxSteps = 10

// Config represents model service configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int     // default: 4096
	Temperature float32 // default: 0.7
	Timeout     int     // per-request timeout in seconds (default: 120)
}

// OpenAIModel implements StreamingModel against any OpenAI-compatible endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     int
}

var _ StreamingModel = (*OpenAIModel)(nil)

// NewOpenAIModel creates a streaming model backed by an OpenAI-compatible API.
func NewOpenAIModel(cfg *Config) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	return &OpenAIModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
	}, nil
}

// newHTTPClient builds an HTTP client tuned for long-lived streaming responses.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          10,
		},
		// No overall client timeout: streaming responses stay open for the
		// whole generation. The caller bounds the turn with its context.
	}
}

// StreamChat starts a model invocation with the given history and active tool
// set. It returns immediately; events flow on the returned Run.
func (s *OpenAIModel) StreamChat(ctx context.Context, messages []Message, tools []Tool, opts *GenerateOptions) (*Run, error) {
	run := NewRun()
	go s.stream(ctx, run, messages, tools, opts)
	return run, nil
}

// pendingCall accumulates a streamed tool call whose arguments arrive in chunks.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (s *OpenAIModel) stream(ctx context.Context, run *Run, messages []Message, tools []Tool, opts *GenerateOptions) {
	result := &ExecutionResult{}

	model := s.model
	maxTokens := s.maxTokens
	temperature := s.temperature
	maxSteps := defaultMaxSteps
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			temperature = opts.Temperature
		}
		if opts.MaxSteps > 0 {
			maxSteps = opts.MaxSteps
		}
	}

	toolIndex := make(map[string]Tool, len(tools))
	openaiTools := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		toolIndex[t.Name()] = t
		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.InputSchema(),
			},
		})
	}

	history := convertMessages(messages)

	for step := 0; step < maxSteps; step++ {
		req := openai.ChatCompletionRequest{
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Messages:    history,
			Tools:       openaiTools,
		}

		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			run.Finish(result, errors.Wrap(err, "create stream failed"))
			return
		}

		var stepText strings.Builder
		pending := make(map[int]*pendingCall)

		for {
			response, recvErr := stream.Recv()
			if recvErr != nil {
				_ = stream.Close()
				if errors.Is(recvErr, io.EOF) {
					break
				}
				// Cancellation and upstream failure both leave the
				// accumulated partial result on the run.
				run.Finish(result, errors.Wrap(recvErr, "stream recv failed"))
				return
			}
			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta
			if delta.ReasoningContent != "" {
				result.Reasoning = append(result.Reasoning, delta.ReasoningContent)
				run.Emit(ctx, StreamEvent{Type: StreamEventReasoning, Text: delta.ReasoningContent})
			}
			if delta.Content != "" {
				stepText.WriteString(delta.Content)
				result.Text += delta.Content
				run.Emit(ctx, StreamEvent{Type: StreamEventText, Text: delta.Content})
			}
			for i, tc := range delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				call, ok := pending[idx]
				if !ok {
					call = &pendingCall{}
					pending[idx] = call
				}
				if tc.ID != "" {
					call.id = tc.ID
				}
				if tc.Function.Name != "" {
					call.name = tc.Function.Name
				}
				call.args.WriteString(tc.Function.Arguments)
			}
		}

		stepRecord := Step{Text: stepText.String()}

		if len(pending) == 0 {
			result.Steps = append(result.Steps, stepRecord)
			run.Finish(result, nil)
			return
		}

		indices := make([]int, 0, len(pending))
		for idx := range pending {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		// Record the assistant tool-call turn so the next round sees it.
		assistantMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: stepRecord.Text,
		}
		for _, idx := range indices {
			call := pending[idx]
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
				ID:   call.id,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.name,
					Arguments: call.args.String(),
				},
			})
		}
		history = append(history, assistantMsg)

		for _, idx := range indices {
			call := pending[idx]
			rawArgs := call.args.String()

			input := map[string]any{}
			if rawArgs != "" {
				if err := json.Unmarshal([]byte(rawArgs), &input); err != nil {
					slog.Warn("failed to decode tool arguments",
						"tool", call.name,
						"call_id", call.id,
						"error", err,
					)
					input = map[string]any{}
				}
			}

			toolCall := ToolCall{ToolName: call.name, CallID: call.id, Input: input}
			stepRecord.ToolCalls = append(stepRecord.ToolCalls, toolCall)
			run.Emit(ctx, StreamEvent{Type: StreamEventToolCall, ToolCall: &toolCall})

			output := s.executeTool(ctx, toolIndex, call.name, rawArgs)
			toolResult := ToolResult{ToolName: call.name, CallID: call.id, Output: output}
			stepRecord.ToolResults = append(stepRecord.ToolResults, toolResult)
			run.Emit(ctx, StreamEvent{Type: StreamEventToolResult, ToolResult: &toolResult})

			encoded, err := json.Marshal(output)
			if err != nil {
				encoded = []byte(`{}`)
			}
			history = append(history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.id,
				Content:    string(encoded),
			})
		}

		result.Steps = append(result.Steps, stepRecord)
	}

	// Step limit reached with tool calls still pending: return what we have.
	run.Finish(result, nil)
}

// executeTool runs one tool and converts any failure into an error-shaped
// output. A failing tool never aborts the turn; the model decides what to do
// with the error.
func (s *OpenAIModel) executeTool(ctx context.Context, tools map[string]Tool, name, rawArgs string) any {
	tool, ok := tools[name]
	if !ok {
		return map[string]any{"error": "unknown tool: " + name}
	}

	output, err := tool.Execute(ctx, json.RawMessage(rawArgs))
	if err != nil {
		slog.Warn("tool execution failed",
			"tool", name,
			"error", err,
		)
		return map[string]any{"error": err.Error()}
	}
	return output
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role}
		if len(m.ImageURLs) > 0 {
			// Multimodal path: text plus image parts.
			parts := []openai.ChatMessagePart{}
			if m.Content != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: m.Content,
				})
			}
			for _, url := range m.ImageURLs {
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: url},
				})
			}
			msg.MultiContent = parts
		} else {
			msg.Content = m.Content
		}
		converted = append(converted, msg)
	}
	return converted
}
