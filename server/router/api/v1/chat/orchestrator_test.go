package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/ai"
	"github.com/parleychat/parley/store"
)

// fakeModel replays a scripted event stream and terminal result.
type fakeModel struct {
	events []ai.StreamEvent
	result *ai.ExecutionResult
	err    error

	mu       sync.Mutex
	messages []ai.Message
	started  bool
}

func (f *fakeModel) StreamChat(ctx context.Context, messages []ai.Message, _ []ai.Tool, _ *ai.GenerateOptions) (*ai.Run, error) {
	f.mu.Lock()
	f.messages = messages
	f.started = true
	f.mu.Unlock()

	run := ai.NewRun()
	go func() {
		for _, event := range f.events {
			run.Emit(ctx, event)
		}
		run.Finish(f.result, f.err)
	}()
	return run, nil
}

// recordingSink collects every delta written to it.
type recordingSink struct {
	mu     sync.Mutex
	deltas []StreamDelta
	err    error
}

func (s *recordingSink) WriteDelta(delta StreamDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deltas = append(s.deltas, delta)
	return nil
}

func (s *recordingSink) types() []DeltaType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DeltaType{}
	for _, delta := range s.deltas {
		out = append(out, delta.Type)
	}
	return out
}

func newTestOrchestrator(mockStore *mockConversationStore, model ai.StreamingModel) *Orchestrator {
	resolver := NewResolver(mockStore, &stubTitleGenerator{title: "Test Conversation"})
	return NewOrchestrator(mockStore, resolver, NewExtractor(), model, nil, time.Minute)
}

func turnRequest(text string) *TurnRequest {
	return &TurnRequest{
		ConversationUID: "conv-1",
		OwnerID:         7,
		Messages: []*store.Message{
			{ID: "u1", Role: store.RoleUser, Parts: []store.Part{store.NewTextPart(text)}},
		},
	}
}

func TestHandleTurnStreamsAndPersists(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{
		events: []ai.StreamEvent{
			{Type: ai.StreamEventText, Text: "Hello"},
			{Type: ai.StreamEventText, Text: " there"},
		},
		result: &ai.ExecutionResult{Text: "Hello there"},
	}
	orchestrator := newTestOrchestrator(mockStore, model)
	sink := &recordingSink{}

	err := orchestrator.HandleTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)

	assert.Equal(t, []DeltaType{DeltaTypeText, DeltaTypeText, DeltaTypeFinish}, sink.types())

	require.Len(t, mockStore.messages, 2)
	userMessage, assistantMessage := mockStore.messages[0], mockStore.messages[1]
	assert.Equal(t, store.RoleUser, userMessage.Role)
	assert.Equal(t, "conv-1", userMessage.ConversationUID)
	assert.Equal(t, store.RoleAssistant, assistantMessage.Role)
	assert.NotEmpty(t, assistantMessage.ID)
	require.Len(t, assistantMessage.Parts, 1)
	assert.Equal(t, "Hello there", assistantMessage.Parts[0].Text)

	// Activity is touched on the user turn and again after the reply.
	assert.Len(t, mockStore.touches, 2)
}

func TestHandleTurnNoUserMessage(t *testing.T) {
	mockStore := newMockConversationStore()
	orchestrator := newTestOrchestrator(mockStore, &fakeModel{result: &ai.ExecutionResult{}})
	sink := &recordingSink{}

	err := orchestrator.HandleTurn(context.Background(), &TurnRequest{
		ConversationUID: "conv-1",
		OwnerID:         7,
		Messages: []*store.Message{
			{ID: "a1", Role: store.RoleAssistant, Parts: []store.Part{store.NewTextPart("earlier reply")}},
		},
	}, sink)
	assert.ErrorIs(t, err, ErrNoUserMessage)
	assert.Empty(t, mockStore.messages)
}

// The user message must be durable before the model is invoked, so a model
// failure can never lose the user's input.
func TestHandleTurnPersistsUserMessageBeforeModel(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{result: &ai.ExecutionResult{Text: "ok"}}
	orchestrator := newTestOrchestrator(mockStore, model)

	sawUserMessage := false
	sink := DeltaSinkFunc(func(StreamDelta) error {
		mockStore.mu.Lock()
		sawUserMessage = len(mockStore.messages) >= 1
		mockStore.mu.Unlock()
		return nil
	})

	model.events = []ai.StreamEvent{{Type: ai.StreamEventText, Text: "ok"}}
	err := orchestrator.HandleTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)
	assert.True(t, sawUserMessage)
}

func TestHandleTurnModelFailureEmitsErrorDelta(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{
		events: []ai.StreamEvent{{Type: ai.StreamEventText, Text: "partial"}},
		result: &ai.ExecutionResult{Text: "partial"},
		err:    assert.AnError,
	}
	orchestrator := newTestOrchestrator(mockStore, model)
	sink := &recordingSink{}

	err := orchestrator.HandleTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, DeltaTypeError, types[len(types)-1])
	assert.NotContains(t, types, DeltaTypeFinish)

	// The partial reply is still persisted.
	require.Len(t, mockStore.messages, 2)
	assert.Equal(t, "partial", mockStore.messages[1].Parts[0].Text)
}

// Persistence failures after a finished turn degrade to logging; the client
// already has the streamed reply.
func TestHandleTurnAssistantPersistFailureNonFatal(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{
		events: []ai.StreamEvent{{Type: ai.StreamEventText, Text: "hi"}},
		result: &ai.ExecutionResult{Text: "hi"},
	}
	orchestrator := newTestOrchestrator(mockStore, model)

	sink := DeltaSinkFunc(func(StreamDelta) error {
		// After the first delta, break all further writes.
		mockStore.mu.Lock()
		mockStore.appendErr = assert.AnError
		mockStore.mu.Unlock()
		return nil
	})

	err := orchestrator.HandleTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)
	// Only the user message made it to the store.
	assert.Len(t, mockStore.messages, 1)
}

func TestHandleTurnSinkFailureDoesNotAbort(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{
		events: []ai.StreamEvent{
			{Type: ai.StreamEventText, Text: "a"},
			{Type: ai.StreamEventText, Text: "b"},
		},
		result: &ai.ExecutionResult{Text: "ab"},
	}
	orchestrator := newTestOrchestrator(mockStore, model)
	sink := &recordingSink{err: assert.AnError}

	err := orchestrator.HandleTurn(context.Background(), turnRequest("hi"), sink)
	require.NoError(t, err)
	// The reply is persisted even though the client went away.
	require.Len(t, mockStore.messages, 2)
	assert.Equal(t, "ab", mockStore.messages[1].Parts[0].Text)
}

func TestHandleTurnForwardsToolEvents(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{
		events: []ai.StreamEvent{
			{Type: ai.StreamEventToolCall, ToolCall: &ai.ToolCall{ToolName: "get_weather", CallID: "t1"}},
			{Type: ai.StreamEventToolResult, ToolResult: &ai.ToolResult{ToolName: "get_weather", CallID: "t1"}},
			{Type: ai.StreamEventText, Text: "21 degrees"},
		},
		result: &ai.ExecutionResult{
			Text: "21 degrees",
			Steps: []ai.Step{{
				ToolCalls:   []ai.ToolCall{{ToolName: "get_weather", CallID: "t1"}},
				ToolResults: []ai.ToolResult{{ToolName: "get_weather", CallID: "t1", Output: map[string]any{"temperature": 21.0}}},
			}},
		},
	}
	orchestrator := newTestOrchestrator(mockStore, model)
	sink := &recordingSink{}

	err := orchestrator.HandleTurn(context.Background(), turnRequest("weather?"), sink)
	require.NoError(t, err)
	assert.Equal(t, []DeltaType{DeltaTypeSuggestion, DeltaTypeSuggestion, DeltaTypeText, DeltaTypeFinish}, sink.types())

	require.Len(t, mockStore.messages, 2)
	parts := mockStore.messages[1].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, store.PartTypeToolInvocation, parts[0].Type)
	assert.Equal(t, store.PartTypeToolResult, parts[1].Type)
	assert.Equal(t, store.PartTypeText, parts[2].Type)
}

func TestHandleTurnSendsSystemPromptAndHistory(t *testing.T) {
	mockStore := newMockConversationStore()
	model := &fakeModel{result: &ai.ExecutionResult{Text: "ok"}}
	orchestrator := newTestOrchestrator(mockStore, model)

	request := &TurnRequest{
		ConversationUID: "conv-1",
		OwnerID:         7,
		Messages: []*store.Message{
			{ID: "u1", Role: store.RoleUser, Parts: []store.Part{store.NewTextPart("first question")}},
			{ID: "a1", Role: store.RoleAssistant, Parts: []store.Part{store.NewTextPart("first answer")}},
			{ID: "u2", Role: store.RoleUser, Parts: []store.Part{store.NewTextPart("follow-up")}},
		},
	}
	err := orchestrator.HandleTurn(context.Background(), request, &recordingSink{})
	require.NoError(t, err)

	model.mu.Lock()
	defer model.mu.Unlock()
	require.Len(t, model.messages, 4)
	assert.Equal(t, "system", model.messages[0].Role)
	assert.Equal(t, "first question", model.messages[1].Content)
	assert.Equal(t, "assistant", model.messages[2].Role)
	assert.Equal(t, "follow-up", model.messages[3].Content)
}
