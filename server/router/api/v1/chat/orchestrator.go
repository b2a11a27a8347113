package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/parleychat/parley/ai"
	"github.com/parleychat/parley/store"
)

const systemPrompt = `You are a friendly assistant. Keep your responses concise and helpful. ` +
	`When the user shares files, their extracted text content is included in the message.`

// persistTimeout bounds the post-turn writes that run detached from the
// request context.
const persistTimeout = 10 * time.Second

// TurnRequest is one user turn against a conversation. Messages carries the
// client's view of the transcript, most recent last; the final user message
// is the one being answered.
type TurnRequest struct {
	ConversationUID string
	OwnerID         int32
	Model           string
	Messages        []*store.Message
}

// Orchestrator drives a complete chat turn: resolve the conversation, fold
// attachment text into the user message, persist it, stream the model's
// answer to the sink, and persist the reconciled assistant message.
type Orchestrator struct {
	store       ConversationStore
	resolver    *Resolver
	extractor   *Extractor
	model       ai.StreamingModel
	tools       []ai.Tool
	turnTimeout time.Duration
}

func NewOrchestrator(s ConversationStore, resolver *Resolver, extractor *Extractor, model ai.StreamingModel, tools []ai.Tool, turnTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       s,
		resolver:    resolver,
		extractor:   extractor,
		model:       model,
		tools:       tools,
		turnTimeout: turnTimeout,
	}
}

// HandleTurn runs one turn end to end, writing stream deltas to the sink as
// the model produces output. Errors before streaming starts are returned;
// errors after that point are surfaced as a terminal error delta instead.
// Persistence failures after a finished turn never fail the turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, request *TurnRequest, sink DeltaSink) error {
	userMessage := lastUserMessage(request.Messages)
	if userMessage == nil {
		return ErrNoUserMessage
	}
	turnsStarted.Inc()

	originalText := typedText(userMessage)
	augmentedText := o.extractor.Augment(ctx, userMessage)
	if augmentedText != originalText {
		userMessage.Parts = replaceTypedText(userMessage.Parts, augmentedText)
	}

	conversation, err := o.resolver.ResolveOrCreate(ctx, request.ConversationUID, request.OwnerID, originalText)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	userMessage.ConversationUID = conversation.UID
	userMessage.Role = store.RoleUser
	userMessage.CreatedTs = now
	if userMessage.ID == "" {
		userMessage.ID = uuid.NewString()
	}
	if err := o.store.AppendMessages(ctx, []*store.Message{userMessage}); err != nil {
		return errors.Wrap(err, "failed to persist user message")
	}
	if err := o.store.TouchConversation(ctx, conversation.UID, now); err != nil {
		return errors.Wrap(err, "failed to touch conversation")
	}

	turnCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.turnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, o.turnTimeout)
	}
	defer cancel()

	run, err := o.model.StreamChat(turnCtx, o.modelHistory(request.Messages), o.tools, &ai.GenerateOptions{
		Model: request.Model,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start model stream")
	}

	for event := range run.Events() {
		if writeErr := sink.WriteDelta(eventDelta(event)); writeErr != nil {
			// The client went away. The model run keeps draining so the
			// partial result can still be persisted.
			slog.Debug("delta write failed", slog.String("error", writeErr.Error()))
		}
	}

	result, runErr := run.Result()
	if runErr != nil {
		slog.Error("model run failed",
			slog.String("conversation", conversation.UID),
			slog.String("error", runErr.Error()))
		_ = sink.WriteDelta(StreamDelta{Type: DeltaTypeError, Content: turnErrorMessage(runErr)})
	}

	o.persistAssistantMessage(ctx, conversation.UID, result)
	if runErr == nil {
		turnsCompleted.Inc()
		_ = sink.WriteDelta(StreamDelta{Type: DeltaTypeFinish})
	}
	return nil
}

// persistAssistantMessage reconciles and stores the assistant's message.
// It runs detached from the request context so a client disconnect cannot
// abort the write, and it degrades to a log line on failure.
func (o *Orchestrator) persistAssistantMessage(ctx context.Context, conversationUID string, result *ai.ExecutionResult) {
	if result == nil {
		return
	}
	parts := Reconcile(result.Text, result.Reasoning, result)
	if len(parts) == 0 {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := time.Now().Unix()
	message := &store.Message{
		ID:              uuid.NewString(),
		ConversationUID: conversationUID,
		Role:            store.RoleAssistant,
		Parts:           parts,
		CreatedTs:       now,
	}
	if err := o.store.AppendMessages(persistCtx, []*store.Message{message}); err != nil {
		persistenceFailures.Inc()
		slog.Error("failed to persist assistant message",
			slog.String("conversation", conversationUID),
			slog.String("error", err.Error()))
		return
	}
	if err := o.store.TouchConversation(persistCtx, conversationUID, now); err != nil {
		persistenceFailures.Inc()
		slog.Error("failed to touch conversation",
			slog.String("conversation", conversationUID),
			slog.String("error", err.Error()))
	}
}

// modelHistory converts the stored transcript into the model message list,
// prefixed with the system prompt. Image attachments ride along as image
// URLs; tool parts are replayed as compact text so the model keeps context
// across turns without re-invoking anything.
func (o *Orchestrator) modelHistory(messages []*store.Message) []ai.Message {
	history := []ai.Message{ai.SystemPrompt(systemPrompt)}
	for _, message := range messages {
		texts := []string{}
		imageURLs := []string{}
		for _, part := range message.Parts {
			switch part.Type {
			case store.PartTypeText:
				texts = append(texts, part.Text)
			case store.PartTypeFile:
				if part.File != nil && strings.HasPrefix(part.File.MediaType, "image/") {
					imageURLs = append(imageURLs, part.File.URL)
				}
			case store.PartTypeToolResult:
				if part.Tool != nil {
					texts = append(texts, "[used tool "+part.Tool.ToolName+"]")
				}
			}
		}
		content := strings.Join(texts, "\n")
		if content == "" && len(imageURLs) == 0 {
			continue
		}
		entry := ai.Message{Role: "user", Content: content, ImageURLs: imageURLs}
		if message.Role == store.RoleAssistant {
			entry = ai.AssistantMessage(content)
		}
		history = append(history, entry)
	}
	return history
}

func lastUserMessage(messages []*store.Message) *store.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == store.RoleUser {
			return messages[i]
		}
	}
	return nil
}

func eventDelta(event ai.StreamEvent) StreamDelta {
	switch event.Type {
	case ai.StreamEventReasoning:
		return StreamDelta{Type: DeltaTypeReasoning, Content: event.Text}
	case ai.StreamEventToolCall:
		return StreamDelta{Type: DeltaTypeSuggestion, Content: map[string]any{
			"kind": "tool-call", "toolName": event.ToolCall.ToolName,
		}}
	case ai.StreamEventToolResult:
		return StreamDelta{Type: DeltaTypeSuggestion, Content: map[string]any{
			"kind": "tool-result", "toolName": event.ToolResult.ToolName,
		}}
	default:
		return StreamDelta{Type: DeltaTypeText, Content: event.Text}
	}
}

func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The response took too long and was stopped."
	case errors.Is(err, context.Canceled):
		return "The request was canceled."
	default:
		return "The model provider returned an error. Please try again."
	}
}
