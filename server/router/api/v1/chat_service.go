package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/parleychat/parley/server/router/api/v1/chat"
	"github.com/parleychat/parley/store"
)

type chatRequest struct {
	ID                string           `json:"id"`
	Messages          []messagePayload `json:"messages"`
	SelectedChatModel string           `json:"selectedChatModel"`
}

type messagePayload struct {
	ID          string                `json:"id"`
	Role        string                `json:"role"`
	Parts       []store.Part          `json:"parts"`
	Attachments []store.AttachmentRef `json:"attachments,omitempty"`
}

// PostChat runs one chat turn and streams the reply as server-sent events.
// Each event's data line is one JSON-encoded stream delta.
func (s *APIV1Service) PostChat(c echo.Context) error {
	if s.orchestrator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat is not configured")
	}
	ownerID, err := s.Identity.OwnerID(c)
	if err != nil {
		return err
	}

	request := &chatRequest{}
	if err := json.NewDecoder(c.Request().Body).Decode(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.ID == "" {
		// Clients normally mint the conversation id so the first turn can
		// already stream against it; mint one for those that do not.
		request.ID = shortuuid.New()
	}

	messages := make([]*store.Message, 0, len(request.Messages))
	for _, payload := range request.Messages {
		messages = append(messages, &store.Message{
			ID:          payload.ID,
			Role:        store.Role(payload.Role),
			Parts:       payload.Parts,
			Attachments: payload.Attachments,
		})
	}

	if !s.turnSemaphore.TryAcquire(1) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many concurrent chats")
	}
	defer s.turnSemaphore.Release(1)

	sink := newSSESink(c)
	err = s.orchestrator.HandleTurn(c.Request().Context(), &chat.TurnRequest{
		ConversationUID: request.ID,
		OwnerID:         ownerID,
		Model:           request.SelectedChatModel,
		Messages:        messages,
	}, sink)
	if err != nil {
		// Once the stream has started, errors can only be reported in-band.
		if sink.started {
			_ = sink.WriteDelta(chat.StreamDelta{Type: chat.DeltaTypeError, Content: "The conversation could not be processed."})
			return nil
		}
		switch {
		case errors.Is(err, chat.ErrNoUserMessage):
			return echo.NewHTTPError(http.StatusBadRequest, "no user message to respond to")
		case errors.Is(err, chat.ErrUnauthorized):
			return echo.NewHTTPError(http.StatusUnauthorized, "conversation belongs to another user")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to process chat turn").SetInternal(err)
		}
	}
	return nil
}

// DeleteChat deletes a conversation and its messages.
func (s *APIV1Service) DeleteChat(c echo.Context) error {
	ownerID, err := s.Identity.OwnerID(c)
	if err != nil {
		return err
	}
	uid := c.Param("id")

	ctx := c.Request().Context()
	conversation, err := s.Store.GetConversation(ctx, uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get conversation").SetInternal(err)
	}
	if conversation == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if conversation.OwnerID != ownerID {
		return echo.NewHTTPError(http.StatusUnauthorized, "conversation belongs to another user")
	}
	if err := s.Store.DeleteConversation(ctx, &store.DeleteConversation{UID: uid}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": uid})
}

// sseSink writes stream deltas as server-sent events. Headers are written
// lazily on the first delta so pre-stream failures can still produce a plain
// HTTP error status.
type sseSink struct {
	c       echo.Context
	started bool
}

func newSSESink(c echo.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) WriteDelta(delta chat.StreamDelta) error {
	response := s.c.Response()
	if !s.started {
		response.Header().Set(echo.HeaderContentType, "text/event-stream")
		response.Header().Set(echo.HeaderCacheControl, "no-cache")
		response.Header().Set(echo.HeaderConnection, "keep-alive")
		response.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(delta)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delta")
	}
	if _, err := fmt.Fprintf(response, "data: %s\n\n", data); err != nil {
		return errors.Wrap(err, "failed to write delta")
	}
	response.Flush()
	return nil
}
