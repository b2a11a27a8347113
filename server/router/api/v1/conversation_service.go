package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/parleychat/parley/store"
)

type conversationPayload struct {
	UID            string `json:"uid"`
	Title          string `json:"title"`
	Visibility     string `json:"visibility"`
	CreatedTs      int64  `json:"createdTs"`
	LastActivityTs int64  `json:"lastActivityTs"`
}

type storedMessagePayload struct {
	ID          string                `json:"id"`
	Role        string                `json:"role"`
	Parts       []store.Part          `json:"parts"`
	Attachments []store.AttachmentRef `json:"attachments,omitempty"`
	CreatedTs   int64                 `json:"createdTs"`
}

// ListConversations returns the caller's conversations, most recently active
// first.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	ownerID, err := s.Identity.OwnerID(c)
	if err != nil {
		return err
	}
	conversations, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{OwnerID: &ownerID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list conversations").SetInternal(err)
	}
	payload := make([]conversationPayload, 0, len(conversations))
	for _, conversation := range conversations {
		payload = append(payload, conversationPayload{
			UID:            conversation.UID,
			Title:          conversation.Title,
			Visibility:     string(conversation.Visibility),
			CreatedTs:      conversation.CreatedTs,
			LastActivityTs: conversation.LastActivityTs,
		})
	}
	return c.JSON(http.StatusOK, payload)
}

// ListConversationMessages returns the transcript of one conversation in
// creation order.
func (s *APIV1Service) ListConversationMessages(c echo.Context) error {
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
	if conversation.OwnerID != ownerID && conversation.Visibility != store.VisibilityPublic {
		return echo.NewHTTPError(http.StatusUnauthorized, "conversation belongs to another user")
	}

	messages, err := s.Store.ListMessages(ctx, &store.FindMessage{ConversationUID: &uid})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages").SetInternal(err)
	}
	payload := make([]storedMessagePayload, 0, len(messages))
	for _, message := range messages {
		payload = append(payload, storedMessagePayload{
			ID:          message.ID,
			Role:        string(message.Role),
			Parts:       message.Parts,
			Attachments: message.Attachments,
			CreatedTs:   message.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, payload)
}
