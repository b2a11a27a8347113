package chat

import "github.com/pkg/errors"

var (
	// ErrNoUserMessage indicates the request carried no user-authored message
	// to respond to.
	ErrNoUserMessage = errors.New("no user message in request")
	// ErrUnauthorized indicates the conversation exists but belongs to a
	// different owner.
	ErrUnauthorized = errors.New("conversation owned by another user")
	// ErrConversationUnavailable indicates the conversation could not be
	// created nor read back after retrying a creation race.
	ErrConversationUnavailable = errors.New("conversation unavailable")
)
