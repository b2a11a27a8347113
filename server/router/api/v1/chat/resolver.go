package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/store"
)

const (
	// createRetryAttempts bounds how often a lost creation race is retried.
	createRetryAttempts = 3
	// createRetryDelay is the base backoff between attempts; the actual delay
	// grows linearly with the attempt number.
	createRetryDelay = 100 * time.Millisecond
)

// ConversationStore is the persistence surface the chat pipeline needs.
// *store.Store satisfies it.
type ConversationStore interface {
	GetConversation(ctx context.Context, uid string) (*store.Conversation, error)
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	TouchConversation(ctx context.Context, uid string, activityTs int64) error
	AppendMessages(ctx context.Context, messages []*store.Message) error
}

// TitleGenerator derives a short conversation title from the first user
// message. ai.TitleGenerator satisfies it.
type TitleGenerator interface {
	Generate(ctx context.Context, firstUserMessage string) (string, error)
}

// Resolver resolves a conversation identifier to a persisted conversation,
// creating it on first use. Concurrent first requests for the same identifier
// race on the unique constraint; the loser backs off and reads the winner's
// row instead of failing the turn.
type Resolver struct {
	store  ConversationStore
	titles TitleGenerator
}

func NewResolver(s ConversationStore, titles TitleGenerator) *Resolver {
	return &Resolver{store: s, titles: titles}
}

// ResolveOrCreate returns the conversation with the given uid, creating it
// with a generated title when it does not exist yet. Returns ErrUnauthorized
// when the conversation belongs to another owner and
// ErrConversationUnavailable when the row cannot be read back after losing
// the creation race on every attempt.
func (r *Resolver) ResolveOrCreate(ctx context.Context, uid string, ownerID int32, firstUserMessage string) (*store.Conversation, error) {
	title := ""
	for attempt := 1; attempt <= createRetryAttempts; attempt++ {
		conversation, err := r.store.GetConversation(ctx, uid)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get conversation")
		}
		if conversation != nil {
			if conversation.OwnerID != ownerID {
				return nil, ErrUnauthorized
			}
			return conversation, nil
		}

		// The title is derived once; retries reuse it.
		if title == "" {
			title, err = r.titles.Generate(ctx, firstUserMessage)
			if err != nil {
				return nil, errors.Wrap(err, "failed to generate conversation title")
			}
		}

		now := time.Now().Unix()
		created, err := r.store.CreateConversation(ctx, &store.Conversation{
			UID:            uid,
			OwnerID:        ownerID,
			Title:          title,
			Visibility:     store.VisibilityPrivate,
			CreatedTs:      now,
			LastActivityTs: now,
		})
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, errors.Wrap(err, "failed to create conversation")
		}

		// Lost the race: another request inserted the row first. Back off and
		// read it on the next iteration.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(createRetryDelay * time.Duration(attempt)):
		}
	}

	conversation, err := r.store.GetConversation(ctx, uid)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	if conversation != nil {
		if conversation.OwnerID != ownerID {
			return nil, ErrUnauthorized
		}
		return conversation, nil
	}
	return nil, ErrConversationUnavailable
}
