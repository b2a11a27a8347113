package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
)

// ErrDuplicateKey is returned by CreateConversation when a conversation with
// the same UID already exists. The database uniqueness constraint is the true
// arbiter for concurrent first-turn creation races; callers retry the read on
// this error instead of taking any in-process lock.
var ErrDuplicateKey = errors.New("duplicate key")

// Driver is an interface for store driver.
// It contains all the methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetConversation returns the conversation with the given UID, or nil when it
// does not exist.
func (s *Store) GetConversation(ctx context.Context, uid string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// CreateConversation inserts a conversation row. Returns ErrDuplicateKey when
// a row with the same UID already exists.
func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// TouchConversation bumps the conversation's last-activity timestamp.
func (s *Store) TouchConversation(ctx context.Context, uid string, activityTs int64) error {
	_, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		UID:            uid,
		LastActivityTs: &activityTs,
	})
	return err
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation removes the conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

// AppendMessages appends messages in order. Messages are append-only; there is
// no update path.
func (s *Store) AppendMessages(ctx context.Context, messages []*Message) error {
	for _, m := range messages {
		if _, err := s.driver.CreateMessage(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to append message %s", m.ID)
		}
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}
