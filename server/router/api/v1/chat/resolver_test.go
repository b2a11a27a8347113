package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/store"
)

// mockConversationStore is an in-memory ConversationStore with scriptable
// failures.
type mockConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      []*store.Message
	touches       []int64

	getErr     error
	createErr  error
	appendErr  error
	touchErr   error
	getCalls   int
	createCall int

	// pendingConversation simulates a concurrent winner: it becomes visible
	// to reads after the first read miss.
	pendingConversation *store.Conversation
}

func newMockConversationStore() *mockConversationStore {
	return &mockConversationStore{conversations: map[string]*store.Conversation{}}
}

func (m *mockConversationStore) GetConversation(_ context.Context, uid string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if conversation, ok := m.conversations[uid]; ok {
		return conversation, nil
	}
	if m.pendingConversation != nil && m.getCalls > 1 {
		m.conversations[uid] = m.pendingConversation
		return m.pendingConversation, nil
	}
	return nil, nil
}

func (m *mockConversationStore) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCall++
	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, ok := m.conversations[create.UID]; ok {
		return nil, store.ErrDuplicateKey
	}
	if m.pendingConversation != nil {
		// The concurrent winner inserted first.
		return nil, store.ErrDuplicateKey
	}
	m.conversations[create.UID] = create
	return create, nil
}

func (m *mockConversationStore) TouchConversation(_ context.Context, uid string, activityTs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touches = append(m.touches, activityTs)
	if conversation, ok := m.conversations[uid]; ok {
		conversation.LastActivityTs = activityTs
	}
	return nil
}

func (m *mockConversationStore) AppendMessages(_ context.Context, messages []*store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.messages = append(m.messages, messages...)
	return nil
}

// stubTitleGenerator returns a fixed title and counts invocations.
type stubTitleGenerator struct {
	title string
	err   error
	calls int
}

func (s *stubTitleGenerator) Generate(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.title, nil
}

func TestResolveOrCreateNew(t *testing.T) {
	mockStore := newMockConversationStore()
	titles := &stubTitleGenerator{title: "Weather in Berlin"}
	resolver := NewResolver(mockStore, titles)

	conversation, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "what's the weather in berlin?")
	require.NoError(t, err)
	require.NotNil(t, conversation)
	assert.Equal(t, "conv-1", conversation.UID)
	assert.Equal(t, int32(7), conversation.OwnerID)
	assert.Equal(t, "Weather in Berlin", conversation.Title)
	assert.Equal(t, store.VisibilityPrivate, conversation.Visibility)
	assert.Equal(t, 1, titles.calls)
}

func TestResolveOrCreateExisting(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.conversations["conv-1"] = &store.Conversation{UID: "conv-1", OwnerID: 7, Title: "Existing"}
	titles := &stubTitleGenerator{title: "unused"}
	resolver := NewResolver(mockStore, titles)

	conversation, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Existing", conversation.Title)
	// Resolution of an existing conversation has no side effects.
	assert.Zero(t, titles.calls)
	assert.Zero(t, mockStore.createCall)
}

func TestResolveOrCreateOwnershipMismatch(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.conversations["conv-1"] = &store.Conversation{UID: "conv-1", OwnerID: 7}
	resolver := NewResolver(mockStore, &stubTitleGenerator{})

	_, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 9, "hello")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// Losing the creation race must converge on the winner's row instead of
// failing the turn.
func TestResolveOrCreateLostRace(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.pendingConversation = &store.Conversation{UID: "conv-1", OwnerID: 7, Title: "Winner"}
	titles := &stubTitleGenerator{title: "Loser"}
	resolver := NewResolver(mockStore, titles)

	conversation, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Winner", conversation.Title)
	assert.Equal(t, 1, mockStore.createCall)
	// The title is derived at most once per resolution.
	assert.Equal(t, 1, titles.calls)
}

func TestResolveOrCreateRaceWithForeignWinner(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.pendingConversation = &store.Conversation{UID: "conv-1", OwnerID: 42, Title: "Winner"}
	resolver := NewResolver(mockStore, &stubTitleGenerator{title: "t"})

	_, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveOrCreateTitleFailure(t *testing.T) {
	mockStore := newMockConversationStore()
	titles := &stubTitleGenerator{err: assert.AnError}
	resolver := NewResolver(mockStore, titles)

	_, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	require.Error(t, err)
	assert.Zero(t, mockStore.createCall)
}

func TestResolveOrCreateExhaustedRetries(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.createErr = store.ErrDuplicateKey
	resolver := NewResolver(mockStore, &stubTitleGenerator{title: "t"})

	_, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	assert.ErrorIs(t, err, ErrConversationUnavailable)
	assert.Equal(t, createRetryAttempts, mockStore.createCall)
}

func TestResolveOrCreateOtherCreateErrorPropagates(t *testing.T) {
	mockStore := newMockConversationStore()
	mockStore.createErr = assert.AnError
	resolver := NewResolver(mockStore, &stubTitleGenerator{title: "t"})

	_, err := resolver.ResolveOrCreate(context.Background(), "conv-1", 7, "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConversationUnavailable)
	assert.Equal(t, 1, mockStore.createCall)
}
