package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/store"
)

func newTestDriver(t *testing.T) store.Driver {
	t.Helper()
	driver, err := NewDB(&profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "parley_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))
	return driver
}

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	created, err := driver.CreateConversation(ctx, &store.Conversation{
		UID:            "conv-1",
		OwnerID:        7,
		Title:          "First",
		Visibility:     store.VisibilityPrivate,
		CreatedTs:      100,
		LastActivityTs: 100,
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	uid := "conv-1"
	list, err := driver.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "First", list[0].Title)
	assert.Equal(t, store.VisibilityPrivate, list[0].Visibility)

	newTitle := "Renamed"
	activity := int64(200)
	updated, err := driver.UpdateConversation(ctx, &store.UpdateConversation{
		UID:            uid,
		Title:          &newTitle,
		LastActivityTs: &activity,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, int64(200), updated.LastActivityTs)

	require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{UID: uid}))
	list, err = driver.ListConversations(ctx, &store.FindConversation{UID: &uid})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateConversationDuplicateUID(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	_, err := driver.CreateConversation(ctx, &store.Conversation{UID: "conv-1", OwnerID: 7, CreatedTs: 1, LastActivityTs: 1})
	require.NoError(t, err)

	_, err = driver.CreateConversation(ctx, &store.Conversation{UID: "conv-1", OwnerID: 8, CreatedTs: 2, LastActivityTs: 2})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestConversationsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	for i, uid := range []string{"a", "b", "c"} {
		_, err := driver.CreateConversation(ctx, &store.Conversation{
			UID: uid, OwnerID: 7, CreatedTs: int64(i), LastActivityTs: int64(i),
		})
		require.NoError(t, err)
	}
	activity := int64(99)
	_, err := driver.UpdateConversation(ctx, &store.UpdateConversation{UID: "a", LastActivityTs: &activity})
	require.NoError(t, err)

	ownerID := int32(7)
	list, err := driver.ListConversations(ctx, &store.FindConversation{OwnerID: &ownerID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].UID)
}

func TestMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	_, err := driver.CreateConversation(ctx, &store.Conversation{UID: "conv-1", OwnerID: 7, CreatedTs: 1, LastActivityTs: 1})
	require.NoError(t, err)

	message := &store.Message{
		ID:              "m1",
		ConversationUID: "conv-1",
		Role:            store.RoleAssistant,
		Parts: []store.Part{
			store.NewReasoningPart("thinking"),
			store.NewToolInvocationPart("get_weather", "t1", map[string]any{"latitude": 52.5}),
			store.NewToolResultPart("get_weather", "t1", map[string]any{"latitude": 52.5}, map[string]any{"temperature": 21.0}),
			store.NewTextPart("It is 21 degrees."),
		},
		CreatedTs: 10,
	}
	_, err = driver.CreateMessage(ctx, message)
	require.NoError(t, err)

	uid := "conv-1"
	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationUID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	require.Len(t, got.Parts, 4)
	assert.Equal(t, store.PartTypeReasoning, got.Parts[0].Type)
	assert.Equal(t, store.PartTypeToolInvocation, got.Parts[1].Type)
	assert.Equal(t, store.ToolStateInputAvailable, got.Parts[1].Tool.State)
	assert.Equal(t, store.ToolStateOutputAvailable, got.Parts[2].Tool.State)
	assert.Equal(t, map[string]any{"temperature": 21.0}, got.Parts[2].Tool.Output)
	assert.Equal(t, "It is 21 degrees.", got.Parts[3].Text)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	for i, id := range []string{"m1", "m2", "m3"} {
		_, err := driver.CreateMessage(ctx, &store.Message{
			ID:              id,
			ConversationUID: "conv-1",
			Role:            store.RoleUser,
			Parts:           []store.Part{store.NewTextPart(id)},
			CreatedTs:       int64(i),
		})
		require.NoError(t, err)
	}

	uid := "conv-1"
	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationUID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "m1", list[0].ID)
	assert.Equal(t, "m3", list[2].ID)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	ctx := context.Background()
	driver := newTestDriver(t)

	_, err := driver.CreateConversation(ctx, &store.Conversation{UID: "conv-1", OwnerID: 7, CreatedTs: 1, LastActivityTs: 1})
	require.NoError(t, err)
	_, err = driver.CreateMessage(ctx, &store.Message{
		ID: "m1", ConversationUID: "conv-1", Role: store.RoleUser,
		Parts: []store.Part{store.NewTextPart("hi")}, CreatedTs: 1,
	})
	require.NoError(t, err)

	require.NoError(t, driver.DeleteConversation(ctx, &store.DeleteConversation{UID: "conv-1"}))

	uid := "conv-1"
	list, err := driver.ListMessages(ctx, &store.FindMessage{ConversationUID: &uid})
	require.NoError(t, err)
	assert.Empty(t, list)
}
