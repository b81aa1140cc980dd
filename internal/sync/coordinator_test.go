// ABOUTME: Tests for chat selection, refresh reconciliation, and message mutations
// ABOUTME: Uses the in-memory remote fake with failure injection and a :memory: cache

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/internal/remote"
	"github.com/driftline/driftline/internal/store"
)

const testOwner = "user-1"

func newTestCoordinator(t *testing.T) (*Coordinator, *store.SQLiteCache, *remote.Fake) {
	t.Helper()
	cache, err := store.NewSQLiteCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	fake := remote.NewFake()
	return New(cache, fake, testOwner), cache, fake
}

func seedChat(t *testing.T, fake *remote.Fake, chatID string, contents ...string) []*store.Message {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, fake.InsertChat(ctx, &store.Chat{
		ID:        chatID,
		OwnerID:   testOwner,
		Title:     "seeded",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	messages := make([]*store.Message, len(contents))
	for i, content := range contents {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		messages[i] = &store.Message{
			ID:        chatID + "-m" + string(rune('1'+i)),
			ChatID:    chatID,
			Role:      role,
			Content:   content,
			Type:      store.MessageTypeText,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	require.NoError(t, fake.InsertMessages(ctx, messages))
	return messages
}

func TestSelectEmptyCacheLoadsFromRemote(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello", "hi there")

	require.NoError(t, coord.Select(ctx, "chat-1"))

	assert.Equal(t, StateReady, coord.Session().State())
	msgs := coord.Session().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi there", msgs[1].Content)

	// The fetched messages land in the cache for the next select.
	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestSelectEmptyCacheRemoteFailure(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	fake.ListMessagesErr = errors.New("backend down")

	err := coord.Select(context.Background(), "chat-1")
	require.Error(t, err)
	assert.Equal(t, StateLoadError, coord.Session().State())
	assert.Empty(t, coord.Session().Messages())
}

func TestSelectWarmCacheShowsImmediately(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "hello", "hi there")
	require.NoError(t, cache.ReplaceMessages(ctx, "chat-1", msgs))

	// Remote unavailable: the cached copy must still be served.
	fake.ListMessagesErr = errors.New("backend down")

	require.NoError(t, coord.Select(ctx, "chat-1"))
	assert.Equal(t, StateReady, coord.Session().State())
	assert.Len(t, coord.Session().Messages(), 2)
}

func TestRefreshReconcilesMemoryAndCache(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "hello", "hi there")

	require.NoError(t, coord.Select(ctx, "chat-1"))

	// Another device edits the chat server-side.
	require.NoError(t, fake.UpdateMessage(ctx, msgs[0].ID, map[string]any{"content": "hello edited"}))

	require.NoError(t, coord.Refresh(ctx))
	got := coord.Session().Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "hello edited", got[0].Content)

	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "hello edited", cached[0].Content)
}

func TestRefreshFailureLeavesStateVisible(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")

	require.NoError(t, coord.Select(ctx, "chat-1"))
	fake.ListMessagesErr = errors.New("backend down")

	require.Error(t, coord.Refresh(ctx))
	assert.Equal(t, StateReady, coord.Session().State())
	assert.Len(t, coord.Session().Messages(), 1)
	assert.False(t, coord.Session().Syncing())
}

func TestStaleRefreshDiscarded(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-a", "from a")
	seedChat(t, fake, "chat-b", "from b")

	require.NoError(t, coord.Select(ctx, "chat-a"))
	_, staleEpoch := coord.session.ident()

	require.NoError(t, coord.Select(ctx, "chat-b"))

	// A refresh started under chat-a's epoch arrives late; it must not
	// overwrite chat-b's messages.
	require.NoError(t, coord.refresh(ctx, "chat-a", staleEpoch))

	got := coord.Session().Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "from b", got[0].Content)
}

func TestAutoRefreshPullsRemoteChanges(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	// Server-side edit that only a later refresh can surface.
	require.NoError(t, fake.UpdateMessage(ctx, msgs[0].ID, map[string]any{"content": "hello edited"}))

	done := make(chan struct{})
	go func() {
		coord.AutoRefresh(ctx, 5*time.Millisecond, cancel)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("auto refresh never completed a tick")
	}

	got := coord.Session().Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hello edited", got[0].Content)
}

func TestAddMessageSuccess(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	msg := &store.Message{Role: store.RoleUser, Content: "follow-up"}
	require.NoError(t, coord.AddMessage(ctx, msg))

	// ID, type, and timestamp are filled in.
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, store.MessageTypeText, msg.Type)

	got := coord.Session().Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "follow-up", got[1].Content)
	assert.True(t, got[1].CreatedAt.After(got[0].CreatedAt))

	assert.True(t, fake.HasMessage(msg.ID))
	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestAddMessageRemoteFailureRollsBack(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	fake.InsertMessagesErr = errors.New("write rejected")
	msg := &store.Message{Role: store.RoleUser, Content: "doomed"}
	err := coord.AddMessage(ctx, msg)
	require.Error(t, err)

	// Memory, cache, and remote all agree the message never happened.
	assert.Len(t, coord.Session().Messages(), 1)
	assert.False(t, fake.HasMessage(msg.ID))
	cached, cerr := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, cerr)
	assert.Len(t, cached, 1)
}

func TestAddMessageValidation(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()

	err := coord.AddMessage(ctx, &store.Message{Role: store.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNoActiveChat)

	seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	err = coord.AddMessage(ctx, &store.Message{Role: "narrator", Content: "x"})
	assert.ErrorContains(t, err, "invalid message role")

	err = coord.AddMessage(ctx, &store.Message{ChatID: "chat-2", Role: store.RoleUser, Content: "x"})
	assert.ErrorContains(t, err, "is active")
}

func TestUpdateMessageSuccess(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	require.NoError(t, coord.UpdateMessage(ctx, msgs[0].ID, map[string]any{"content": "hello v2"}))

	got := coord.Session().Messages()
	assert.Equal(t, "hello v2", got[0].Content)

	remoteMsgs, err := fake.ListMessages(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "hello v2", remoteMsgs[0].Content)

	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "hello v2", cached[0].Content)
}

func TestUpdateMessageRemoteFailureRefreshes(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	fake.UpdateMessageErr = errors.New("write rejected")
	err := coord.UpdateMessage(ctx, msgs[0].ID, map[string]any{"content": "rejected edit"})
	require.Error(t, err)

	// The post-failure refresh also fails here (UpdateMessageErr does not
	// block reads), so the refresh pulls the untouched remote copy back.
	got := coord.Session().Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
}

func TestUpdateMessageUnknownTarget(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	err := coord.UpdateMessage(ctx, "nope", map[string]any{"content": "x"})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestDeleteMessageSuccess(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "hello", "hi there")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	require.NoError(t, coord.DeleteMessage(ctx, msgs[0].ID))

	got := coord.Session().Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hi there", got[0].Content)
	assert.False(t, fake.HasMessage(msgs[0].ID))

	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestDeleteMessageRemoteFailureRestoresPosition(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	msgs := seedChat(t, fake, "chat-1", "first", "second", "third")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	fake.DeleteMessageErr = errors.New("write rejected")
	err := coord.DeleteMessage(ctx, msgs[1].ID)
	require.Error(t, err)

	// The middle message is restored in its original slot.
	got := coord.Session().Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)

	cached, cerr := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, cerr)
	assert.Len(t, cached, 3)
	assert.Equal(t, "second", cached[1].Content)
}

func TestUpdateChatSuccess(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	_, err := coord.RefreshChatList(ctx)
	require.NoError(t, err)

	require.NoError(t, coord.UpdateChat(ctx, "chat-1", map[string]any{
		"title":  "renamed",
		"pinned": true,
	}))

	chats, err := fake.ListChats(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "renamed", chats[0].Title)
	assert.True(t, chats[0].Pinned)

	cached, err := cache.GetChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", cached.Title)
	assert.True(t, cached.Pinned)
}

func TestUpdateChatUncachedStillUpdatesRemote(t *testing.T) {
	coord, _, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")

	require.NoError(t, coord.UpdateChat(ctx, "chat-1", map[string]any{"title": "renamed"}))

	chats, err := fake.ListChats(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "renamed", chats[0].Title)
}

func TestUpdateChatRemoteFailureRefreshesList(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	_, err := coord.RefreshChatList(ctx)
	require.NoError(t, err)

	fake.UpdateChatErr = errors.New("write rejected")
	err = coord.UpdateChat(ctx, "chat-1", map[string]any{"title": "rejected rename"})
	require.Error(t, err)

	// The post-failure list refresh pulls the untouched remote row back
	// over the optimistic cache merge.
	cached, cerr := cache.GetChat(ctx, "chat-1")
	require.NoError(t, cerr)
	assert.Equal(t, "seeded", cached.Title)
	assert.False(t, cached.Pinned)
}

func TestDeleteChatClearsCacheAndSession(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	seedChat(t, fake, "chat-1", "hello")
	require.NoError(t, coord.Select(ctx, "chat-1"))

	require.NoError(t, coord.DeleteChat(ctx, "chat-1"))

	assert.False(t, fake.HasChat("chat-1"))
	assert.Equal(t, StateIdle, coord.Session().State())
	assert.Empty(t, coord.Session().ChatID())

	cached, err := cache.ListMessagesByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestRefreshChatListReplacesCache(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()

	// Stale cache entry from a previous run.
	require.NoError(t, cache.UpsertChat(ctx, &store.Chat{
		ID: "gone", OwnerID: testOwner, Title: "deleted elsewhere",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	seedChat(t, fake, "chat-1", "hello")

	chats, err := coord.RefreshChatList(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "chat-1", chats[0].ID)

	cached, err := cache.ListChatsByOwner(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "chat-1", cached[0].ID)
}

func TestRefreshChatListFailureLeavesCache(t *testing.T) {
	coord, cache, fake := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, cache.UpsertChat(ctx, &store.Chat{
		ID: "kept", OwnerID: testOwner, Title: "still here",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))
	fake.ListChatsErr = errors.New("backend down")

	_, err := coord.RefreshChatList(ctx)
	require.Error(t, err)

	cached, cerr := cache.ListChatsByOwner(ctx, testOwner)
	require.NoError(t, cerr)
	assert.Len(t, cached, 1)
}

func TestPrefetchChats(t *testing.T) {
	coord, cache, _ := newTestCoordinator(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, chatID := range []string{"chat-1", "chat-2"} {
		require.NoError(t, cache.UpsertMessage(ctx, &store.Message{
			ID: chatID + "-m1", ChatID: chatID, Role: store.RoleUser,
			Content: "hello from " + chatID, Type: store.MessageTypeText, CreatedAt: base,
		}))
	}

	grouped := coord.PrefetchChats(ctx, []string{"chat-1", "chat-2", "chat-3"})
	assert.Len(t, grouped, 2)
	assert.Len(t, grouped["chat-1"], 1)
	assert.NotContains(t, grouped, "chat-3")
}
