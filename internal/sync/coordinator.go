// ABOUTME: Coordinator drives chat selection, refresh, and message mutations
// ABOUTME: Remote is the source of truth; cache and session are mirrors with rollback

package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftline/internal/remote"
	"github.com/driftline/driftline/internal/store"
)

var (
	// ErrTargetNotFound is returned when an operation names a message that
	// is not present in the active chat.
	ErrTargetNotFound = errors.New("target message not found")

	// ErrNoActiveChat is returned when a mutation arrives with no chat
	// selected.
	ErrNoActiveChat = errors.New("no active chat")

	// ErrEmptyBranch is returned when a branch point yields no messages to
	// copy.
	ErrEmptyBranch = errors.New("branch prefix is empty")
)

// Cache is the subset of the local store the coordinator mirrors into. The
// cache is never consulted to decide whether a mutation succeeded; it only
// makes the next startup fast.
type Cache interface {
	ListMessagesByChat(ctx context.Context, chatID string) ([]*store.Message, error)
	ReplaceMessages(ctx context.Context, chatID string, messages []*store.Message) error
	UpsertMessage(ctx context.Context, msg *store.Message) error
	DeleteMessage(ctx context.Context, id string) error
	DeleteMessagesByChat(ctx context.Context, chatID string) error
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	UpsertChat(ctx context.Context, chat *store.Chat) error
	ReplaceChats(ctx context.Context, ownerID string, chats []*store.Chat) error
	DeleteChat(ctx context.Context, id string) error
	PrefetchMessages(ctx context.Context, chatIDs []string) (map[string][]*store.Message, error)
}

// Coordinator owns the active chat session and funnels every chat and message
// mutation through a consistent update order: memory first, cache second,
// remote last, with compensation when the remote write fails.
type Coordinator struct {
	cache   Cache
	remote  remote.Client
	session *Session
	ownerID string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a coordinator for the given owner.
func New(cache Cache, remoteClient remote.Client, ownerID string) *Coordinator {
	return &Coordinator{
		cache:   cache,
		remote:  remoteClient,
		session: NewSession(),
		ownerID: ownerID,
		logger:  slog.Default().With("component", "sync"),
		now:     time.Now,
	}
}

// Session exposes the active session for read access.
func (c *Coordinator) Session() *Session {
	return c.session
}

// Select makes chatID the active chat. Cached messages are shown immediately
// when present, with a background refresh reconciling against the remote.
// When the cache is empty the select blocks on the remote fetch, and the
// session lands in StateLoadError if that fetch fails.
func (c *Coordinator) Select(ctx context.Context, chatID string) error {
	epoch := c.session.begin(chatID)

	cached, err := c.cache.ListMessagesByChat(ctx, chatID)
	if err != nil {
		c.logger.Warn("cache read failed, falling back to remote", "chat_id", chatID, "error", err)
		cached = nil
	}

	if len(cached) > 0 {
		c.session.setReady(chatID, epoch, cached)
		c.session.setSyncing(chatID, epoch, true)
		// Reconcile in the background; the epoch guard discards the
		// result if the user has moved on by the time it lands.
		go func() {
			if err := c.refresh(context.Background(), chatID, epoch); err != nil {
				c.logger.Warn("background refresh failed", "chat_id", chatID, "error", err)
			}
		}()
		return nil
	}

	messages, err := c.remote.ListMessages(ctx, chatID)
	if err != nil {
		c.session.setLoadError(chatID, epoch)
		return fmt.Errorf("loading chat %s: %w", chatID, err)
	}
	if !c.session.setReady(chatID, epoch, messages) {
		return nil
	}
	c.mirrorMessages(ctx, chatID, messages)
	return nil
}

// Refresh re-fetches the active chat from the remote and reconciles memory
// and cache. A failed refresh leaves the current state visible.
func (c *Coordinator) Refresh(ctx context.Context) error {
	chatID, epoch := c.session.ident()
	if chatID == "" {
		return ErrNoActiveChat
	}
	c.session.setSyncing(chatID, epoch, true)
	return c.refresh(ctx, chatID, epoch)
}

func (c *Coordinator) refresh(ctx context.Context, chatID string, epoch uint64) error {
	messages, err := c.remote.ListMessages(ctx, chatID)
	if err != nil {
		c.session.setSyncing(chatID, epoch, false)
		return fmt.Errorf("refreshing chat %s: %w", chatID, err)
	}
	if !c.session.setReady(chatID, epoch, messages) {
		c.logger.Debug("discarding stale refresh", "chat_id", chatID, "epoch", epoch)
		return nil
	}
	c.mirrorMessages(ctx, chatID, messages)
	return nil
}

// AutoRefresh re-runs Refresh for the active chat on a fixed cadence until
// ctx is done. Failed ticks are logged and skipped; the next tick tries
// again. onSync, if non-nil, runs after every successful refresh.
func (c *Coordinator) AutoRefresh(ctx context.Context, interval time.Duration, onSync func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.session.ChatID() == "" {
				continue
			}
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("periodic refresh failed", "error", err)
				continue
			}
			if onSync != nil {
				onSync()
			}
		}
	}
}

// AddMessage appends a message to the active chat. The message becomes
// visible immediately; if the remote insert fails the message is removed
// again from memory and cache and the error is returned.
func (c *Coordinator) AddMessage(ctx context.Context, msg *store.Message) error {
	chatID := c.session.ChatID()
	if chatID == "" {
		return ErrNoActiveChat
	}
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	if msg.ChatID != chatID {
		return fmt.Errorf("message targets chat %s but %s is active", msg.ChatID, chatID)
	}
	if msg.Role != store.RoleSystem && msg.Role != store.RoleUser && msg.Role != store.RoleAssistant {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now()
	}
	// Keep the sequence strictly ordered even when the clock and the last
	// message collide.
	if last := c.session.lastCreatedAt(); !msg.CreatedAt.After(last) {
		msg.CreatedAt = last.Add(time.Millisecond)
	}

	c.session.append(msg)
	if err := c.cache.UpsertMessage(ctx, msg); err != nil {
		c.logger.Warn("cache write failed", "message_id", msg.ID, "error", err)
	}

	if err := c.remote.InsertMessages(ctx, []*store.Message{msg}); err != nil {
		c.session.remove(msg.ID)
		if cerr := c.cache.DeleteMessage(ctx, msg.ID); cerr != nil && !errors.Is(cerr, store.ErrNotFound) {
			c.logger.Warn("rollback cache delete failed", "message_id", msg.ID, "error", cerr)
		}
		return fmt.Errorf("adding message: %w", err)
	}
	return nil
}

// UpdateMessage applies partial fields to a message in the active chat. The
// merge is applied optimistically; a remote failure triggers a full refresh
// so the visible state converges back to the remote's.
func (c *Coordinator) UpdateMessage(ctx context.Context, id string, fields map[string]any) error {
	chatID := c.session.ChatID()
	if chatID == "" {
		return ErrNoActiveChat
	}
	merged := c.session.merge(id, fields)
	if merged == nil {
		return ErrTargetNotFound
	}
	if err := c.cache.UpsertMessage(ctx, merged); err != nil {
		c.logger.Warn("cache write failed", "message_id", id, "error", err)
	}

	if err := c.remote.UpdateMessage(ctx, id, fields); err != nil {
		c.logger.Warn("remote update failed, refreshing", "message_id", id, "error", err)
		if rerr := c.Refresh(ctx); rerr != nil {
			c.logger.Warn("post-failure refresh failed", "chat_id", chatID, "error", rerr)
		}
		return fmt.Errorf("updating message %s: %w", id, err)
	}
	return nil
}

// DeleteMessage removes a message from the active chat. The removal is
// optimistic; a remote failure restores the message in its original position.
func (c *Coordinator) DeleteMessage(ctx context.Context, id string) error {
	if c.session.ChatID() == "" {
		return ErrNoActiveChat
	}
	snapshot := c.session.get(id)
	if snapshot == nil {
		return ErrTargetNotFound
	}

	c.session.remove(id)
	if err := c.cache.DeleteMessage(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("cache delete failed", "message_id", id, "error", err)
	}

	if err := c.remote.DeleteMessage(ctx, id); err != nil {
		c.session.insertSorted(snapshot)
		if cerr := c.cache.UpsertMessage(ctx, snapshot); cerr != nil {
			c.logger.Warn("rollback cache restore failed", "message_id", id, "error", cerr)
		}
		return fmt.Errorf("deleting message %s: %w", id, err)
	}
	return nil
}

// UpdateChat applies partial fields (title, pinned flag) to a chat. The
// cached row is merged optimistically; a remote failure triggers a chat-list
// refresh so the cache converges back to the remote's state.
func (c *Coordinator) UpdateChat(ctx context.Context, chatID string, fields map[string]any) error {
	cached, err := c.cache.GetChat(ctx, chatID)
	switch {
	case err == nil:
		merged := *cached
		if title, ok := fields["title"].(string); ok {
			merged.Title = title
		}
		if pinned, ok := fields["pinned"].(bool); ok {
			merged.Pinned = pinned
		}
		merged.UpdatedAt = c.now()
		if err := c.cache.UpsertChat(ctx, &merged); err != nil {
			c.logger.Warn("cache write failed", "chat_id", chatID, "error", err)
		}
	case errors.Is(err, store.ErrNotFound):
		// Not cached yet; the remote update alone is fine.
	default:
		c.logger.Warn("cache read failed", "chat_id", chatID, "error", err)
	}

	if err := c.remote.UpdateChat(ctx, chatID, fields); err != nil {
		c.logger.Warn("remote chat update failed, refreshing list", "chat_id", chatID, "error", err)
		if _, rerr := c.RefreshChatList(ctx); rerr != nil {
			c.logger.Warn("post-failure chat list refresh failed", "error", rerr)
		}
		return fmt.Errorf("updating chat %s: %w", chatID, err)
	}
	return nil
}

// DeleteChat removes a chat and its messages. The remote delete runs first;
// the cache is cleaned up best-effort afterwards.
func (c *Coordinator) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.remote.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("deleting chat %s: %w", chatID, err)
	}
	if err := c.cache.DeleteMessagesByChat(ctx, chatID); err != nil {
		c.logger.Warn("cache message cleanup failed", "chat_id", chatID, "error", err)
	}
	if err := c.cache.DeleteChat(ctx, chatID); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Warn("cache chat cleanup failed", "chat_id", chatID, "error", err)
	}
	if c.session.ChatID() == chatID {
		c.session.reset()
	}
	return nil
}

// RefreshChatList fetches the owner's chat list from the remote and replaces
// the cached copy. A failed fetch leaves the cache untouched.
func (c *Coordinator) RefreshChatList(ctx context.Context) ([]*store.Chat, error) {
	chats, err := c.remote.ListChats(ctx, c.ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	if err := c.cache.ReplaceChats(ctx, c.ownerID, chats); err != nil {
		c.logger.Warn("cache chat list write failed", "error", err)
	}
	return chats, nil
}

// PrefetchChats warms the in-process view of several chats from the cache in
// one round trip. Missing chats simply have no entry in the result.
func (c *Coordinator) PrefetchChats(ctx context.Context, chatIDs []string) map[string][]*store.Message {
	grouped, err := c.cache.PrefetchMessages(ctx, chatIDs)
	if err != nil {
		c.logger.Warn("prefetch failed", "error", err)
		return map[string][]*store.Message{}
	}
	return grouped
}

// mirrorMessages writes a fetched message set into the cache. Failures are
// logged and swallowed; the cache is an accelerator, not a ledger.
func (c *Coordinator) mirrorMessages(ctx context.Context, chatID string, messages []*store.Message) {
	if err := c.cache.ReplaceMessages(ctx, chatID, messages); err != nil {
		c.logger.Warn("cache mirror failed", "chat_id", chatID, "error", err)
	}
}
