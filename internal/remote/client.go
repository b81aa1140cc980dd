// ABOUTME: Client interface for the authoritative remote chat store
// ABOUTME: Row-level CRUD per entity; errors are opaque to callers

package remote

import (
	"context"

	"github.com/driftline/driftline/internal/store"
)

// Client is the contract against the authoritative remote store. The sync
// coordinator treats it as the final arbiter of state: local caches are
// reconciled to whatever these calls confirm.
//
// Errors are opaque; callers may wrap them but must not type-switch on them.
type Client interface {
	// Chats
	ListChats(ctx context.Context, ownerID string) ([]*store.Chat, error)
	InsertChat(ctx context.Context, chat *store.Chat) error
	UpdateChat(ctx context.Context, id string, fields map[string]any) error
	DeleteChat(ctx context.Context, id string) error

	// Messages, always ordered by created_at ascending
	ListMessages(ctx context.Context, chatID string) ([]*store.Message, error)
	InsertMessages(ctx context.Context, messages []*store.Message) error
	UpdateMessage(ctx context.Context, id string, fields map[string]any) error
	DeleteMessage(ctx context.Context, id string) error

	// Shared chats published by other accounts
	ListSharedMessages(ctx context.Context, sharedChatID string) ([]*store.Message, error)
}
