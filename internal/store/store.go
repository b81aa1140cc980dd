// ABOUTME: Row types and data model for the local chat cache
// ABOUTME: Defines Chat, Message and companion entities mirrored from the remote store

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Message roles. Within a chat a message is authored by exactly one of these.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageTypeText is the default message type. The type column is a rendering
// discriminator and is otherwise opaque to the sync core.
const MessageTypeText = "text"

// Chat represents a conversation owned by a user.
// ID is globally unique and immutable once created. ParentChatID, when set,
// records branching lineage and is validated best-effort at creation time only.
type Chat struct {
	ID           string
	OwnerID      string
	Title        string
	ParentChatID string // empty for root chats
	ProjectID    string // empty when unassigned
	Pinned       bool
	Shared       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message represents a single message within a chat.
// CreatedAt is the sole ordering key within a chat; batch writers assign
// strictly increasing timestamps so the order is total even when the clock
// is coarse.
type Message struct {
	ID              string
	ChatID          string
	Role            string // system, user, assistant
	Content         string
	Type            string // rendering discriminator, defaults to "text"
	ParentMessageID string // empty for flattened copies
	Metadata        string // opaque JSON attached by the UI, may be empty
	CreatedAt       time.Time
}

// Project groups chats under a user-defined workspace.
type Project struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Hat is a reusable persona/prompt preset owned by a user.
type Hat struct {
	ID        string
	OwnerID   string
	Name      string
	Prompt    string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SharedChat is a read-only view of another user's published chat.
type SharedChat struct {
	ID        string
	ChatID    string
	OwnerID   string
	Title     string
	CreatedAt time.Time
}

// UserProfile mirrors the remote profile row for the signed-in user.
type UserProfile struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
	UpdatedAt time.Time
}

// UserSettings holds per-user preferences as an opaque JSON document.
type UserSettings struct {
	OwnerID   string
	Data      string
	UpdatedAt time.Time
}
