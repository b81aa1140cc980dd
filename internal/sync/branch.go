// ABOUTME: Branching and shared-chat copying: prefix duplication into a new chat
// ABOUTME: Remote-first with compensating chat delete, then best-effort cache mirror

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/driftline/internal/store"
)

const (
	defaultBranchTitle = "New conversation"
	branchTitleMax     = 50
)

// BranchConversation forks the active chat at the given message: a new chat
// is created containing copies of every message up to and including the
// branch point. Returns the new chat's ID.
//
// The copies get fresh IDs and synthetic strictly increasing timestamps, so
// the new chat's ordering is stable regardless of how fast the copies were
// written. Parent message linkage is not carried over; the new chat records
// its origin through ParentChatID instead.
func (c *Coordinator) BranchConversation(ctx context.Context, messageID string) (string, error) {
	chatID := c.session.ChatID()
	if chatID == "" {
		return "", ErrNoActiveChat
	}
	prefix := c.session.prefixTo(messageID)
	if prefix == nil {
		return "", ErrTargetNotFound
	}
	if len(prefix) == 0 {
		return "", ErrEmptyBranch
	}

	base := c.now()
	chat := &store.Chat{
		ID:           uuid.New().String(),
		OwnerID:      c.ownerID,
		Title:        branchTitle(prefix),
		ParentChatID: chatID,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	copies := copyInto(chat.ID, prefix, base)

	if err := c.createChatWithMessages(ctx, chat, copies); err != nil {
		return "", fmt.Errorf("branching chat %s: %w", chatID, err)
	}
	return chat.ID, nil
}

// CopySharedChat duplicates a shared chat's messages into a new private chat
// owned by the current user. Returns the new chat's ID.
func (c *Coordinator) CopySharedChat(ctx context.Context, sharedChatID, title string) (string, error) {
	messages, err := c.remote.ListSharedMessages(ctx, sharedChatID)
	if err != nil {
		return "", fmt.Errorf("fetching shared chat %s: %w", sharedChatID, err)
	}

	base := c.now()
	if title == "" {
		title = branchTitle(messages)
	}
	chat := &store.Chat{
		ID:        uuid.New().String(),
		OwnerID:   c.ownerID,
		Title:     title,
		Shared:    false,
		CreatedAt: base,
		UpdatedAt: base,
	}
	copies := copyInto(chat.ID, messages, base)

	if err := c.createChatWithMessages(ctx, chat, copies); err != nil {
		return "", fmt.Errorf("copying shared chat %s: %w", sharedChatID, err)
	}
	return chat.ID, nil
}

// createChatWithMessages commits a new chat and its messages to the remote.
// If the message insert fails after the chat was created, the chat is torn
// down again so no empty husk is left behind. On success the cache is
// mirrored best-effort.
func (c *Coordinator) createChatWithMessages(ctx context.Context, chat *store.Chat, messages []*store.Message) error {
	if err := c.remote.InsertChat(ctx, chat); err != nil {
		return fmt.Errorf("creating chat: %w", err)
	}
	if len(messages) > 0 {
		if err := c.remote.InsertMessages(ctx, messages); err != nil {
			if derr := c.remote.DeleteChat(ctx, chat.ID); derr != nil {
				c.logger.Warn("compensating chat delete failed", "chat_id", chat.ID, "error", derr)
			}
			return fmt.Errorf("copying messages: %w", err)
		}
	}

	if err := c.cache.UpsertChat(ctx, chat); err != nil {
		c.logger.Warn("cache chat mirror failed", "chat_id", chat.ID, "error", err)
	}
	c.mirrorMessages(ctx, chat.ID, messages)
	return nil
}

// copyInto clones messages into a new chat, assigning fresh IDs and
// timestamps offset from base by position.
func copyInto(chatID string, messages []*store.Message, base time.Time) []*store.Message {
	copies := make([]*store.Message, len(messages))
	for i, msg := range messages {
		m := *msg
		m.ID = uuid.New().String()
		m.ChatID = chatID
		m.ParentMessageID = ""
		m.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		copies[i] = &m
	}
	return copies
}

// branchTitle derives a title from the first user message, truncated at
// branchTitleMax runes.
func branchTitle(messages []*store.Message) string {
	for _, msg := range messages {
		if msg.Role != store.RoleUser || msg.Content == "" {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > branchTitleMax {
			return string(runes[:branchTitleMax]) + "..."
		}
		return msg.Content
	}
	return defaultBranchTitle
}
