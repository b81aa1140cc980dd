// ABOUTME: Tests for cached message operations
// ABOUTME: Covers chronological ordering, bulk replace, and grouped prefetch

package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedMessages(t *testing.T, cache *SQLiteCache, chatID string, n int, base time.Time) []*Message {
	t.Helper()
	ctx := context.Background()

	var messages []*Message
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg := &Message{
			ID:        fmt.Sprintf("%s-msg-%d", chatID, i),
			ChatID:    chatID,
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := cache.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
		messages = append(messages, msg)
	}
	return messages
}

func TestListMessagesByChat_Ascending(t *testing.T) {
	cache := newTestCache(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Insert out of order; read must come back chronological
	ctx := context.Background()
	for _, i := range []int{2, 0, 1} {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			ChatID:    "chat-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := cache.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
	}

	messages, err := cache.ListMessagesByChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ListMessagesByChat failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.ID != fmt.Sprintf("msg-%d", i) {
			t.Errorf("position %d: got %q", i, msg.ID)
		}
	}
	if messages[0].Type != MessageTypeText {
		t.Errorf("expected default type %q, got %q", MessageTypeText, messages[0].Type)
	}
}

func TestReplaceMessages(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seedMessages(t, cache, "chat-1", 3, base)

	fresh := []*Message{
		{ID: "n-0", ChatID: "chat-1", Role: RoleUser, Content: "fresh", CreatedAt: base},
	}
	if err := cache.ReplaceMessages(ctx, "chat-1", fresh); err != nil {
		t.Fatalf("ReplaceMessages failed: %v", err)
	}

	messages, err := cache.ListMessagesByChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ListMessagesByChat failed: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != "n-0" {
		t.Fatalf("replace did not supersede rows: %+v", messages)
	}
}

func TestPrefetchMessages_GroupedAndOrdered(t *testing.T) {
	cache := newTestCache(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seedMessages(t, cache, "chat-a", 3, base)
	seedMessages(t, cache, "chat-b", 2, base)
	seedMessages(t, cache, "chat-c", 1, base)

	ctx := context.Background()
	grouped, err := cache.PrefetchMessages(ctx, []string{"chat-a", "chat-b"})
	if err != nil {
		t.Fatalf("PrefetchMessages failed: %v", err)
	}

	if len(grouped) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(grouped))
	}
	if len(grouped["chat-a"]) != 3 || len(grouped["chat-b"]) != 2 {
		t.Fatalf("group sizes wrong: a=%d b=%d", len(grouped["chat-a"]), len(grouped["chat-b"]))
	}
	if _, ok := grouped["chat-c"]; ok {
		t.Error("chat-c was not requested and must not appear")
	}
	for i, msg := range grouped["chat-a"] {
		if msg.ID != fmt.Sprintf("chat-a-msg-%d", i) {
			t.Errorf("chat-a position %d: got %q", i, msg.ID)
		}
	}
}

func TestPrefetchMessages_Idempotent(t *testing.T) {
	cache := newTestCache(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedMessages(t, cache, "chat-a", 2, base)

	ctx := context.Background()
	first, err := cache.PrefetchMessages(ctx, []string{"chat-a"})
	if err != nil {
		t.Fatalf("PrefetchMessages failed: %v", err)
	}
	second, err := cache.PrefetchMessages(ctx, []string{"chat-a"})
	if err != nil {
		t.Fatalf("second PrefetchMessages failed: %v", err)
	}

	if len(first["chat-a"]) != len(second["chat-a"]) {
		t.Fatalf("prefetch not idempotent: %d vs %d", len(first["chat-a"]), len(second["chat-a"]))
	}
	for i := range first["chat-a"] {
		if first["chat-a"][i].ID != second["chat-a"][i].ID {
			t.Errorf("position %d differs between calls", i)
		}
	}
}

func TestPrefetchMessages_EmptyInput(t *testing.T) {
	cache := newTestCache(t)

	grouped, err := cache.PrefetchMessages(context.Background(), nil)
	if err != nil {
		t.Fatalf("PrefetchMessages failed: %v", err)
	}
	if len(grouped) != 0 {
		t.Errorf("expected empty map, got %d groups", len(grouped))
	}
}

func TestDeleteMessage(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Now().UTC()
	seedMessages(t, cache, "chat-1", 2, base)

	if err := cache.DeleteMessage(ctx, "chat-1-msg-0"); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	if err := cache.DeleteMessage(ctx, "chat-1-msg-0"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}

	messages, err := cache.ListMessagesByChat(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ListMessagesByChat failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message left, got %d", len(messages))
	}
}

func TestDeleteMessagesByChat(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Now().UTC()
	seedMessages(t, cache, "chat-1", 3, base)
	seedMessages(t, cache, "chat-2", 2, base)

	if err := cache.DeleteMessagesByChat(ctx, "chat-1"); err != nil {
		t.Fatalf("DeleteMessagesByChat failed: %v", err)
	}
	// Deleting an uncached chat is not an error
	if err := cache.DeleteMessagesByChat(ctx, "chat-unknown"); err != nil {
		t.Fatalf("DeleteMessagesByChat on unknown chat failed: %v", err)
	}

	left, err := cache.ListMessagesByChat(ctx, "chat-2")
	if err != nil {
		t.Fatalf("ListMessagesByChat failed: %v", err)
	}
	if len(left) != 2 {
		t.Errorf("chat-2 rows should be untouched, got %d", len(left))
	}
}
