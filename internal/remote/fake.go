// ABOUTME: In-memory Client implementation for tests and local demos
// ABOUTME: Supports per-operation failure injection and call recording

package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/driftline/driftline/internal/store"
)

// Fake is an in-memory remote store. Tests inject failures by setting the
// per-operation error fields; every call is appended to Calls so compensation
// sequences can be asserted.
type Fake struct {
	mu       sync.Mutex
	chats    map[string]*store.Chat
	messages map[string]*store.Message // keyed by message ID
	shared   map[string][]*store.Message

	Calls []string

	ListChatsErr          error
	InsertChatErr         error
	UpdateChatErr         error
	DeleteChatErr         error
	ListMessagesErr       error
	InsertMessagesErr     error
	UpdateMessageErr      error
	DeleteMessageErr      error
	ListSharedMessagesErr error
}

// NewFake creates an empty in-memory remote store.
func NewFake() *Fake {
	return &Fake{
		chats:    make(map[string]*store.Chat),
		messages: make(map[string]*store.Message),
		shared:   make(map[string][]*store.Message),
	}
}

// SeedShared registers the messages of a published shared chat.
func (f *Fake) SeedShared(sharedChatID string, messages []*store.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copies := make([]*store.Message, len(messages))
	for i, m := range messages {
		c := *m
		copies[i] = &c
	}
	f.shared[sharedChatID] = copies
}

// ChatCount returns the number of chats currently held.
func (f *Fake) ChatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats)
}

// HasChat reports whether a chat row exists.
func (f *Fake) HasChat(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.chats[id]
	return ok
}

// HasMessage reports whether a message row exists.
func (f *Fake) HasMessage(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[id]
	return ok
}

func (f *Fake) ListChats(ctx context.Context, ownerID string) ([]*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ListChats")
	if f.ListChatsErr != nil {
		return nil, f.ListChatsErr
	}

	var chats []*store.Chat
	for _, chat := range f.chats {
		if chat.OwnerID == ownerID {
			c := *chat
			chats = append(chats, &c)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (f *Fake) InsertChat(ctx context.Context, chat *store.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "InsertChat")
	if f.InsertChatErr != nil {
		return f.InsertChatErr
	}

	c := *chat
	f.chats[c.ID] = &c
	return nil
}

func (f *Fake) UpdateChat(ctx context.Context, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "UpdateChat")
	if f.UpdateChatErr != nil {
		return f.UpdateChatErr
	}

	chat, ok := f.chats[id]
	if !ok {
		return store.ErrNotFound
	}
	if title, ok := fields["title"].(string); ok {
		chat.Title = title
	}
	if pinned, ok := fields["pinned"].(bool); ok {
		chat.Pinned = pinned
	}
	return nil
}

func (f *Fake) DeleteChat(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "DeleteChat")
	if f.DeleteChatErr != nil {
		return f.DeleteChatErr
	}

	delete(f.chats, id)
	for mid, msg := range f.messages {
		if msg.ChatID == id {
			delete(f.messages, mid)
		}
	}
	return nil
}

func (f *Fake) ListMessages(ctx context.Context, chatID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ListMessages")
	if f.ListMessagesErr != nil {
		return nil, f.ListMessagesErr
	}

	var messages []*store.Message
	for _, msg := range f.messages {
		if msg.ChatID == chatID {
			m := *msg
			messages = append(messages, &m)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (f *Fake) InsertMessages(ctx context.Context, messages []*store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "InsertMessages")
	if f.InsertMessagesErr != nil {
		return f.InsertMessagesErr
	}

	for _, msg := range messages {
		m := *msg
		f.messages[m.ID] = &m
	}
	return nil
}

func (f *Fake) UpdateMessage(ctx context.Context, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "UpdateMessage")
	if f.UpdateMessageErr != nil {
		return f.UpdateMessageErr
	}

	msg, ok := f.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	if content, ok := fields["content"].(string); ok {
		msg.Content = content
	}
	if metadata, ok := fields["metadata"].(string); ok {
		msg.Metadata = metadata
	}
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "DeleteMessage")
	if f.DeleteMessageErr != nil {
		return f.DeleteMessageErr
	}

	delete(f.messages, id)
	return nil
}

func (f *Fake) ListSharedMessages(ctx context.Context, sharedChatID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "ListSharedMessages")
	if f.ListSharedMessagesErr != nil {
		return nil, f.ListSharedMessagesErr
	}

	messages, ok := f.shared[sharedChatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copies := make([]*store.Message, len(messages))
	for i, m := range messages {
		c := *m
		copies[i] = &c
	}
	return copies, nil
}

// Ensure Fake implements Client
var _ Client = (*Fake)(nil)
