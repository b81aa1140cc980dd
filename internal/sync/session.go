// ABOUTME: Per-chat session state machine for the sync coordinator
// ABOUTME: Tracks load state, the in-memory message sequence, and a staleness epoch

package sync

import (
	"sort"
	"sync"
	"time"

	"github.com/driftline/driftline/internal/store"
)

// State is the load state of the active chat.
type State string

const (
	StateIdle      State = "idle"       // no chat selected
	StateLoading   State = "loading"    // cache empty, waiting on the remote
	StateReady     State = "ready"      // messages visible (possibly stale)
	StateLoadError State = "load_error" // initial load failed
)

// Session holds the visible state for the currently selected chat. It is the
// single source the UI reads from; the coordinator mutates it optimistically
// and reconciles it against remote outcomes.
//
// Every Select bumps an epoch. In-flight results carry the epoch they started
// under, and results for a superseded epoch are discarded on arrival rather
// than merged into the now-current chat.
type Session struct {
	mu       sync.RWMutex
	chatID   string
	epoch    uint64
	state    State
	syncing  bool
	messages []*store.Message
}

// NewSession creates an idle session with no chat selected.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// ChatID returns the currently selected chat, or "" when idle.
func (s *Session) ChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// State returns the current load state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Syncing reports whether a background refresh is in flight.
func (s *Session) Syncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncing
}

// Messages returns a copy of the visible message sequence.
func (s *Session) Messages() []*store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMessages(s.messages)
}

// begin selects a new chat, abandoning anything in flight for the previous
// one, and returns the new epoch.
func (s *Session) begin(chatID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
	s.epoch++
	s.state = StateLoading
	s.syncing = false
	s.messages = nil
	return s.epoch
}

// reset deselects the active chat and abandons anything in flight for it.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = ""
	s.epoch++
	s.state = StateIdle
	s.syncing = false
	s.messages = nil
}

// ident returns the active chat and epoch as a pair.
func (s *Session) ident() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID, s.epoch
}

// setReady replaces the visible sequence, if the epoch is still current.
// Returns false when the result was stale and dropped.
func (s *Session) setReady(chatID string, epoch uint64, messages []*store.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chatID || s.epoch != epoch {
		return false
	}
	s.messages = copyMessages(messages)
	s.state = StateReady
	s.syncing = false
	return true
}

// setLoadError marks the initial load as failed, if still current.
func (s *Session) setLoadError(chatID string, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chatID || s.epoch != epoch {
		return false
	}
	s.state = StateLoadError
	s.syncing = false
	return true
}

// setSyncing flags a background refresh, if still current.
func (s *Session) setSyncing(chatID string, epoch uint64, syncing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID != chatID || s.epoch != epoch {
		return
	}
	s.syncing = syncing
}

// append adds a message to the end of the visible sequence.
func (s *Session) append(msg *store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	s.messages = append(s.messages, &m)
}

// get returns a copy of the message with the given ID, or nil.
func (s *Session) get(id string) *store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages {
		if msg.ID == id {
			m := *msg
			return &m
		}
	}
	return nil
}

// prefixTo returns a copy of the visible sequence up to and including the
// message with the given ID, or nil if the ID is not present. Index lookup
// and slicing happen under one lock so a concurrent refresh can never shrink
// the sequence between the two.
func (s *Session) prefixTo(id string) []*store.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, msg := range s.messages {
		if msg.ID == id {
			return copyMessages(s.messages[:i+1])
		}
	}
	return nil
}

// remove deletes the message with the given ID from the visible sequence.
// Returns false if it was not present.
func (s *Session) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.messages {
		if msg.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// merge applies partial fields to the message with the given ID and returns
// a copy of the merged row, or nil if absent.
func (s *Session) merge(id string, fields map[string]any) *store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID != id {
			continue
		}
		if content, ok := fields["content"].(string); ok {
			msg.Content = content
		}
		if metadata, ok := fields["metadata"].(string); ok {
			msg.Metadata = metadata
		}
		if msgType, ok := fields["type"].(string); ok {
			msg.Type = msgType
		}
		m := *msg
		return &m
	}
	return nil
}

// insertSorted re-inserts a message, keeping the sequence ordered by
// created_at. Used when compensating a failed delete.
func (s *Session) insertSorted(msg *store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	s.messages = append(s.messages, &m)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

// lastCreatedAt returns the created_at of the final visible message.
// The zero time is returned for an empty sequence.
func (s *Session) lastCreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return time.Time{}
	}
	return s.messages[len(s.messages)-1].CreatedAt
}

func copyMessages(messages []*store.Message) []*store.Message {
	out := make([]*store.Message, len(messages))
	for i, msg := range messages {
		m := *msg
		out[i] = &m
	}
	return out
}
