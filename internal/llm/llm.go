// ABOUTME: Provider-neutral completion interface consumed by the CLI wiring
// ABOUTME: Credentials come from the vault; the transport behind this is pluggable

package llm

import (
	"context"

	"github.com/driftline/driftline/internal/store"
)

// ChatMessage is one turn of the conversation sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the conversation and the credential selected for
// the call. APIKey comes out of the vault at call time and is never stored on
// this struct longer than the request.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	APIKey string `json:"-"`
}

// Completion is the provider's reply.
type Completion struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// Completer generates a model reply for a conversation. Implementations wrap
// a concrete provider API.
type Completer interface {
	GenerateChatCompletion(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// FromMessages converts stored chat messages into provider turns, dropping
// anything that is not plain text.
func FromMessages(messages []*store.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Type != store.MessageTypeText {
			continue
		}
		out = append(out, ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}
