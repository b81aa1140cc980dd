// ABOUTME: HTTP implementation of the remote store client
// ABOUTME: JSON row CRUD with per-request HS256 bearer tokens

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftline/driftline/internal/store"
)

// tokenTTL bounds how long a minted request token stays valid.
const tokenTTL = 5 * time.Minute

// HTTPClient talks to the remote store's row CRUD API over JSON.
// Each request carries a short-lived HS256 bearer token with the owner ID in
// the "sub" claim.
type HTTPClient struct {
	baseURL string
	ownerID string
	secret  []byte
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the remote store at baseURL.
// The secret signs per-request bearer tokens; ownerID becomes the token subject.
func NewHTTPClient(baseURL, ownerID string, secret []byte, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		ownerID: ownerID,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "remote"),
	}
}

// chatRow is the wire form of a chat
type chatRow struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	ParentChatID string    `json:"parent_chat_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	Pinned       bool      `json:"pinned"`
	Shared       bool      `json:"shared"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// messageRow is the wire form of a message
type messageRow struct {
	ID              string    `json:"id"`
	ChatID          string    `json:"chat_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	Type            string    `json:"type,omitempty"`
	ParentMessageID string    `json:"parent_message_id,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListChats fetches all chats for an owner, most recent first.
func (c *HTTPClient) ListChats(ctx context.Context, ownerID string) ([]*store.Chat, error) {
	q := url.Values{"owner_id": {ownerID}, "order": {"created_at.desc"}}
	var rows []chatRow
	if err := c.do(ctx, http.MethodGet, "/v1/chats?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}

	chats := make([]*store.Chat, len(rows))
	for i, r := range rows {
		chats[i] = chatFromRow(r)
	}
	return chats, nil
}

// InsertChat creates a single chat row.
func (c *HTTPClient) InsertChat(ctx context.Context, chat *store.Chat) error {
	return c.do(ctx, http.MethodPost, "/v1/chats", chatToRow(chat), nil)
}

// UpdateChat applies a partial update to a chat row.
func (c *HTTPClient) UpdateChat(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/v1/chats/"+url.PathEscape(id), fields, nil)
}

// DeleteChat removes a chat row.
func (c *HTTPClient) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/chats/"+url.PathEscape(id), nil, nil)
}

// ListMessages fetches all messages of a chat ordered by created_at ascending.
func (c *HTTPClient) ListMessages(ctx context.Context, chatID string) ([]*store.Message, error) {
	q := url.Values{"chat_id": {chatID}, "order": {"created_at.asc"}}
	var rows []messageRow
	if err := c.do(ctx, http.MethodGet, "/v1/messages?"+q.Encode(), nil, &rows); err != nil {
		return nil, err
	}

	messages := make([]*store.Message, len(rows))
	for i, r := range rows {
		messages[i] = messageFromRow(r)
	}
	return messages, nil
}

// InsertMessages bulk-inserts message rows in one request.
func (c *HTTPClient) InsertMessages(ctx context.Context, messages []*store.Message) error {
	rows := make([]messageRow, len(messages))
	for i, m := range messages {
		rows[i] = messageToRow(m)
	}
	return c.do(ctx, http.MethodPost, "/v1/messages", rows, nil)
}

// UpdateMessage applies a partial update to a message row.
func (c *HTTPClient) UpdateMessage(ctx context.Context, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/v1/messages/"+url.PathEscape(id), fields, nil)
}

// DeleteMessage removes a message row.
func (c *HTTPClient) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/messages/"+url.PathEscape(id), nil, nil)
}

// ListSharedMessages fetches the messages of a published shared chat.
func (c *HTTPClient) ListSharedMessages(ctx context.Context, sharedChatID string) ([]*store.Message, error) {
	var rows []messageRow
	path := "/v1/shared_chats/" + url.PathEscape(sharedChatID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}

	messages := make([]*store.Message, len(rows))
	for i, r := range rows {
		messages[i] = messageFromRow(r)
	}
	return messages, nil
}

// do sends one request, minting a fresh bearer token, and decodes the
// response into out when out is non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	token, err := c.mintToken()
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote %s %s: status %d: %s", method, path, resp.StatusCode, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// mintToken creates a short-lived HS256 token identifying the owner
func (c *HTTPClient) mintToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": c.ownerID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

func chatToRow(chat *store.Chat) chatRow {
	return chatRow{
		ID:           chat.ID,
		OwnerID:      chat.OwnerID,
		Title:        chat.Title,
		ParentChatID: chat.ParentChatID,
		ProjectID:    chat.ProjectID,
		Pinned:       chat.Pinned,
		Shared:       chat.Shared,
		CreatedAt:    chat.CreatedAt,
		UpdatedAt:    chat.UpdatedAt,
	}
}

func chatFromRow(r chatRow) *store.Chat {
	return &store.Chat{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		ParentChatID: r.ParentChatID,
		ProjectID:    r.ProjectID,
		Pinned:       r.Pinned,
		Shared:       r.Shared,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func messageToRow(m *store.Message) messageRow {
	return messageRow{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Role:            m.Role,
		Content:         m.Content,
		Type:            m.Type,
		ParentMessageID: m.ParentMessageID,
		Metadata:        m.Metadata,
		CreatedAt:       m.CreatedAt,
	}
}

func messageFromRow(r messageRow) *store.Message {
	return &store.Message{
		ID:              r.ID,
		ChatID:          r.ChatID,
		Role:            r.Role,
		Content:         r.Content,
		Type:            r.Type,
		ParentMessageID: r.ParentMessageID,
		Metadata:        r.Metadata,
		CreatedAt:       r.CreatedAt,
	}
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
