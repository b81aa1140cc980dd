// ABOUTME: Message table operations for the local chat cache
// ABOUTME: Ordered reads, bulk replace, and grouped prefetch across chats

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertMessage inserts or replaces a single message row.
func (c *SQLiteCache) UpsertMessage(ctx context.Context, msg *Message) error {
	msgType := msg.Type
	if msgType == "" {
		msgType = MessageTypeText
	}

	query := `
		INSERT OR REPLACE INTO messages (id, chat_id, role, content, type, parent_message_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		msg.ID,
		msg.ChatID,
		msg.Role,
		msg.Content,
		msgType,
		nullString(msg.ParentMessageID),
		nullString(msg.Metadata),
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting message: %w", err)
	}

	c.logger.Debug("upserted message", "id", msg.ID, "chat_id", msg.ChatID)
	return nil
}

// ListMessagesByChat returns all cached messages for a chat in chronological
// order (oldest first).
func (c *SQLiteCache) ListMessagesByChat(ctx context.Context, chatID string) ([]*Message, error) {
	query := `
		SELECT id, chat_id, role, content, type, parent_message_id, metadata, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC
	`

	rows, err := c.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// PrefetchMessages loads the messages of several chats in a single grouped
// query, keyed by chat ID with each group in chronological order.
//
// Prefetch is an optimization, never a correctness requirement: on any
// underlying failure it returns an empty map rather than partial results.
func (c *SQLiteCache) PrefetchMessages(ctx context.Context, chatIDs []string) (map[string][]*Message, error) {
	if len(chatIDs) == 0 {
		return map[string][]*Message{}, nil
	}

	placeholders := strings.Repeat("?,", len(chatIDs))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		SELECT id, chat_id, role, content, type, parent_message_id, metadata, created_at
		FROM messages
		WHERE chat_id IN (%s)
		ORDER BY chat_id, created_at ASC
	`, placeholders)

	args := make([]any, len(chatIDs))
	for i, id := range chatIDs {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		c.logger.Warn("prefetch query failed", "error", err)
		return map[string][]*Message{}, nil
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		c.logger.Warn("prefetch scan failed", "error", err)
		return map[string][]*Message{}, nil
	}

	grouped := make(map[string][]*Message, len(chatIDs))
	for _, msg := range messages {
		grouped[msg.ChatID] = append(grouped[msg.ChatID], msg)
	}
	return grouped, nil
}

// ReplaceMessages clears a chat's message rows and bulk-inserts the given rows
// as one transaction. Used when a remote refresh supersedes the cached copy.
func (c *SQLiteCache) ReplaceMessages(ctx context.Context, chatID string, messages []*Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	insert := `
		INSERT INTO messages (id, chat_id, role, content, type, parent_message_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, msg := range messages {
		msgType := msg.Type
		if msgType == "" {
			msgType = MessageTypeText
		}
		if _, err := tx.ExecContext(ctx, insert,
			msg.ID,
			msg.ChatID,
			msg.Role,
			msg.Content,
			msgType,
			nullString(msg.ParentMessageID),
			nullString(msg.Metadata),
			msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message replace: %w", err)
	}

	c.logger.Debug("replaced messages", "chat_id", chatID, "count", len(messages))
	return nil
}

// DeleteMessage removes a single message row.
// Returns ErrNotFound if the message is not cached.
func (c *SQLiteCache) DeleteMessage(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	c.logger.Debug("deleted message", "id", id)
	return nil
}

// DeleteMessagesByChat removes all message rows for a chat.
// Deleting zero rows is not an error; the chat may simply not be cached.
func (c *SQLiteCache) DeleteMessagesByChat(ctx context.Context, chatID string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("deleting chat messages: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		c.logger.Debug("deleted chat messages", "chat_id", chatID, "count", rowsAffected)
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		var msg Message
		var parentMessageID, metadata sql.NullString
		var createdAt string

		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&msg.Type,
			&parentMessageID,
			&metadata,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.ParentMessageID = parentMessageID.String
		msg.Metadata = metadata.String
		msg.CreatedAt = parseTime(createdAt)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}
