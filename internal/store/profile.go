// ABOUTME: Cached user profile, settings, and shared chat rows
// ABOUTME: Small mirrors of the remote account tables

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertUserProfile inserts or replaces the cached profile row.
func (c *SQLiteCache) UpsertUserProfile(ctx context.Context, p *UserProfile) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_profiles (id, email, name, avatar_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		p.ID,
		p.Email,
		nullString(p.Name),
		nullString(p.AvatarURL),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting user profile: %w", err)
	}
	return nil
}

// GetUserProfile returns the cached profile row.
// Returns ErrNotFound if the profile has not been cached.
func (c *SQLiteCache) GetUserProfile(ctx context.Context, id string) (*UserProfile, error) {
	var p UserProfile
	var name, avatarURL sql.NullString
	var updatedAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT id, email, name, avatar_url, updated_at
		FROM user_profiles
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Email, &name, &avatarURL, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user profile: %w", err)
	}

	p.Name = name.String
	p.AvatarURL = avatarURL.String
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// PutUserSettings overwrites the cached settings document for an owner.
func (c *SQLiteCache) PutUserSettings(ctx context.Context, s *UserSettings) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_settings (owner_id, data, updated_at)
		VALUES (?, ?, ?)
	`, s.OwnerID, s.Data, s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing user settings: %w", err)
	}
	return nil
}

// GetUserSettings returns the cached settings document for an owner.
// Returns ErrNotFound if no settings have been cached.
func (c *SQLiteCache) GetUserSettings(ctx context.Context, ownerID string) (*UserSettings, error) {
	var s UserSettings
	var updatedAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT owner_id, data, updated_at FROM user_settings WHERE owner_id = ?
	`, ownerID).Scan(&s.OwnerID, &s.Data, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user settings: %w", err)
	}

	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// UpsertSharedChat inserts or replaces a cached shared chat row.
func (c *SQLiteCache) UpsertSharedChat(ctx context.Context, sc *SharedChat) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO shared_chats (id, chat_id, owner_id, title, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sc.ID, sc.ChatID, sc.OwnerID, sc.Title, sc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting shared chat: %w", err)
	}
	return nil
}

// ListSharedChatsByOwner returns cached shared chats published by an owner,
// most recent first.
func (c *SQLiteCache) ListSharedChatsByOwner(ctx context.Context, ownerID string) ([]*SharedChat, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, chat_id, owner_id, title, created_at
		FROM shared_chats
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying shared chats: %w", err)
	}
	defer rows.Close()

	var shared []*SharedChat
	for rows.Next() {
		var sc SharedChat
		var createdAt string
		if err := rows.Scan(&sc.ID, &sc.ChatID, &sc.OwnerID, &sc.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning shared chat row: %w", err)
		}
		sc.CreatedAt = parseTime(createdAt)
		shared = append(shared, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shared chat rows: %w", err)
	}
	return shared, nil
}
