// ABOUTME: SQLite implementation of the local chat cache using modernc.org/sqlite
// ABOUTME: Provides chat/project/hat row storage with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache is the local mirror of the remote chat store.
// It is derived, disposable data: any table may be dropped and refilled from
// the remote at any time, and it is never treated as the source of truth.
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteCache opens (or creates) the cache database at the given path.
// The schema is created if it doesn't exist. Parent directories are created
// as needed. Use ":memory:" for tests.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	logger := slog.Default().With("component", "cache")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// WAL mode for concurrent readers during background refreshes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("cache initialized", "path", path)
	return c, nil
}

// createSchema creates the cache tables if they don't exist
func (c *SQLiteCache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			title          TEXT NOT NULL,
			parent_chat_id TEXT,
			project_id     TEXT,
			pinned         INTEGER NOT NULL DEFAULT 0,
			shared         INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chats_owner_created
			ON chats(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			chat_id           TEXT NOT NULL,
			role              TEXT NOT NULL,
			content           TEXT NOT NULL,
			type              TEXT NOT NULL DEFAULT 'text',
			parent_message_id TEXT,
			metadata          TEXT,
			created_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat_created
			ON messages(chat_id, created_at);

		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_owner_created
			ON projects(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS hats (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			name       TEXT NOT NULL,
			prompt     TEXT NOT NULL,
			model      TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_hats_owner_created
			ON hats(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS shared_chats (
			id         TEXT PRIMARY KEY,
			chat_id    TEXT NOT NULL,
			owner_id   TEXT NOT NULL,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_shared_chats_owner
			ON shared_chats(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS user_profiles (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL,
			name       TEXT,
			avatar_url TEXT,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_settings (
			owner_id   TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		-- Single-slot key-value table; the credential vault stores its one
		-- encrypted blob here under a fixed key.
		CREATE TABLE IF NOT EXISTS vault_blobs (
			key        TEXT PRIMARY KEY,
			blob       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Close closes the cache database
func (c *SQLiteCache) Close() error {
	c.logger.Info("closing cache")
	return c.db.Close()
}

// UpsertChat inserts or replaces a single chat row.
func (c *SQLiteCache) UpsertChat(ctx context.Context, chat *Chat) error {
	query := `
		INSERT OR REPLACE INTO chats (id, owner_id, title, parent_chat_id, project_id, pinned, shared, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		chat.ID,
		chat.OwnerID,
		chat.Title,
		nullString(chat.ParentChatID),
		nullString(chat.ProjectID),
		boolToInt(chat.Pinned),
		boolToInt(chat.Shared),
		chat.CreatedAt.UTC().Format(time.RFC3339Nano),
		chat.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting chat: %w", err)
	}

	c.logger.Debug("upserted chat", "id", chat.ID)
	return nil
}

// GetChat retrieves a chat by ID.
// Returns ErrNotFound if the chat is not cached.
func (c *SQLiteCache) GetChat(ctx context.Context, id string) (*Chat, error) {
	query := `
		SELECT id, owner_id, title, parent_chat_id, project_id, pinned, shared, created_at, updated_at
		FROM chats
		WHERE id = ?
	`

	row := c.db.QueryRowContext(ctx, query, id)
	chat, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	return chat, nil
}

// ListChatsByOwner returns all cached chats for an owner, most recent first.
func (c *SQLiteCache) ListChatsByOwner(ctx context.Context, ownerID string) ([]*Chat, error) {
	query := `
		SELECT id, owner_id, title, parent_chat_id, project_id, pinned, shared, created_at, updated_at
		FROM chats
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat rows: %w", err)
	}
	return chats, nil
}

// ReplaceChats clears an owner's chat rows and bulk-inserts the given rows as
// one transaction. Used for full resyncs from the remote.
func (c *SQLiteCache) ReplaceChats(ctx context.Context, ownerID string, chats []*Chat) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("clearing chats: %w", err)
	}

	insert := `
		INSERT INTO chats (id, owner_id, title, parent_chat_id, project_id, pinned, shared, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, chat := range chats {
		if _, err := tx.ExecContext(ctx, insert,
			chat.ID,
			chat.OwnerID,
			chat.Title,
			nullString(chat.ParentChatID),
			nullString(chat.ProjectID),
			boolToInt(chat.Pinned),
			boolToInt(chat.Shared),
			chat.CreatedAt.UTC().Format(time.RFC3339Nano),
			chat.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting chat %s: %w", chat.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chat replace: %w", err)
	}

	c.logger.Debug("replaced chats", "owner_id", ownerID, "count", len(chats))
	return nil
}

// DeleteChat removes a single chat row.
// Returns ErrNotFound if the chat is not cached.
func (c *SQLiteCache) DeleteChat(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	c.logger.Debug("deleted chat", "id", id)
	return nil
}

// ListProjectsByOwner returns all cached projects for an owner, most recent first.
func (c *SQLiteCache) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*Project, error) {
	query := `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM projects
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var description sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		p.Description = description.String
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}

// UpsertProject inserts or replaces a single project row.
func (c *SQLiteCache) UpsertProject(ctx context.Context, p *Project) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO projects (id, owner_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.OwnerID,
		p.Name,
		nullString(p.Description),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting project: %w", err)
	}
	return nil
}

// ListHatsByOwner returns all cached hats for an owner, most recent first.
func (c *SQLiteCache) ListHatsByOwner(ctx context.Context, ownerID string) ([]*Hat, error) {
	query := `
		SELECT id, owner_id, name, prompt, model, created_at, updated_at
		FROM hats
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying hats: %w", err)
	}
	defer rows.Close()

	var hats []*Hat
	for rows.Next() {
		var h Hat
		var model sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Prompt, &model, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning hat row: %w", err)
		}
		h.Model = model.String
		h.CreatedAt = parseTime(createdAt)
		h.UpdatedAt = parseTime(updatedAt)
		hats = append(hats, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hat rows: %w", err)
	}
	return hats, nil
}

// UpsertHat inserts or replaces a single hat row.
func (c *SQLiteCache) UpsertHat(ctx context.Context, h *Hat) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO hats (id, owner_id, name, prompt, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID,
		h.OwnerID,
		h.Name,
		h.Prompt,
		nullString(h.Model),
		h.CreatedAt.UTC().Format(time.RFC3339Nano),
		h.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting hat: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*Chat, error) {
	var chat Chat
	var parentChatID, projectID sql.NullString
	var pinned, shared int
	var createdAt, updatedAt string

	err := s.Scan(
		&chat.ID,
		&chat.OwnerID,
		&chat.Title,
		&parentChatID,
		&projectID,
		&pinned,
		&shared,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	chat.ParentChatID = parentChatID.String
	chat.ProjectID = projectID.String
	chat.Pinned = pinned != 0
	chat.Shared = shared != 0
	chat.CreatedAt = parseTime(createdAt)
	chat.UpdatedAt = parseTime(updatedAt)
	return &chat, nil
}

// parseTime parses a stored RFC3339 timestamp, logging rather than failing on
// malformed values since the cache can always be refilled from the remote.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		slog.Warn("failed to parse cached timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
