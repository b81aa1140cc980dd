// ABOUTME: Opaque key-value slot backing the credential vault's encrypted blob
// ABOUTME: Single-row storage; writes fully replace the previous blob

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// vaultBlobKey is the fixed key under which the vault stores its one blob.
const vaultBlobKey = "credential_vault"

// GetVaultBlob returns the vault's encrypted blob.
// Returns ErrNotFound if no blob has ever been persisted.
func (c *SQLiteCache) GetVaultBlob(ctx context.Context) (string, error) {
	var blob string
	err := c.db.QueryRowContext(ctx,
		`SELECT blob FROM vault_blobs WHERE key = ?`, vaultBlobKey,
	).Scan(&blob)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying vault blob: %w", err)
	}
	return blob, nil
}

// PutVaultBlob overwrites the vault blob in a single statement. The write
// either fully succeeds or leaves the previous blob intact; readers never see
// a partial blob.
func (c *SQLiteCache) PutVaultBlob(ctx context.Context, blob string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO vault_blobs (key, blob, updated_at)
		VALUES (?, ?, ?)
	`, vaultBlobKey, blob, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing vault blob: %w", err)
	}

	c.logger.Debug("wrote vault blob", "size", len(blob))
	return nil
}

// DeleteVaultBlob discards the stored blob. Used by callers that recover from
// an unreadable blob by treating the vault as empty.
func (c *SQLiteCache) DeleteVaultBlob(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM vault_blobs WHERE key = ?`, vaultBlobKey); err != nil {
		return fmt.Errorf("deleting vault blob: %w", err)
	}
	return nil
}
