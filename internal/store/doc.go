// Package store provides the local chat cache backed by SQLite.
//
// # Role
//
// The cache is a fast, query-by-index mirror of the authoritative remote
// store. It is never the system of record: whenever a cached row conflicts
// with a successful remote write, the remote wins, and any table may be
// dropped and refilled from the remote at any time. Only the sync coordinator
// writes to the chat and message tables.
//
// # Tables
//
//   - chats: conversations, indexed by (owner_id, created_at DESC)
//   - messages: indexed by (chat_id, created_at ASC)
//   - projects, hats, shared_chats: companion entities, indexed by owner
//   - user_profiles, user_settings: account mirrors
//   - vault_blobs: a single opaque slot holding the credential vault's
//     encrypted blob under a fixed key
//
// # Atomicity
//
// Every exported call is atomic: single-row mutations are one statement, and
// the bulk Replace* operations run clear-then-insert inside one transaction.
// PrefetchMessages is the one deliberately lossy read; it returns an empty
// map on any underlying failure because prefetch is an optimization, never a
// correctness requirement.
//
// # Timestamps
//
// All timestamps are stored as RFC3339Nano TEXT in UTC. created_at is the
// sole ordering key within a chat; batch writers upstream assign strictly
// increasing values so the order is total.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteCache(":memory:") in tests.
package store
