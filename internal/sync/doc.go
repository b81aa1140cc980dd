// ABOUTME: Package documentation for the sync coordinator
// ABOUTME: Explains the cache-as-mirror model and the optimistic update order

// Package sync keeps the in-memory chat session, the local SQLite cache, and
// the remote backend in agreement.
//
// The remote is the source of truth. The cache exists so a chat opens
// instantly on revisit; it is refreshed after every successful remote read
// and never consulted to decide whether a mutation took. Mutations apply to
// memory and cache first so the UI reflects them immediately, then commit to
// the remote; when the remote write fails the coordinator compensates
// (removes the added message, restores the deleted one, or re-fetches) so the
// visible state converges back to what the remote holds.
//
// Chat selection is epoch-guarded: each Select bumps a counter, and any fetch
// still in flight for an earlier selection is discarded when it lands instead
// of bleeding into the newly selected chat.
package sync
