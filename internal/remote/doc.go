// Package remote defines the client contract for the authoritative chat
// store and provides an HTTP implementation plus an in-memory fake.
package remote
