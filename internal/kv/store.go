// Package kv abstracts the Redis-like key-value backend the secret
// engine and token store need: create-only writes, atomic
// get-and-delete, and a best-effort restore. Callers never import the
// redis package directly.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/GetDel when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ErrExists is returned by SetNX when the key already exists.
var ErrExists = errors.New("kv: key already exists")

// Store is the narrow KV interface the rest of the codebase depends
// on. Implementations: redis.go (production), memory.go (tests).
type Store interface {
	// SetNX creates key with value and ttl only if it does not already
	// exist. Returns ErrExists if it does.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// GetDelWithTTL atomically fetches and removes key, also returning
	// its remaining TTL at the instant of deletion (0 if the key had no
	// expiry). This backs the "retrieve-and-destroy" critical section;
	// the TTL is what lets a denied retrieval restore the record with
	// its original remaining lifetime rather than a fresh one.
	// Returns ErrNotFound if key is absent.
	GetDelWithTTL(ctx context.Context, key string) (value []byte, ttl time.Duration, err error)

	// Restore re-creates key with value and the given remaining ttl.
	// Best-effort: used to put a record back after a denied retrieval.
	Restore(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get fetches a value without deleting it (used by the token store).
	Get(ctx context.Context, key string) ([]byte, error)

	// Set unconditionally writes key with an optional ttl (ttl <= 0
	// means no expiry), used for token records.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key if present. Not an error if absent.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the underlying connection/resources.
	Close() error
}
