// Package db defines the storage contracts shared by repositories.
package db

import (
	"context"
	"time"
)

// Store is the identity-store facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	HashStore
	ListStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetNX stores a value only when the key does not exist yet.
	// Returns false when the key was already present.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// HashStore provides hash-based operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// ListStore provides append-only list operations.
type ListStore interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}
