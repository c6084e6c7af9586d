package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no live entry.
var ErrNotFound = errors.New("entry not found")

// CacheEntry maps a cache key to a file produced by a previous extraction.
type CacheEntry struct {
	Key       string
	FilePath  string
	ExpiresAt time.Time
}

// CacheRepository persists the (url, kind) -> file path mapping.
type CacheRepository interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Put(ctx context.Context, key, filePath string, ttl time.Duration) error
}

// LockRepository persists per-user download locks. Acquire must be atomic
// under concurrent callers for the same user.
type LockRepository interface {
	Acquire(ctx context.Context, userID int64, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, userID int64, ttl time.Duration) error
	Release(ctx context.Context, userID int64) error
}
