package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tgfetch/tgfetch/internal/storage"
)

// Cache maps (url, kind) pairs to previously extracted files. The cost being
// avoided is the extraction itself, so keys address content by source URL and
// kind rather than by file bytes.
type Cache struct {
	repo storage.CacheRepository
	ttl  time.Duration
}

func NewCache(repo storage.CacheRepository, ttl time.Duration) *Cache {
	return &Cache{repo: repo, ttl: ttl}
}

// Key derives the deterministic cache key for a (url, kind) pair. sha256
// keeps distinct pairs collision-free even for adversarial URLs.
func (c *Cache) Key(url string, kind Kind) string {
	sum := sha256.Sum256([]byte(url))

	return "cache:" + kind.String() + ":" + hex.EncodeToString(sum[:])
}

// Lookup returns the cached file path for (url, kind). A missing entry, an
// expired entry, or an entry whose file was deleted out-of-band all count as
// a miss, not an error.
func (c *Cache) Lookup(ctx context.Context, url string, kind Kind) (string, bool, error) {
	entry, err := c.repo.Get(ctx, c.Key(url, kind))
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("cache lookup: %w", err)
	}

	if _, err := os.Stat(entry.FilePath); err != nil {
		return "", false, nil
	}

	return entry.FilePath, true, nil
}

// Store maps (url, kind) to path with a fresh TTL, overwriting any previous
// entry for that key.
func (c *Cache) Store(ctx context.Context, url string, kind Kind, path string) error {
	if err := c.repo.Put(ctx, c.Key(url, kind), path, c.ttl); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	return nil
}
