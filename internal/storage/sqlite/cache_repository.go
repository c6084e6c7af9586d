package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tgfetch/tgfetch/internal/storage"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(dbConn *sql.DB) *CacheRepository {
	return &CacheRepository{db: dbConn}
}

// Get returns the live entry for a key. Expired rows are treated as absent.
func (r *CacheRepository) Get(ctx context.Context, key string) (*storage.CacheEntry, error) {
	var (
		filePath  string
		expiresAt int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT file_path, expires_at FROM cache_entries WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().UnixNano(),
	).Scan(&filePath, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &storage.CacheEntry{
		Key:       key,
		FilePath:  filePath,
		ExpiresAt: time.Unix(0, expiresAt),
	}, nil
}

// Put overwrites any existing entry for the key with a fresh expiry.
func (r *CacheRepository) Put(ctx context.Context, key, filePath string, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, file_path, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			file_path = excluded.file_path,
			expires_at = excluded.expires_at
	`, key, filePath, time.Now().Add(ttl).UnixNano())

	return err
}
