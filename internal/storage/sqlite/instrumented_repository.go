package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tgfetch/tgfetch/internal/storage"
	"github.com/tgfetch/tgfetch/internal/telemetry"
)

// InstrumentedCacheRepository wraps CacheRepository with telemetry.
type InstrumentedCacheRepository struct {
	repo      *CacheRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedCacheRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedCacheRepository {
	return &InstrumentedCacheRepository{
		repo:      NewCacheRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedCacheRepository) Get(ctx context.Context, key string) (*storage.CacheEntry, error) {
	var result *storage.CacheEntry

	err := r.telemetry.InstrumentDBOperation(ctx, "cache_get", func(ctx context.Context) error {
		var err error
		result, err = r.repo.Get(ctx, key)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedCacheRepository) Put(ctx context.Context, key, filePath string, ttl time.Duration) error {
	return r.telemetry.InstrumentDBOperation(ctx, "cache_put", func(ctx context.Context) error {
		return r.repo.Put(ctx, key, filePath, ttl)
	})
}

// InstrumentedLockRepository wraps LockRepository with telemetry.
type InstrumentedLockRepository struct {
	repo      *LockRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedLockRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedLockRepository {
	return &InstrumentedLockRepository{
		repo:      NewLockRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedLockRepository) Acquire(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	var result bool

	err := r.telemetry.InstrumentDBOperation(ctx, "lock_acquire", func(ctx context.Context) error {
		var err error
		result, err = r.repo.Acquire(ctx, userID, ttl)

		return err
	})
	if err != nil {
		return false, err
	}

	return result, nil
}

func (r *InstrumentedLockRepository) Extend(ctx context.Context, userID int64, ttl time.Duration) error {
	return r.telemetry.InstrumentDBOperation(ctx, "lock_extend", func(ctx context.Context) error {
		return r.repo.Extend(ctx, userID, ttl)
	})
}

func (r *InstrumentedLockRepository) Release(ctx context.Context, userID int64) error {
	return r.telemetry.InstrumentDBOperation(ctx, "lock_release", func(ctx context.Context) error {
		return r.repo.Release(ctx, userID)
	})
}
