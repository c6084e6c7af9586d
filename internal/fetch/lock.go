package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/tgfetch/tgfetch/internal/storage"
)

// Guard serializes fetches per user: at most one download may be in flight
// for a given user at any time. Locks self-expire, so a crashed fetch can
// block its user for at most the working TTL.
type Guard struct {
	repo       storage.LockRepository
	acquireTTL time.Duration
	workTTL    time.Duration
}

// NewGuard builds a guard. acquireTTL bounds the window between acquisition
// and Refresh; workTTL must cover the worst-case download duration.
func NewGuard(repo storage.LockRepository, acquireTTL, workTTL time.Duration) *Guard {
	return &Guard{repo: repo, acquireTTL: acquireTTL, workTTL: workTTL}
}

// TryAcquire claims the user's slot with the short initial TTL. Returns false
// without side effects when a live lock already exists.
func (g *Guard) TryAcquire(ctx context.Context, userID int64) (bool, error) {
	ok, err := g.repo.Acquire(ctx, userID, g.acquireTTL)
	if err != nil {
		return false, fmt.Errorf("acquire user lock: %w", err)
	}

	return ok, nil
}

// Refresh installs the download-duration TTL once ownership is confirmed.
func (g *Guard) Refresh(ctx context.Context, userID int64) error {
	if err := g.repo.Extend(ctx, userID, g.workTTL); err != nil {
		return fmt.Errorf("refresh user lock: %w", err)
	}

	return nil
}

// Release frees the slot unconditionally. Releasing an absent or already
// expired lock is a no-op.
func (g *Guard) Release(ctx context.Context, userID int64) error {
	if err := g.repo.Release(ctx, userID); err != nil {
		return fmt.Errorf("release user lock: %w", err)
	}

	return nil
}
