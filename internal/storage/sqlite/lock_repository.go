package sqlite

import (
	"context"
	"database/sql"
	"time"
)

type LockRepository struct {
	db *sql.DB
}

func NewLockRepository(dbConn *sql.DB) *LockRepository {
	return &LockRepository{db: dbConn}
}

// Acquire atomically claims the user's lock. The upsert only fires when no
// row exists or the existing lock has expired, so concurrent callers for the
// same user resolve to exactly one winner.
func (r *LockRepository) Acquire(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	now := time.Now().UnixNano()

	rows, err := r.db.ExecContext(ctx, `
		INSERT INTO user_locks (user_id, held_until)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			held_until = excluded.held_until
		WHERE user_locks.held_until <= ?
	`, userID, now+ttl.Nanoseconds(), now)
	if err != nil {
		return false, err
	}

	affected, err := rows.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// Extend installs a new TTL for a lock the caller already owns.
func (r *LockRepository) Extend(ctx context.Context, userID int64, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_locks SET held_until = ? WHERE user_id = ?`,
		time.Now().Add(ttl).UnixNano(), userID,
	)

	return err
}

// Release drops the lock. Releasing an absent or expired lock is a no-op.
func (r *LockRepository) Release(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_locks WHERE user_id = ?`, userID)

	return err
}
