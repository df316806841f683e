package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hippo/internal/model"
)

// AcquireRunLock takes the per-stage advisory lock. Returns false when the
// lock is held by a live holder. The TTL means a crashed holder expires on its
// own and cannot deadlock future runs.
func (s *Store) AcquireRunLock(ctx context.Context, stage model.Stage, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO run_locks (stage, holder, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (stage) DO UPDATE
		SET holder = $2, expires_at = now() + $3::interval
		WHERE run_locks.expires_at < now() OR run_locks.holder = $2`,
		string(stage), holder, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", stage, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseRunLock drops the lock if still held by this holder.
func (s *Store) ReleaseRunLock(ctx context.Context, stage model.Stage, holder string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM run_locks WHERE stage = $1 AND holder = $2`,
		string(stage), holder)
	if err != nil {
		return fmt.Errorf("release run lock %s: %w", stage, err)
	}
	return nil
}
