package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/hippo/internal/model"
)

// GetWatermark returns the stage cursor, or a zero-valued record when the
// stage has never run.
func (s *Store) GetWatermark(ctx context.Context, stage model.Stage) (model.WatermarkRecord, error) {
	wm := model.WatermarkRecord{Stage: stage}
	err := s.db.QueryRow(ctx, `
		SELECT last_processed_at, content_hash, updated_at
		FROM watermarks WHERE stage = $1`, string(stage),
	).Scan(&wm.LastProcessedAt, &wm.ContentHash, &wm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wm, nil
	}
	if err != nil {
		return wm, fmt.Errorf("get watermark %s: %w", stage, err)
	}
	return wm, nil
}

// SetWatermark advances the stage cursor. Callers invoke it only after the
// batch it covers has committed, so a crash never leaves the cursor ahead of
// the data.
func (s *Store) SetWatermark(ctx context.Context, q Querier, stage model.Stage, ts time.Time, hash string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO watermarks (stage, last_processed_at, content_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (stage)
		DO UPDATE SET last_processed_at = $2, content_hash = $3, updated_at = now()`,
		string(stage), ts, hash)
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", stage, err)
	}
	return nil
}
