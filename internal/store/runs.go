package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/hippo/internal/model"
)

// RecordRun persists a stage run result for the ops surface.
func (s *Store) RecordRun(ctx context.Context, r model.RunResult) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO run_results
			(id, stage, status, records_processed, records_quarantined,
			 errors, duration_ms, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.New().String(), string(r.Stage), string(r.Status),
		r.RecordsProcessed, r.RecordsQuarantined, r.Errors,
		r.Duration.Milliseconds(), r.StartedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns recent run results for a stage, newest first. An empty
// stage returns runs across all stages.
func (s *Store) ListRuns(ctx context.Context, stage model.Stage, limit int) ([]model.RunResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT stage, status, records_processed, records_quarantined,
		       errors, duration_ms, started_at
		FROM run_results
		WHERE ($1 = '' OR stage = $1)
		ORDER BY started_at DESC
		LIMIT $2`, string(stage), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var results []model.RunResult
	for rows.Next() {
		var r model.RunResult
		var stage, status string
		var durationMS int64
		if err := rows.Scan(&stage, &status, &r.RecordsProcessed,
			&r.RecordsQuarantined, &r.Errors, &durationMS, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Stage = model.Stage(stage)
		r.Status = model.RunStatus(status)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}
