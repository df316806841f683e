package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hippo/internal/model"
)

// QuarantinedRecord is a record set aside so it cannot block its batch.
type QuarantinedRecord struct {
	RecordID  string      `json:"record_id"`
	Stage     model.Stage `json:"stage"`
	Reason    string      `json:"reason"`
	RunCount  int         `json:"run_count"`
	LastRunAt time.Time   `json:"last_run_at"`
}

// Quarantine records a skipped record and returns its consecutive-run count.
func (s *Store) Quarantine(ctx context.Context, stage model.Stage, recordID, reason string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		INSERT INTO quarantine (record_id, stage, reason, run_count, last_run_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (record_id, stage)
		DO UPDATE SET reason = $3, run_count = quarantine.run_count + 1, last_run_at = now()
		RETURNING run_count`,
		recordID, string(stage), reason).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("quarantine %s: %w", recordID, err)
	}
	return count, nil
}

// ClearQuarantine removes a record that processed cleanly, resetting its
// consecutive-run count.
func (s *Store) ClearQuarantine(ctx context.Context, stage model.Stage, recordID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM quarantine WHERE record_id = $1 AND stage = $2`,
		recordID, string(stage))
	if err != nil {
		return fmt.Errorf("clear quarantine %s: %w", recordID, err)
	}
	return nil
}

// EscalateDeadLetters moves records quarantined in at least threshold
// consecutive runs onto the dead-letter list and returns how many moved.
func (s *Store) EscalateDeadLetters(ctx context.Context, threshold int) (int, error) {
	tag, err := s.db.Exec(ctx, `
		WITH escalated AS (
			DELETE FROM quarantine WHERE run_count >= $1
			RETURNING record_id, stage, reason
		)
		INSERT INTO dead_letters (record_id, stage, reason, created_at)
		SELECT record_id, stage, reason, now() FROM escalated
		ON CONFLICT (record_id, stage) DO NOTHING`, threshold)
	if err != nil {
		return 0, fmt.Errorf("escalate dead letters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListDeadLetters returns the dead-letter list, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]QuarantinedRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT record_id, stage, reason, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var records []QuarantinedRecord
	for rows.Next() {
		var r QuarantinedRecord
		var stage string
		if err := rows.Scan(&r.RecordID, &stage, &r.Reason, &r.LastRunAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		r.Stage = model.Stage(stage)
		records = append(records, r)
	}
	return records, rows.Err()
}
