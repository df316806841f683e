package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hippo/internal/model"
)

// UpsertConsolidated writes a batch of consolidated memories keyed by id.
// The unique episode_id constraint enforces at-most-once promotion per episode.
func (s *Store) UpsertConsolidated(ctx context.Context, q Querier, memories []model.ConsolidatedMemory) error {
	for _, m := range memories {
		_, err := q.Exec(ctx, `
			INSERT INTO consolidated_memories
				(id, episode_id, semantic_category, strength, embedding, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,now())
			ON CONFLICT (id) DO UPDATE SET
				strength = $4, embedding = $5, updated_at = now()`,
			m.ID, m.EpisodeID, m.SemanticCategory, m.Strength, m.Embedding, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert consolidated %s: %w", m.ID, err)
		}
	}
	return nil
}

// UpsertAssociations writes weighted edges keyed by (source, target, kind).
func (s *Store) UpsertAssociations(ctx context.Context, q Querier, assocs []model.Association) error {
	for _, a := range assocs {
		_, err := q.Exec(ctx, `
			INSERT INTO associations (source_id, target_id, kind, weight, created_at)
			VALUES ($1,$2,$3,$4,now())
			ON CONFLICT (source_id, target_id, kind)
			DO UPDATE SET weight = $4`,
			a.SourceID, a.TargetID, a.Kind, a.Weight)
		if err != nil {
			return fmt.Errorf("upsert association %s->%s: %w", a.SourceID, a.TargetID, err)
		}
	}
	return nil
}

// ListConsolidatedAfter returns consolidated memories created at or after the
// watermark, in created_at ascending order. Inclusive so boundary corrections
// get rescanned.
func (s *Store) ListConsolidatedAfter(ctx context.Context, after time.Time, limit int) ([]model.ConsolidatedMemory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, episode_id, semantic_category, strength, embedding, created_at, updated_at
		FROM consolidated_memories
		WHERE created_at >= $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list consolidated after %s: %w", after, err)
	}
	defer rows.Close()

	var memories []model.ConsolidatedMemory
	for rows.Next() {
		var m model.ConsolidatedMemory
		if err := rows.Scan(&m.ID, &m.EpisodeID, &m.SemanticCategory, &m.Strength,
			&m.Embedding, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan consolidated: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// HasConsolidated reports whether an episode already produced a consolidated
// memory. Guards the at-most-once promotion invariant across crash re-runs.
func (s *Store) HasConsolidated(ctx context.Context, q Querier, episodeID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM consolidated_memories WHERE episode_id = $1)`,
		episodeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check consolidated for episode %s: %w", episodeID, err)
	}
	return exists, nil
}
