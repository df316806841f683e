package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hippo/internal/model"
)

// UpsertEpisodes writes a batch of episodes keyed by id.
func (s *Store) UpsertEpisodes(ctx context.Context, q Querier, episodes []model.Episode) error {
	for _, ep := range episodes {
		_, err := q.Exec(ctx, `
			INSERT INTO episodes
				(id, category, item_ids, window_start, window_end, decay_factor,
				 emotional_salience, strength, hebbian_potential,
				 ready_for_consolidation, state, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (id) DO UPDATE SET
				item_ids = $3, window_end = $5, decay_factor = $6,
				emotional_salience = $7, strength = $8, hebbian_potential = $9,
				ready_for_consolidation = $10, state = $11, updated_at = now()`,
			ep.ID, ep.Category, ep.ItemIDs, ep.WindowStart, ep.WindowEnd,
			ep.DecayFactor, ep.EmotionalSalience, ep.Strength, ep.HebbianPotential,
			ep.ReadyForConsolidation, string(ep.State), ep.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert episode %s: %w", ep.ID, err)
		}
	}
	return nil
}

// ListEpisodesByState returns episodes in the given state, oldest first.
// The FOR UPDATE SKIP LOCKED guard gives each episode a single writer even if
// two consolidation cycles overlap inside one process.
func (s *Store) ListEpisodesByState(ctx context.Context, q Querier, state model.EpisodeState, limit int) ([]model.Episode, error) {
	rows, err := q.Query(ctx, `
		SELECT id, category, item_ids, window_start, window_end, decay_factor,
		       emotional_salience, strength, hebbian_potential,
		       ready_for_consolidation, state, created_at, updated_at
		FROM episodes
		WHERE state = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s episodes: %w", state, err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// ListEpisodesInWindow returns same-category episodes overlapping the window,
// excluding the given id. Used to count co-activations and find replay peers.
func (s *Store) ListEpisodesInWindow(ctx context.Context, category string, excludeID string, from, to time.Time) ([]model.Episode, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, category, item_ids, window_start, window_end, decay_factor,
		       emotional_salience, strength, hebbian_potential,
		       ready_for_consolidation, state, created_at, updated_at
		FROM episodes
		WHERE category = $1 AND id <> $2
		  AND window_end >= $3 AND window_start <= $4
		ORDER BY window_start ASC, id ASC`,
		category, excludeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list episodes in window: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// ListReadyEpisodes returns non-terminal episodes flagged ready for
// consolidation, oldest first.
func (s *Store) ListReadyEpisodes(ctx context.Context, q Querier, limit int) ([]model.Episode, error) {
	rows, err := q.Query(ctx, `
		SELECT id, category, item_ids, window_start, window_end, decay_factor,
		       emotional_salience, strength, hebbian_potential,
		       ready_for_consolidation, state, created_at, updated_at
		FROM episodes
		WHERE ready_for_consolidation = true
		  AND state NOT IN ('consolidated_to_ltm', 'discarded')
		ORDER BY created_at ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func scanEpisodes(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.Episode, error) {
	var episodes []model.Episode
	for rows.Next() {
		var ep model.Episode
		var state string
		if err := rows.Scan(&ep.ID, &ep.Category, &ep.ItemIDs, &ep.WindowStart,
			&ep.WindowEnd, &ep.DecayFactor, &ep.EmotionalSalience, &ep.Strength,
			&ep.HebbianPotential, &ep.ReadyForConsolidation, &state,
			&ep.CreatedAt, &ep.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		ep.State = model.EpisodeState(state)
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}
