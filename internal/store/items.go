package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hippo/internal/model"
)

// UpsertItems writes a batch of memory items keyed by id. Re-applying the same
// batch is a no-op, which makes crash re-runs safe.
func (s *Store) UpsertItems(ctx context.Context, q Querier, items []model.MemoryItem) error {
	for _, it := range items {
		_, err := q.Exec(ctx, `
			INSERT INTO memory_items
				(id, content_ref, category, salience, sentiment, importance,
				 strength, status, coactivated, arrival_seq, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (id) DO UPDATE SET
				salience = $4, sentiment = $5, importance = $6, strength = $7,
				status = $8, coactivated = $9, updated_at = now()`,
			it.ID, it.ContentRef, it.Category, it.Salience, it.Sentiment, it.Importance,
			it.Strength, string(it.Status), it.Coactivated, it.ArrivalSeq, it.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

// ListItemsAfter returns items created at or after the watermark timestamp,
// in created_at ascending order (ties broken by id) so recency math sees a
// monotonic sequence. The boundary is inclusive so corrected records at the
// cursor timestamp are picked up again; upserts make the rescan a no-op.
func (s *Store) ListItemsAfter(ctx context.Context, after time.Time, limit int) ([]model.MemoryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, content_ref, category, salience, sentiment, importance,
		       strength, status, coactivated, arrival_seq, created_at, updated_at
		FROM memory_items
		WHERE created_at >= $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list items after %s: %w", after, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListItemsByStatus returns items in a given gate status within the sliding
// window, oldest first.
func (s *Store) ListItemsByStatus(ctx context.Context, status model.ItemStatus, since time.Time, limit int) ([]model.MemoryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, content_ref, category, salience, sentiment, importance,
		       strength, status, coactivated, arrival_seq, created_at, updated_at
		FROM memory_items
		WHERE status = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3`, string(status), since, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", status, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkStaleItemsDropped drops pending items that aged out of the admission
// window without ever being admitted. Returns how many were dropped.
func (s *Store) MarkStaleItemsDropped(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE memory_items SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at < $3`,
		string(model.ItemDropped), string(model.ItemPending), before)
	if err != nil {
		return 0, fmt.Errorf("drop stale items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanItems(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.MemoryItem, error) {
	var items []model.MemoryItem
	for rows.Next() {
		var it model.MemoryItem
		var status string
		if err := rows.Scan(&it.ID, &it.ContentRef, &it.Category, &it.Salience,
			&it.Sentiment, &it.Importance, &it.Strength, &status,
			&it.Coactivated, &it.ArrivalSeq, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Status = model.ItemStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}
