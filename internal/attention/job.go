package attention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/store"
	"github.com/nidhogg/hippo/internal/writeback"
)

// Job runs one admission cycle: collect the contention pool, rank it through
// the gate, and persist the resulting statuses.
type Job struct {
	store      *store.Store
	gate       *Gate
	writer     *writeback.Writer
	cfg        config.AttentionConfig
	fetchLimit int
	logger     *zap.Logger
}

// NewJob creates the attention stage job. fetchLimit bounds how many
// candidates one cycle pulls from the store.
func NewJob(st *store.Store, gate *Gate, writer *writeback.Writer, cfg config.AttentionConfig, fetchLimit int, logger *zap.Logger) *Job {
	if fetchLimit <= 0 {
		fetchLimit = 1000
	}
	return &Job{store: st, gate: gate, writer: writer, cfg: cfg, fetchLimit: fetchLimit, logger: logger}
}

// Run executes one cycle. The contention pool is every active and pending
// item inside the sliding window plus anything that arrived since the last
// watermark; items that aged out of the window without admission are dropped.
func (j *Job) Run(ctx context.Context) (processed, quarantined int, err error) {
	wm, err := j.store.GetWatermark(ctx, model.StageAttention)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	window := time.Duration(j.cfg.WindowSeconds) * time.Second
	windowStart := now.Add(-window)

	dropped, err := j.store.MarkStaleItemsDropped(ctx, windowStart)
	if err != nil {
		return 0, 0, err
	}
	if dropped > 0 {
		j.logger.Info("stale pending items dropped", zap.Int("count", dropped))
	}

	pool := make(map[string]model.MemoryItem)
	for _, status := range []model.ItemStatus{model.ItemActive, model.ItemPending} {
		items, err := j.store.ListItemsByStatus(ctx, status, windowStart, j.fetchLimit)
		if err != nil {
			return 0, 0, err
		}
		for _, it := range items {
			pool[it.ID] = it
		}
	}
	fresh, err := j.store.ListItemsAfter(ctx, wm.LastProcessedAt, j.fetchLimit)
	if err != nil {
		return 0, 0, err
	}
	latest := wm.LastProcessedAt
	for _, it := range fresh {
		if it.CreatedAt.After(latest) {
			latest = it.CreatedAt
		}
		if it.Status != model.ItemPending && it.Status != model.ItemActive {
			continue
		}
		pool[it.ID] = it
	}
	if len(pool) == 0 {
		return 0, 0, nil
	}

	candidates := make([]model.MemoryItem, 0, len(pool))
	for _, it := range pool {
		candidates = append(candidates, it)
	}

	cycle := now.Unix() / int64(j.cfg.WindowSeconds)
	adm := j.gate.Admit(candidates, now, cycle)

	out := append(adm.Admitted, adm.Deferred...)
	mark := &writeback.Watermark{
		TS:   latest,
		Hash: writeback.Fingerprint(itemIDs(adm.Admitted), latest),
	}
	applied, quarantined, err := j.writer.Apply(ctx, model.StageAttention, len(out),
		func(i int) string { return out[i].ID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return j.store.UpsertItems(ctx, q, out[lo:hi])
		}, mark)
	if err != nil {
		return applied, quarantined, err
	}
	return len(candidates), quarantined, nil
}

func itemIDs(items []model.MemoryItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
