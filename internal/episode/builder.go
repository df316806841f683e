package episode

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/enrichment"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/store"
	"github.com/nidhogg/hippo/internal/writeback"
)

// episodeNamespace seeds deterministic episode ids. Rebuilding the same group
// yields the same id, so crash re-runs collapse into upserts.
var episodeNamespace = uuid.MustParse("8f1c9d2e-4b7a-4e0c-9a3d-6c5e2f1b0a99")

// Builder groups admitted items into short-term episodes and scores them for
// consolidation readiness.
type Builder struct {
	store      *store.Store
	enricher   enrichment.Provider
	writer     *writeback.Writer
	cfg        config.EpisodeConfig
	fetchLimit int
	logger     *zap.Logger
}

// NewBuilder creates the episode stage job.
func NewBuilder(st *store.Store, enricher enrichment.Provider, writer *writeback.Writer, cfg config.EpisodeConfig, fetchLimit int, logger *zap.Logger) *Builder {
	if fetchLimit <= 0 {
		fetchLimit = 1000
	}
	return &Builder{store: st, enricher: enricher, writer: writer, cfg: cfg, fetchLimit: fetchLimit, logger: logger}
}

// Run executes one build cycle over the current active set. Grouping flips
// items to grouped, so each run consumes exactly what the gate admitted since
// the last one, including items deferred in one cycle and admitted later.
// Re-runs see no active items and are no-ops; re-delivered items collapse
// into the same deterministic episode. The stage watermark trails the newest
// grouped item for operational visibility only.
func (b *Builder) Run(ctx context.Context) (processed, quarantined int, err error) {
	scanned, err := b.store.ListItemsByStatus(ctx, model.ItemActive, time.Time{}, b.fetchLimit)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	var latest time.Time
	items := make([]model.MemoryItem, 0, len(scanned))
	for _, it := range scanned {
		if it.CreatedAt.After(latest) {
			latest = it.CreatedAt
		}
		items = append(items, b.enrichItem(ctx, it))
	}
	if len(items) == 0 {
		return 0, 0, nil
	}

	window := time.Duration(b.cfg.CoactivationWindowSeconds) * time.Second
	groups := GroupItems(items, window)

	episodes := make([]model.Episode, 0, len(groups))
	var grouped []model.MemoryItem
	for _, group := range groups {
		ep := b.buildEpisode(group, now)

		peers, err := b.store.ListEpisodesInWindow(ctx, ep.Category, ep.ID,
			ep.WindowStart.Add(-window), ep.WindowEnd.Add(window))
		if err != nil {
			return 0, 0, err
		}
		ep.HebbianPotential = b.hebbianPotential(group, peers)
		ep.ReadyForConsolidation = b.ready(ep)

		episodes = append(episodes, ep)
		for _, it := range group {
			it.Status = model.ItemGrouped
			it.Coactivated++
			grouped = append(grouped, it)
		}
	}

	applied, quarantined, err := b.writer.Apply(ctx, model.StageEpisode, len(episodes),
		func(i int) string { return episodes[i].ID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return b.store.UpsertEpisodes(ctx, q, episodes[lo:hi])
		}, nil)
	if err != nil {
		return applied, quarantined, err
	}

	mark := &writeback.Watermark{TS: latest, Hash: writeback.Fingerprint(episodeIDs(episodes), latest)}
	_, itemQuarantined, err := b.writer.Apply(ctx, model.StageEpisode, len(grouped),
		func(i int) string { return grouped[i].ID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return b.store.UpsertItems(ctx, q, grouped[lo:hi])
		}, mark)
	quarantined += itemQuarantined
	if err != nil {
		return len(scanned), quarantined, err
	}

	b.logger.Info("episodes built",
		zap.Int("items", len(items)),
		zap.Int("episodes", len(episodes)))
	return len(scanned), quarantined, nil
}

// enrichItem fills sentiment, importance, and category from the enrichment
// collaborator when the upstream source left them empty. Enrichment failures
// keep the item as-is; the circuit breaker already routed through a fallback.
func (b *Builder) enrichItem(ctx context.Context, it model.MemoryItem) model.MemoryItem {
	if it.Category != "" && (it.Sentiment != 0 || it.Importance != 0) {
		return it
	}
	f, err := b.enricher.Enrich(ctx, it.ContentRef)
	if err != nil {
		b.logger.Debug("enrichment failed, keeping raw item",
			zap.String("item_id", it.ID), zap.Error(err))
		return it
	}
	if it.Sentiment == 0 {
		it.Sentiment = f.Sentiment
	}
	if it.Importance == 0 {
		it.Importance = f.Importance
	}
	if it.Category == "" {
		switch {
		case len(f.Hierarchy) > 0:
			it.Category = f.Hierarchy[0]
		case len(f.Topics) > 0:
			it.Category = f.Topics[0]
		default:
			it.Category = "uncategorized"
		}
	}
	return it
}

func (b *Builder) buildEpisode(group []model.MemoryItem, now time.Time) model.Episode {
	first, last := group[0], group[len(group)-1]

	var sentiment, importance float64
	for _, it := range group {
		sentiment += it.Sentiment
		importance += it.Importance
	}
	n := float64(len(group))
	salience := model.Clamp01(b.cfg.SentimentWeight*sentiment/n + b.cfg.ImportanceWeight*importance/n)

	age := now.Sub(last.CreatedAt).Seconds()
	if age < 0 {
		age = 0
	}
	decay := math.Exp(-age / b.cfg.DecayConstantSeconds)

	ids := make([]string, len(group))
	for i, it := range group {
		ids[i] = it.ID
	}

	return model.Episode{
		ID:                deterministicID(first.Category, first.ID),
		Category:          first.Category,
		ItemIDs:           ids,
		WindowStart:       first.CreatedAt,
		WindowEnd:         last.CreatedAt,
		DecayFactor:       decay,
		EmotionalSalience: salience,
		Strength:          model.Clamp01(decay * salience),
		State:             model.EpisodePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ready reports whether an episode has both enough co-activation and enough
// salience to enter consolidation.
func (b *Builder) ready(ep model.Episode) bool {
	return ep.HebbianPotential >= b.cfg.HebbianMin && ep.EmotionalSalience > b.cfg.SalienceMin
}

// hebbianPotential counts co-activations: peer episodes of the same category
// in the rolling window plus repeat activity inside the group itself, capped
// so a hot category cannot dominate readiness forever.
func (b *Builder) hebbianPotential(group []model.MemoryItem, peers []model.Episode) int {
	count := len(peers) + len(group) - 1
	for _, it := range group {
		count += it.Coactivated
	}
	if count > b.cfg.HebbianCap {
		count = b.cfg.HebbianCap
	}
	return count
}

// GroupItems splits items into per-category groups where consecutive items
// are no further apart than the co-activation window. Input order does not
// matter; grouping sorts by creation time with id as tiebreak.
func GroupItems(items []model.MemoryItem, window time.Duration) [][]model.MemoryItem {
	sorted := make([]model.MemoryItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var groups [][]model.MemoryItem
	open := make(map[string]int) // category -> index of the open group
	for _, it := range sorted {
		idx, ok := open[it.Category]
		if ok {
			g := groups[idx]
			if it.CreatedAt.Sub(g[len(g)-1].CreatedAt) <= window {
				groups[idx] = append(g, it)
				continue
			}
		}
		groups = append(groups, []model.MemoryItem{it})
		open[it.Category] = len(groups) - 1
	}
	return groups
}

func deterministicID(category, firstItemID string) string {
	return uuid.NewSHA1(episodeNamespace, []byte(category+"/"+firstItemID)).String()
}

func episodeIDs(episodes []model.Episode) []string {
	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.ID
	}
	return ids
}
