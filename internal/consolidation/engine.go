package consolidation

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/assocgraph"
	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/enrichment"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/pipeline"
	"github.com/nidhogg/hippo/internal/store"
	"github.com/nidhogg/hippo/internal/writeback"
)

// discardFloor is the strength below which a weakened episode is discarded
// instead of waiting for another replay cycle.
const discardFloor = 0.05

// Engine replays ready episodes, applies Hebbian strengthening and
// competitive forgetting, and promotes survivors into long-term memory.
type Engine struct {
	store      *store.Store
	enricher   enrichment.Provider
	graph      *assocgraph.Graph // optional, nil disables graph mirroring
	sampler    PairSampler
	writer     *writeback.Writer
	cfg        config.ConsolidationConfig
	hebbianCap int
	logger     *zap.Logger
}

// NewEngine creates the consolidation stage job. hebbianCap is the episode
// builder's co-activation cap, used to normalize activity levels.
func NewEngine(st *store.Store, enricher enrichment.Provider, graph *assocgraph.Graph,
	sampler PairSampler, writer *writeback.Writer, cfg config.ConsolidationConfig,
	hebbianCap int, logger *zap.Logger) *Engine {
	if sampler == nil {
		sampler = NewRandomPairSampler(time.Now().UnixNano())
	}
	if hebbianCap <= 0 {
		hebbianCap = 10
	}
	return &Engine{
		store:      st,
		enricher:   enricher,
		graph:      graph,
		sampler:    sampler,
		writer:     writer,
		cfg:        cfg,
		hebbianCap: hebbianCap,
		logger:     logger,
	}
}

// Run executes one consolidation cycle over at most BatchSize ready episodes.
// Selection and episode updates share one transaction; the SKIP LOCKED read
// makes each episode's state transition single-writer. Promotion is
// at-most-once: an episode that already produced a consolidated memory goes
// straight to its terminal state.
func (e *Engine) Run(ctx context.Context) (processed, quarantined int, err error) {
	now := time.Now()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	episodes, err := e.store.ListReadyEpisodes(ctx, tx, e.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(episodes) == 0 {
		committed = true
		return 0, 0, tx.Commit(ctx)
	}

	var updated []model.Episode
	var promoted []model.ConsolidatedMemory
	promoIdx := make(map[string]int)
	for _, ep := range episodes {
		if ep.State.Terminal() {
			continue
		}

		already, err := e.store.HasConsolidated(ctx, tx, ep.ID)
		if err != nil {
			return 0, 0, err
		}
		if already {
			// A previous run wrote the consolidated memory but crashed before
			// the state write landed. Finish the transition, nothing else.
			ep.State = model.EpisodeConsolidatedToLTM
			ep.UpdatedAt = now
			updated = append(updated, ep)
			continue
		}

		switch ep.State {
		case model.EpisodePending, model.EpisodeReplaying:
			// Replaying without a consolidated record means a crashed run;
			// replay is repeatable, so redo it.
			ep.State = model.EpisodeReplaying
			peers, err := e.replayPeers(ctx, ep)
			if err != nil {
				return 0, 0, err
			}
			ep = e.replay(ctx, ep, peers)
		case model.EpisodeStrengthened, model.EpisodeWeakened:
			// Survivors from earlier cycles compete again without replay.
			e.applyForgetting(&ep)
		}

		if math.IsNaN(ep.Strength) || math.IsInf(ep.Strength, 0) {
			// A bad similarity score can poison the multiplicative update.
			// The value cannot be clamped meaningfully, so the episode is
			// quarantined instead of written.
			verr := &pipeline.InvariantError{RecordID: ep.ID, Field: "strength", Value: ep.Strength}
			if _, qErr := e.store.Quarantine(ctx, model.StageConsolidation, ep.ID, verr.Error()); qErr != nil {
				return 0, quarantined, qErr
			}
			quarantined++
			e.logger.Error("episode strength outside contract, quarantined",
				zap.String("episode_id", ep.ID))
			continue
		}

		if ep.Strength > e.cfg.PromotionThreshold {
			mem := model.ConsolidatedMemory{
				ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte("consolidated/"+ep.ID)).String(),
				EpisodeID:        ep.ID,
				SemanticCategory: ep.Category,
				Strength:         ep.Strength,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			promoted = append(promoted, mem)
			// The terminal transition waits until the memory is durable.
			promoIdx[ep.ID] = len(updated)
		} else if ep.State == model.EpisodeWeakened && ep.Strength < discardFloor {
			ep.State = model.EpisodeDiscarded
		}

		ep.UpdatedAt = now
		updated = append(updated, ep)
	}

	// Consolidated memories go durable before any episode turns terminal. The
	// reverse order could strand a terminal episode with no memory after a
	// crash; this order leaves at worst a memory the next run finishes from.
	applied, promoQuarantined, err := e.writer.Apply(ctx, model.StageConsolidation, len(promoted),
		func(i int) string { return promoted[i].ID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return e.store.UpsertConsolidated(ctx, q, promoted[lo:hi])
		}, nil)
	quarantined += promoQuarantined
	if err != nil {
		return applied, quarantined, err
	}

	var written []model.ConsolidatedMemory
	for _, mem := range promoted {
		durable := true
		if promoQuarantined > 0 {
			durable, err = e.store.HasConsolidated(ctx, tx, mem.EpisodeID)
			if err != nil {
				return 0, quarantined, err
			}
		}
		if !durable {
			// Quarantined memory: the episode stays non-terminal and is
			// retried next cycle.
			continue
		}
		updated[promoIdx[mem.EpisodeID]].State = model.EpisodeConsolidatedToLTM
		written = append(written, mem)
	}

	if err := e.store.UpsertEpisodes(ctx, tx, updated); err != nil {
		return 0, quarantined, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, quarantined, err
	}
	committed = true

	assocs := e.buildAssociations(ctx, written, now)

	mark := &writeback.Watermark{TS: now, Hash: writeback.Fingerprint(memoryIDs(written), now)}
	_, assocQuarantined, err := e.writer.Apply(ctx, model.StageConsolidation, len(assocs),
		func(i int) string { return assocs[i].SourceID + ">" + assocs[i].TargetID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return e.store.UpsertAssociations(ctx, q, assocs[lo:hi])
		}, mark)
	quarantined += assocQuarantined
	if err != nil {
		return len(episodes), quarantined, err
	}

	if e.graph != nil && len(assocs) > 0 {
		if err := e.graph.Upsert(ctx, assocs); err != nil {
			e.logger.Warn("association graph mirror failed", zap.Error(err))
		}
	}

	e.logger.Info("consolidation cycle complete",
		zap.Int("episodes", len(episodes)),
		zap.Int("promoted", len(written)),
		zap.Int("associations", len(assocs)))
	return len(episodes), quarantined, nil
}

// replayPeers finds same-category episodes overlapping the replay window.
func (e *Engine) replayPeers(ctx context.Context, ep model.Episode) ([]model.Episode, error) {
	window := time.Duration(e.cfg.ReplayWindowSeconds) * time.Second
	return e.store.ListEpisodesInWindow(ctx, ep.Category, ep.ID,
		ep.WindowStart.Add(-window), ep.WindowEnd.Add(window))
}

// replay applies the Hebbian update: strength grows with the product of this
// episode's activity and similarity-weighted peer activity, then competitive
// forgetting resolves the Strengthened/Weakened outcome.
func (e *Engine) replay(ctx context.Context, ep model.Episode, peers []model.Episode) model.Episode {
	pre := float64(ep.HebbianPotential) / float64(e.hebbianCap)

	var post float64
	if len(peers) > 0 {
		for _, peer := range peers {
			sim, err := e.enricher.Similarity(ctx, replayRef(ep), replayRef(peer))
			if err != nil {
				e.logger.Debug("similarity failed during replay",
					zap.String("episode_id", ep.ID), zap.Error(err))
				continue
			}
			post += sim * float64(peer.HebbianPotential) / float64(e.hebbianCap)
		}
		post = model.Clamp01(post / float64(len(peers)))
	}

	ep.Strength = model.Clamp01(ep.Strength * (1 + e.cfg.LearningRate*pre*post))
	e.applyForgetting(&ep)
	return ep
}

// applyForgetting scales strength competitively: weak episodes lose ground,
// strong ones gain it, and the outcome state follows the direction.
func (e *Engine) applyForgetting(ep *model.Episode) {
	switch {
	case ep.Strength < e.cfg.DecayThreshold:
		ep.Strength = model.Clamp01(ep.Strength * 0.8)
		ep.State = model.EpisodeWeakened
	case ep.Strength > e.cfg.StrengthenThreshold:
		ep.Strength = model.Clamp01(ep.Strength * 1.2)
		ep.State = model.EpisodeStrengthened
	default:
		ep.State = model.EpisodeStrengthened
	}
}

// buildAssociations creates replay edges between same-category promotions and
// creative edges between randomly sampled pairs.
func (e *Engine) buildAssociations(ctx context.Context, promoted []model.ConsolidatedMemory, now time.Time) []model.Association {
	var assocs []model.Association

	byCategory := make(map[string][]int)
	for i, m := range promoted {
		byCategory[m.SemanticCategory] = append(byCategory[m.SemanticCategory], i)
	}
	for _, idxs := range byCategory {
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				a, b := promoted[idxs[i]], promoted[idxs[j]]
				weight := model.Clamp01((a.Strength + b.Strength) / 2)
				assocs = append(assocs,
					model.Association{SourceID: a.ID, TargetID: b.ID, Kind: "replay", Weight: weight, CreatedAt: now},
					model.Association{SourceID: b.ID, TargetID: a.ID, Kind: "replay", Weight: weight, CreatedAt: now})
			}
		}
	}

	for _, pair := range e.sampler.SamplePairs(len(promoted), e.cfg.CreativePairSamples) {
		a, b := promoted[pair[0]], promoted[pair[1]]
		weight, err := e.enricher.Similarity(ctx, a.SemanticCategory, b.SemanticCategory)
		if err != nil || weight == 0 {
			weight = 0.1 // novel pairings start weak and earn strength through access
		}
		assocs = append(assocs, model.Association{
			SourceID: a.ID, TargetID: b.ID, Kind: "creative",
			Weight: model.Clamp01(weight), CreatedAt: now,
		})
	}
	return assocs
}

// replayRef is the comparable text form of an episode: category plus member
// item ids, so episodes sharing items score as similar.
func replayRef(ep model.Episode) string {
	return ep.Category + " " + strings.Join(ep.ItemIDs, " ")
}

func memoryIDs(memories []model.ConsolidatedMemory) []string {
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	return ids
}
