package attention

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
)

// Admission is the outcome of one admission cycle.
type Admission struct {
	Capacity int
	Admitted []model.MemoryItem // the bounded active set, highest scored first
	Deferred []model.MemoryItem // returned to the pending pool, not deleted
}

// Gate admits a capacity-bounded active set from incoming items. Capacity is
// recomputed per cycle as base±variance and always lands in [5,9].
type Gate struct {
	cfg    config.AttentionConfig
	logger *zap.Logger
}

// NewGate creates an attention gate.
func NewGate(cfg config.AttentionConfig, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

// Capacity returns the active-set bound for the given cycle. The variance is
// drawn from a seeded generator so identical seed and cycle always produce
// the same bound.
func (g *Gate) Capacity(cycle int64) int {
	rng := rand.New(rand.NewSource(g.cfg.Seed ^ cycle))
	spread := 2*g.cfg.CapacityVariance + 1
	return g.cfg.CapacityBase - g.cfg.CapacityVariance + rng.Intn(spread)
}

// Score is the composite admission score: recency decay blended with the
// externally supplied salience.
func (g *Gate) Score(item model.MemoryItem, now time.Time) float64 {
	age := now.Sub(item.CreatedAt).Seconds()
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-age / float64(g.cfg.WindowSeconds))
	return g.cfg.RecencyWeight*recency + g.cfg.SalienceWeight*item.Salience
}

// Admit ranks candidates and returns the top-capacity set. Ties break by
// arrival order. Fewer candidates than capacity admits everything; empty
// input yields an empty set.
func (g *Gate) Admit(candidates []model.MemoryItem, now time.Time, cycle int64) Admission {
	capacity := g.Capacity(cycle)
	adm := Admission{Capacity: capacity}
	if len(candidates) == 0 {
		return adm
	}

	ranked := make([]model.MemoryItem, len(candidates))
	copy(ranked, candidates)
	scores := make(map[string]float64, len(ranked))
	for _, it := range ranked {
		scores[it.ID] = g.Score(it, now)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		return ranked[i].ArrivalSeq < ranked[j].ArrivalSeq
	})

	cut := capacity
	if cut > len(ranked) {
		cut = len(ranked)
	}
	for i, it := range ranked {
		if i < cut {
			it.Status = model.ItemActive
			adm.Admitted = append(adm.Admitted, it)
		} else {
			it.Status = model.ItemPending
			adm.Deferred = append(adm.Deferred, it)
		}
	}

	g.logger.Debug("admission cycle complete",
		zap.Int("capacity", capacity),
		zap.Int("candidates", len(candidates)),
		zap.Int("admitted", len(adm.Admitted)))
	return adm
}
