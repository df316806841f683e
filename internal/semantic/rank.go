package semantic

import (
	"math"
	"time"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
)

// RetrievalStrength derives a node's retrieval score from its persisted
// fields. The score is a pure function: strength, cluster rank, rolling
// access frequency, and age decay, blended by the configured weights and
// clamped to [0,1].
func RetrievalStrength(cfg config.SemanticConfig, strength float64, rank, accessFrequency int, age time.Duration) float64 {
	rankTerm := 1.0 / float64(rank+1)
	freqTerm := math.Log(float64(accessFrequency) + 1)
	ageTerm := math.Exp(-age.Seconds() / cfg.AgeDecayConstantSecs)

	score := cfg.StrengthWeight*strength +
		cfg.RankWeight*rankTerm +
		cfg.FrequencyWeight*freqTerm +
		cfg.RecencyWeight*ageTerm
	return model.Clamp01(score)
}

// rankCluster assigns dense competition ranks and the derived age and
// schematization fields across one cluster. Nodes must arrive ordered by
// strength descending; rank 1 is the strongest member. Retrieval strengths
// are left as given, for paths that set them explicitly.
func rankCluster(nodes []model.SemanticNode, now time.Time) []model.SemanticNode {
	for i := range nodes {
		n := &nodes[i]
		n.CompetitionRank = i + 1
		n.AgeCategory = model.AgeCategoryFor(now.Sub(n.CreatedAt))
		n.State = model.NodeStateFor(n.AccessFrequency)
		n.UpdatedAt = now
	}
	return nodes
}

// refreshCluster ranks the cluster and recomputes every member's retrieval
// strength from the pure formula.
func refreshCluster(cfg config.SemanticConfig, nodes []model.SemanticNode, now time.Time) []model.SemanticNode {
	nodes = rankCluster(nodes, now)
	for i := range nodes {
		n := &nodes[i]
		n.RetrievalStrength = RetrievalStrength(cfg, n.Strength, n.CompetitionRank, n.AccessFrequency, now.Sub(n.CreatedAt))
	}
	return nodes
}
