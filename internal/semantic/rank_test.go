package semantic

import (
	"math"
	"testing"
	"time"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
)

func TestRetrievalStrengthFormula(t *testing.T) {
	cfg := config.Default().Semantic

	// 0.3*strength + 0.2/(rank+1) + 0.2*ln(freq+1) + 0.3*exp(-age/tau)
	strength := 0.8
	rank := 1
	freq := 4
	age := 24 * time.Hour

	want := 0.3*strength + 0.2/2.0 + 0.2*math.Log(5) +
		0.3*math.Exp(-age.Seconds()/cfg.AgeDecayConstantSecs)
	if want > 1 {
		want = 1
	}
	got := RetrievalStrength(cfg, strength, rank, freq, age)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %.6f, want %.6f", got, want)
	}
}

func TestRetrievalStrengthClamped(t *testing.T) {
	cfg := config.Default().Semantic

	got := RetrievalStrength(cfg, 1.0, 1, 1000, 0)
	if got > 1.0 {
		t.Fatalf("got %.6f above 1.0", got)
	}
	got = RetrievalStrength(cfg, 0, 1000000, 0, 365*24*time.Hour)
	if got < 0 {
		t.Fatalf("got %.6f below 0", got)
	}
}

func TestRetrievalStrengthDecaysWithAge(t *testing.T) {
	cfg := config.Default().Semantic

	fresh := RetrievalStrength(cfg, 0.5, 3, 2, time.Hour)
	old := RetrievalStrength(cfg, 0.5, 3, 2, 60*24*time.Hour)
	if fresh <= old {
		t.Fatalf("got fresh %.6f <= old %.6f, want age decay", fresh, old)
	}
}

func TestRetrievalStrengthFavorsLowerRank(t *testing.T) {
	cfg := config.Default().Semantic

	top := RetrievalStrength(cfg, 0.5, 1, 2, time.Hour)
	deep := RetrievalStrength(cfg, 0.5, 50, 2, time.Hour)
	if top <= deep {
		t.Fatalf("got rank 1 %.6f <= rank 50 %.6f", top, deep)
	}
}

func TestRefreshClusterAssignsDenseRanks(t *testing.T) {
	cfg := config.Default().Semantic
	now := time.Now()
	nodes := []model.SemanticNode{
		{ID: "a", Strength: 0.9, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Strength: 0.5, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "c", Strength: 0.1, CreatedAt: now.Add(-40 * 24 * time.Hour), AccessFrequency: 12},
	}

	out := refreshCluster(cfg, nodes, now)
	for i, n := range out {
		if n.CompetitionRank != i+1 {
			t.Fatalf("node %s: got rank %d, want %d", n.ID, n.CompetitionRank, i+1)
		}
		if n.RetrievalStrength < 0 || n.RetrievalStrength > 1 {
			t.Fatalf("node %s: retrieval strength %.4f outside [0,1]", n.ID, n.RetrievalStrength)
		}
	}
	if out[0].AgeCategory != model.AgeRecent {
		t.Fatalf("got age %s for hour-old node, want recent", out[0].AgeCategory)
	}
	if out[1].AgeCategory != model.AgeMonthOld {
		t.Fatalf("got age %s for 10-day node, want month_old", out[1].AgeCategory)
	}
	if out[2].AgeCategory != model.AgeRemote {
		t.Fatalf("got age %s for 40-day node, want remote", out[2].AgeCategory)
	}
	if out[2].State != model.NodeSchematized {
		t.Fatalf("got state %s for frequently accessed node, want schematized", out[2].State)
	}
	if out[0].State != model.NodeEpisodic {
		t.Fatalf("got state %s for unaccessed node, want episodic", out[0].State)
	}
}

func TestRankClusterPreservesRetrievalStrength(t *testing.T) {
	now := time.Now()
	nodes := []model.SemanticNode{
		{ID: "a", Strength: 0.9, RetrievalStrength: 0.123, CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Strength: 0.5, RetrievalStrength: 0.456, CreatedAt: now.Add(-time.Hour)},
	}

	out := rankCluster(nodes, now)
	if out[0].CompetitionRank != 1 || out[1].CompetitionRank != 2 {
		t.Fatalf("got ranks %d,%d, want 1,2", out[0].CompetitionRank, out[1].CompetitionRank)
	}
	// The homeostatic rescale writes explicit retrieval strengths; ranking
	// must not replace them with the pure recomputation.
	if math.Abs(out[0].RetrievalStrength-0.123) > 1e-9 {
		t.Fatalf("got retrieval strength %.6f, want scaled 0.123 kept", out[0].RetrievalStrength)
	}
	if math.Abs(out[1].RetrievalStrength-0.456) > 1e-9 {
		t.Fatalf("got retrieval strength %.6f, want scaled 0.456 kept", out[1].RetrievalStrength)
	}
}

func TestHashClusterStableAndBounded(t *testing.T) {
	b := &Builder{cfg: config.Default().Semantic}

	first := b.hashCluster("work")
	second := b.hashCluster("work")
	if first != second {
		t.Fatal("same category hashed to different clusters")
	}
	for _, cat := range []string{"work", "travel", "family", "health", ""} {
		c := b.hashCluster(cat)
		if c < 0 || c >= b.cfg.ClusterCount {
			t.Fatalf("category %q: cluster %d outside [0,%d)", cat, c, b.cfg.ClusterCount)
		}
	}
}
