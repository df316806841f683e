package consolidation

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/enrichment"
	"github.com/nidhogg/hippo/internal/model"
)

func testEngine() *Engine {
	return &Engine{
		enricher:   enrichment.NewFallbackProvider(),
		sampler:    NewRandomPairSampler(1),
		cfg:        config.Default().Consolidation,
		hebbianCap: 10,
		logger:     zap.NewNop(),
	}
}

func TestApplyForgettingWeakensBelowThreshold(t *testing.T) {
	e := testEngine()
	ep := model.Episode{Strength: 0.2, State: model.EpisodeReplaying}

	e.applyForgetting(&ep)
	if got, want := ep.Strength, 0.2*0.8; math.Abs(got-want) > 1e-9 {
		t.Fatalf("got strength %.6f, want %.6f", got, want)
	}
	if ep.State != model.EpisodeWeakened {
		t.Fatalf("got state %s, want weakened", ep.State)
	}
}

func TestApplyForgettingStrengthensAboveThreshold(t *testing.T) {
	e := testEngine()
	ep := model.Episode{Strength: 0.8, State: model.EpisodeReplaying}

	e.applyForgetting(&ep)
	if got, want := ep.Strength, 0.8*1.2; math.Abs(got-want) > 1e-9 {
		t.Fatalf("got strength %.6f, want %.6f", got, want)
	}
	if ep.State != model.EpisodeStrengthened {
		t.Fatalf("got state %s, want strengthened", ep.State)
	}
}

func TestApplyForgettingClampsToOne(t *testing.T) {
	e := testEngine()
	ep := model.Episode{Strength: 0.95}

	e.applyForgetting(&ep)
	if ep.Strength > 1.0 {
		t.Fatalf("got strength %.6f above 1.0", ep.Strength)
	}
}

func TestReplayRaisesStrengthWithActivePeers(t *testing.T) {
	e := testEngine()
	ep := model.Episode{
		ID: "e1", Category: "work", ItemIDs: []string{"alpha", "beta"},
		Strength: 0.5, HebbianPotential: 8, State: model.EpisodeReplaying,
	}
	peers := []model.Episode{
		{ID: "e2", Category: "work", ItemIDs: []string{"alpha", "gamma"}, HebbianPotential: 8},
	}

	out := e.replay(context.Background(), ep, peers)
	if out.Strength <= 0.5*0.8 {
		t.Fatalf("got strength %.6f, want replay gain before forgetting", out.Strength)
	}
	if out.State != model.EpisodeStrengthened && out.State != model.EpisodeWeakened {
		t.Fatalf("got state %s, want a replay outcome state", out.State)
	}
}

func TestReplayHebbianUpdateExact(t *testing.T) {
	e := testEngine()
	// pre = 8/10 = 0.8; one identical peer with potential 5 gives
	// post = 1.0 * 5/10 = 0.5; 0.6 * (1 + 0.1*0.8*0.5) = 0.624, inside the
	// neutral forgetting band so it survives unchanged.
	ep := model.Episode{
		ID: "e1", Category: "work", ItemIDs: []string{"alpha", "beta"},
		Strength: 0.6, HebbianPotential: 8, State: model.EpisodeReplaying,
	}
	peers := []model.Episode{
		{ID: "e2", Category: "work", ItemIDs: []string{"alpha", "beta"}, HebbianPotential: 5},
	}

	out := e.replay(context.Background(), ep, peers)
	if math.Abs(out.Strength-0.624) > 1e-9 {
		t.Fatalf("got strength %.6f, want 0.624", out.Strength)
	}
	if out.State != model.EpisodeStrengthened {
		t.Fatalf("got state %s, want strengthened", out.State)
	}
}

func TestReplayWithoutPeersLeavesHebbianTermZero(t *testing.T) {
	e := testEngine()
	ep := model.Episode{
		ID: "e1", Category: "work", Strength: 0.5,
		HebbianPotential: 8, State: model.EpisodeReplaying,
	}

	out := e.replay(context.Background(), ep, nil)
	// No peer activity: the multiplicative update is a no-op, only
	// competitive forgetting applies (0.3 <= 0.5 <= 0.7 keeps it flat).
	if math.Abs(out.Strength-0.5) > 1e-9 {
		t.Fatalf("got strength %.6f, want 0.5", out.Strength)
	}
}

func TestBuildAssociationsReplayEdgesWithinCategory(t *testing.T) {
	e := testEngine()
	now := time.Now()
	promoted := []model.ConsolidatedMemory{
		{ID: "m1", SemanticCategory: "work", Strength: 0.8},
		{ID: "m2", SemanticCategory: "work", Strength: 0.6},
		{ID: "m3", SemanticCategory: "travel", Strength: 0.9},
	}

	assocs := e.buildAssociations(context.Background(), promoted, now)

	var replay, creative int
	for _, a := range assocs {
		switch a.Kind {
		case "replay":
			replay++
			if a.Weight < 0 || a.Weight > 1 {
				t.Fatalf("replay weight %.3f outside [0,1]", a.Weight)
			}
		case "creative":
			creative++
		default:
			t.Fatalf("unexpected association kind %q", a.Kind)
		}
	}
	// m1<->m2 in both directions; travel has a single member, no replay edge.
	if replay != 2 {
		t.Fatalf("got %d replay edges, want 2", replay)
	}
	if creative == 0 {
		t.Fatal("got no creative edges, want sampled pairs")
	}
}

func TestSamplePairsBounds(t *testing.T) {
	s := NewRandomPairSampler(42)

	if got := s.SamplePairs(1, 5); got != nil {
		t.Fatalf("got %v pairs from a single candidate, want none", got)
	}

	pairs := s.SamplePairs(3, 100)
	if len(pairs) != 3 {
		t.Fatalf("got %d pairs from 3 candidates, want 3 distinct pairs", len(pairs))
	}
	for _, p := range pairs {
		if p[0] == p[1] {
			t.Fatalf("got self-pair %v", p)
		}
		if p[0] < 0 || p[1] > 2 {
			t.Fatalf("pair %v out of range", p)
		}
	}
}

func TestSamplePairsDeterministicForSeed(t *testing.T) {
	a := NewRandomPairSampler(7).SamplePairs(10, 5)
	b := NewRandomPairSampler(7).SamplePairs(10, 5)
	if len(a) != len(b) {
		t.Fatalf("got %d and %d pairs, want equal", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("pair %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
