package episode

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
)

func testBuilder() *Builder {
	return &Builder{cfg: config.Default().Episode, logger: zap.NewNop()}
}

func item(id, category string, at time.Time, sentiment, importance float64) model.MemoryItem {
	return model.MemoryItem{
		ID:         id,
		Category:   category,
		Sentiment:  sentiment,
		Importance: importance,
		Status:     model.ItemActive,
		CreatedAt:  at,
	}
}

func TestGroupItemsSplitsByCategory(t *testing.T) {
	now := time.Now()
	items := []model.MemoryItem{
		item("a", "work", now, 0.5, 0.5),
		item("b", "work", now.Add(10*time.Second), 0.5, 0.5),
		item("c", "work", now.Add(20*time.Second), 0.5, 0.5),
		item("d", "travel", now.Add(15*time.Second), 0.5, 0.5),
	}

	groups := GroupItems(items, 5*time.Minute)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	sizes := map[string]int{}
	for _, g := range groups {
		sizes[g[0].Category] = len(g)
	}
	if sizes["work"] != 3 || sizes["travel"] != 1 {
		t.Fatalf("got sizes %v, want work=3 travel=1", sizes)
	}
}

func TestGroupItemsSplitsOnWindowGap(t *testing.T) {
	now := time.Now()
	items := []model.MemoryItem{
		item("a", "work", now, 0.5, 0.5),
		item("b", "work", now.Add(time.Minute), 0.5, 0.5),
		// Beyond the window from b: starts a new episode.
		item("c", "work", now.Add(10*time.Minute), 0.5, 0.5),
	}

	groups := GroupItems(items, 5*time.Minute)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 1 {
		t.Fatalf("got group sizes %d/%d, want 2/1", len(groups[0]), len(groups[1]))
	}
}

func TestGroupItemsOrderIndependent(t *testing.T) {
	now := time.Now()
	forward := []model.MemoryItem{
		item("a", "work", now, 0.5, 0.5),
		item("b", "work", now.Add(time.Minute), 0.5, 0.5),
	}
	reversed := []model.MemoryItem{forward[1], forward[0]}

	g1 := GroupItems(forward, 5*time.Minute)
	g2 := GroupItems(reversed, 5*time.Minute)
	if len(g1) != 1 || len(g2) != 1 {
		t.Fatalf("got %d and %d groups, want 1 and 1", len(g1), len(g2))
	}
	if g1[0][0].ID != g2[0][0].ID {
		t.Fatal("grouping depends on input order")
	}
}

func TestBuildEpisodeSalienceAndStrength(t *testing.T) {
	b := testBuilder()
	now := time.Now()
	group := []model.MemoryItem{
		item("a", "work", now.Add(-30*time.Minute), 0.8, 0.6),
		item("b", "work", now.Add(-30*time.Minute), 0.4, 0.8),
	}

	ep := b.buildEpisode(group, now)

	// salience = 0.4*avg(sentiment) + 0.6*avg(importance)
	wantSalience := 0.4*0.6 + 0.6*0.7
	if math.Abs(ep.EmotionalSalience-wantSalience) > 1e-9 {
		t.Fatalf("got salience %.6f, want %.6f", ep.EmotionalSalience, wantSalience)
	}

	// strength = exp(-age/tau) * salience, age = 30min, tau = 1800s
	wantDecay := math.Exp(-1800.0 / 1800.0)
	if math.Abs(ep.DecayFactor-wantDecay) > 1e-9 {
		t.Fatalf("got decay %.6f, want %.6f", ep.DecayFactor, wantDecay)
	}
	if math.Abs(ep.Strength-wantDecay*wantSalience) > 1e-9 {
		t.Fatalf("got strength %.6f, want %.6f", ep.Strength, wantDecay*wantSalience)
	}
	if ep.State != model.EpisodePending {
		t.Fatalf("got state %s, want pending", ep.State)
	}
}

func TestBuildEpisodeWindowBounds(t *testing.T) {
	b := testBuilder()
	now := time.Now()
	start := now.Add(-10 * time.Minute)
	end := now.Add(-2 * time.Minute)
	group := []model.MemoryItem{
		item("a", "work", start, 0.5, 0.5),
		item("b", "work", end, 0.5, 0.5),
	}

	ep := b.buildEpisode(group, now)
	if !ep.WindowStart.Equal(start) || !ep.WindowEnd.Equal(end) {
		t.Fatalf("got window [%v,%v], want [%v,%v]",
			ep.WindowStart, ep.WindowEnd, start, end)
	}
	if len(ep.ItemIDs) != 2 {
		t.Fatalf("got %d item ids, want 2", len(ep.ItemIDs))
	}
}

func TestDeterministicIDStable(t *testing.T) {
	a := deterministicID("work", "item-1")
	b := deterministicID("work", "item-1")
	c := deterministicID("travel", "item-1")
	if a != b {
		t.Fatal("same group produced different episode ids")
	}
	if a == c {
		t.Fatal("different categories collided on episode id")
	}
}

func TestReadinessNeedsBothThresholds(t *testing.T) {
	b := testBuilder() // hebbian_min 3, salience_min 0.5

	ep := model.Episode{HebbianPotential: 4, EmotionalSalience: 0.6}
	if !b.ready(ep) {
		t.Fatal("hebbian 4 with salience 0.6 should be ready")
	}

	ep.EmotionalSalience = 0.4
	if b.ready(ep) {
		t.Fatal("salience 0.4 below the floor should not be ready")
	}

	ep.EmotionalSalience = 0.6
	ep.HebbianPotential = 2
	if b.ready(ep) {
		t.Fatal("hebbian 2 below the minimum should not be ready")
	}
}

func TestHebbianPotentialCapped(t *testing.T) {
	b := testBuilder()
	group := []model.MemoryItem{
		{ID: "a", Coactivated: 50},
		{ID: "b", Coactivated: 50},
	}
	peers := make([]model.Episode, 20)

	got := b.hebbianPotential(group, peers)
	if got != b.cfg.HebbianCap {
		t.Fatalf("got hebbian potential %d, want cap %d", got, b.cfg.HebbianCap)
	}
}

func TestHebbianPotentialCountsPeers(t *testing.T) {
	b := testBuilder()
	group := []model.MemoryItem{{ID: "a"}}

	if got := b.hebbianPotential(group, nil); got != 0 {
		t.Fatalf("got %d for a lone first activation, want 0", got)
	}
	if got := b.hebbianPotential(group, make([]model.Episode, 3)); got != 3 {
		t.Fatalf("got %d with 3 peers, want 3", got)
	}
}
