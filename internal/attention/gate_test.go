package attention

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	return NewGate(config.Default().Attention, zap.NewNop())
}

func itemsWithSaliences(now time.Time, saliences ...float64) []model.MemoryItem {
	items := make([]model.MemoryItem, len(saliences))
	for i, s := range saliences {
		items[i] = model.MemoryItem{
			ID:         fmt.Sprintf("item-%02d", i),
			Salience:   s,
			Status:     model.ItemPending,
			ArrivalSeq: int64(i),
			CreatedAt:  now, // equal recency isolates the salience term
		}
	}
	return items
}

func TestAdmitKeepsHighestScored(t *testing.T) {
	g := testGate(t)
	now := time.Now()
	items := itemsWithSaliences(now, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.25, 0.2, 0.1)

	// Fix capacity at 7 by removing variance.
	g.cfg.CapacityVariance = 0

	adm := g.Admit(items, now, 1)
	if adm.Capacity != 7 {
		t.Fatalf("got capacity %d, want 7", adm.Capacity)
	}
	if len(adm.Admitted) != 7 {
		t.Fatalf("got %d admitted, want 7", len(adm.Admitted))
	}
	if len(adm.Deferred) != 3 {
		t.Fatalf("got %d deferred, want 3", len(adm.Deferred))
	}
	for _, it := range adm.Admitted {
		if it.Salience < 0.3 {
			t.Errorf("item %s (salience %.2f) admitted over a higher-scored one", it.ID, it.Salience)
		}
		if it.Status != model.ItemActive {
			t.Errorf("admitted item %s has status %s, want active", it.ID, it.Status)
		}
	}
	for _, it := range adm.Deferred {
		if it.Status != model.ItemPending {
			t.Errorf("deferred item %s has status %s, want pending", it.ID, it.Status)
		}
	}
}

func TestAdmitDeterministicForSeedAndCycle(t *testing.T) {
	g := testGate(t)
	now := time.Unix(1700000000, 0)
	items := itemsWithSaliences(now, 0.9, 0.1, 0.5, 0.5, 0.7, 0.2, 0.8, 0.3, 0.6, 0.4)

	first := g.Admit(items, now, 42)
	second := g.Admit(items, now, 42)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs and cycle produced different admissions")
	}
}

func TestCapacityStaysInBounds(t *testing.T) {
	g := testGate(t)
	for cycle := int64(0); cycle < 500; cycle++ {
		c := g.Capacity(cycle)
		if c < 5 || c > 9 {
			t.Fatalf("cycle %d: got capacity %d, want within [5,9]", cycle, c)
		}
	}
}

func TestCapacityVariesAcrossCycles(t *testing.T) {
	g := testGate(t)
	seen := make(map[int]bool)
	for cycle := int64(0); cycle < 100; cycle++ {
		seen[g.Capacity(cycle)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("got a single capacity across 100 cycles, want variation")
	}
}

func TestAdmitTiesBreakByArrivalOrder(t *testing.T) {
	g := testGate(t)
	g.cfg.CapacityVariance = 0
	g.cfg.CapacityBase = 5
	now := time.Now()

	// Six identically scored items; only the first five arrivals fit.
	items := itemsWithSaliences(now, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5)

	adm := g.Admit(items, now, 0)
	if len(adm.Admitted) != 5 {
		t.Fatalf("got %d admitted, want 5", len(adm.Admitted))
	}
	if got := adm.Deferred[0].ID; got != "item-05" {
		t.Fatalf("got deferred %s, want item-05 (latest arrival)", got)
	}
}

func TestAdmitFewerThanCapacity(t *testing.T) {
	g := testGate(t)
	now := time.Now()
	items := itemsWithSaliences(now, 0.9, 0.1)

	adm := g.Admit(items, now, 0)
	if len(adm.Admitted) != 2 || len(adm.Deferred) != 0 {
		t.Fatalf("got %d admitted / %d deferred, want 2 / 0",
			len(adm.Admitted), len(adm.Deferred))
	}
}

func TestAdmitEmptyInput(t *testing.T) {
	g := testGate(t)
	adm := g.Admit(nil, time.Now(), 0)
	if len(adm.Admitted) != 0 || len(adm.Deferred) != 0 {
		t.Fatal("empty input should admit nothing")
	}
}

func TestScoreDecaysWithAge(t *testing.T) {
	g := testGate(t)
	now := time.Now()

	fresh := model.MemoryItem{Salience: 0.5, CreatedAt: now}
	stale := model.MemoryItem{Salience: 0.5, CreatedAt: now.Add(-10 * time.Minute)}

	if g.Score(fresh, now) <= g.Score(stale, now) {
		t.Fatal("older item scored at least as high as a fresh one with equal salience")
	}
}
