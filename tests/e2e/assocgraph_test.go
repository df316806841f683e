package e2e

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/nidhogg/hippo/internal/assocgraph"
	"github.com/nidhogg/hippo/internal/model"
)

// Verifies the Neo4j mirror end to end: upsert edges, walk neighbors in
// weight order, overwrite a weight, prune nodes.
func TestAssociationGraphRoundTrip(t *testing.T) {
	ctx := context.Background()

	uri, cleanup, err := startNeo4j(ctx)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	defer cleanup()

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.NoAuth())
	if err != nil {
		t.Fatalf("neo4j driver: %v", err)
	}
	graph := assocgraph.New(driver, testLogger)
	defer graph.Close(ctx)

	assocs := []model.Association{
		{SourceID: "mem-a", TargetID: "mem-b", Kind: "replay", Weight: 0.8},
		{SourceID: "mem-a", TargetID: "mem-c", Kind: "creative", Weight: 0.3},
		{SourceID: "mem-b", TargetID: "mem-c", Kind: "replay", Weight: 0.6},
	}
	if err := graph.Upsert(ctx, assocs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	neighbors, err := graph.Neighbors(ctx, "mem-a", 10)
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors of mem-a, want 2", len(neighbors))
	}
	if neighbors[0].TargetID != "mem-b" || neighbors[1].TargetID != "mem-c" {
		t.Fatalf("got neighbor order %s, %s; want mem-b, mem-c",
			neighbors[0].TargetID, neighbors[1].TargetID)
	}

	// Re-applying the same edge with a new weight overwrites, never duplicates.
	update := []model.Association{
		{SourceID: "mem-a", TargetID: "mem-b", Kind: "replay", Weight: 0.2},
	}
	if err := graph.Upsert(ctx, update); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	neighbors, err = graph.Neighbors(ctx, "mem-a", 10)
	if err != nil {
		t.Fatalf("neighbors after update: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors after update, want 2", len(neighbors))
	}
	if neighbors[0].TargetID != "mem-c" {
		t.Fatalf("got strongest neighbor %s after downweight, want mem-c",
			neighbors[0].TargetID)
	}

	if err := graph.Remove(ctx, []string{"mem-c"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	neighbors, err = graph.Neighbors(ctx, "mem-a", 10)
	if err != nil {
		t.Fatalf("neighbors after remove: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].TargetID != "mem-b" {
		t.Fatalf("got %d neighbors after remove, want only mem-b", len(neighbors))
	}
}
