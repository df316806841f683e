package assocgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/model"
)

// Graph mirrors the association collection into Neo4j so retrieval paths can
// walk weighted edges between consolidated memories. It is an optional
// collaborator; Postgres remains the system of record for associations.
type Graph struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates an association graph backed by Neo4j.
func New(driver neo4j.DriverWithContext, logger *zap.Logger) *Graph {
	return &Graph{driver: driver, logger: logger}
}

// Upsert writes association edges between memory nodes. Nodes are created on
// demand; the edge weight is overwritten on re-application.
func (g *Graph) Upsert(ctx context.Context, assocs []model.Association) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, a := range assocs {
		_, err := session.Run(ctx,
			`MERGE (s:Memory {id: $source})
			 MERGE (t:Memory {id: $target})
			 MERGE (s)-[r:ASSOCIATED_WITH {kind: $kind}]->(t)
			 ON CREATE SET r.weight = $weight, r.created_at = datetime()
			 ON MATCH SET r.weight = $weight`,
			map[string]interface{}{
				"source": a.SourceID,
				"target": a.TargetID,
				"kind":   a.Kind,
				"weight": a.Weight,
			})
		if err != nil {
			return fmt.Errorf("upsert association %s->%s: %w", a.SourceID, a.TargetID, err)
		}
	}
	return nil
}

// Neighbors returns the outgoing associations of a memory, strongest first.
func (g *Graph) Neighbors(ctx context.Context, memoryID string, limit int) ([]model.Association, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (s:Memory {id: $id})-[r:ASSOCIATED_WITH]->(t:Memory)
		 RETURN t.id, r.kind, r.weight
		 ORDER BY r.weight DESC
		 LIMIT $limit`,
		map[string]interface{}{"id": memoryID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list neighbors of %s: %w", memoryID, err)
	}

	var assocs []model.Association
	for result.Next(ctx) {
		rec := result.Record()
		target, _ := rec.Get("t.id")
		kind, _ := rec.Get("r.kind")
		weight, _ := rec.Get("r.weight")
		assocs = append(assocs, model.Association{
			SourceID: memoryID,
			TargetID: target.(string),
			Kind:     kind.(string),
			Weight:   weight.(float64),
		})
	}
	return assocs, nil
}

// Remove deletes memory nodes and their edges, typically after pruning.
func (g *Graph) Remove(ctx context.Context, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (m:Memory) WHERE m.id IN $ids DETACH DELETE m`,
		map[string]interface{}{"ids": memoryIDs})
	if err != nil {
		return fmt.Errorf("remove memory nodes: %w", err)
	}
	return nil
}

// Close shuts down the driver.
func (g *Graph) Close(ctx context.Context) {
	if err := g.driver.Close(ctx); err != nil {
		g.logger.Warn("neo4j close failed", zap.Error(err))
	}
}
