package store

import (
	"context"
	"fmt"

	"github.com/nidhogg/hippo/internal/model"
)

// UpsertNodes writes a batch of semantic nodes keyed by id.
func (s *Store) UpsertNodes(ctx context.Context, q Querier, nodes []model.SemanticNode) error {
	for _, n := range nodes {
		_, err := q.Exec(ctx, `
			INSERT INTO semantic_nodes
				(id, memory_id, category, cluster_id, competition_rank,
				 access_frequency, strength, retrieval_strength, age_category,
				 consolidation_state, created_at, last_accessed_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (id) DO UPDATE SET
				cluster_id = $4, competition_rank = $5, access_frequency = $6,
				strength = $7, retrieval_strength = $8, age_category = $9,
				consolidation_state = $10, last_accessed_at = $12, updated_at = now()`,
			n.ID, n.MemoryID, n.Category, n.ClusterID, n.CompetitionRank,
			n.AccessFrequency, n.Strength, n.RetrievalStrength,
			string(n.AgeCategory), string(n.State), n.CreatedAt, n.LastAccessedAt)
		if err != nil {
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
	}
	return nil
}

// ListNodesByCluster returns a cluster's members ordered by strength
// descending, the order competition ranks are assigned in.
func (s *Store) ListNodesByCluster(ctx context.Context, q Querier, clusterID int) ([]model.SemanticNode, error) {
	rows, err := q.Query(ctx, `
		SELECT id, memory_id, category, cluster_id, competition_rank,
		       access_frequency, strength, retrieval_strength, age_category,
		       consolidation_state, created_at, last_accessed_at, updated_at
		FROM semantic_nodes
		WHERE cluster_id = $1
		ORDER BY strength DESC, id ASC`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list cluster %d nodes: %w", clusterID, err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListClusterIDs returns the distinct cluster ids currently populated.
func (s *Store) ListClusterIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT cluster_id FROM semantic_nodes ORDER BY cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("list cluster ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cluster id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetNodeByMemory returns the node derived from a consolidated memory, or nil.
func (s *Store) GetNodeByMemory(ctx context.Context, memoryID string) (*model.SemanticNode, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, memory_id, category, cluster_id, competition_rank,
		       access_frequency, strength, retrieval_strength, age_category,
		       consolidation_state, created_at, last_accessed_at, updated_at
		FROM semantic_nodes
		WHERE memory_id = $1`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("get node for memory %s: %w", memoryID, err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// RecordNodeAccess bumps a node's rolling access counter and recency stamp,
// returning the updated node or nil when the id is unknown.
func (s *Store) RecordNodeAccess(ctx context.Context, id string) (*model.SemanticNode, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE semantic_nodes
		SET access_frequency = access_frequency + 1,
		    last_accessed_at = now(),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, memory_id, category, cluster_id, competition_rank,
		          access_frequency, strength, retrieval_strength, age_category,
		          consolidation_state, created_at, last_accessed_at, updated_at`, id)
	if err != nil {
		return nil, fmt.Errorf("record access %s: %w", id, err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// DeleteNodes hard-deletes pruned nodes by id.
func (s *Store) DeleteNodes(ctx context.Context, q Querier, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `DELETE FROM semantic_nodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func scanNodes(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.SemanticNode, error) {
	var nodes []model.SemanticNode
	for rows.Next() {
		var n model.SemanticNode
		var age, state string
		if err := rows.Scan(&n.ID, &n.MemoryID, &n.Category, &n.ClusterID,
			&n.CompetitionRank, &n.AccessFrequency, &n.Strength,
			&n.RetrievalStrength, &age, &state,
			&n.CreatedAt, &n.LastAccessedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.AgeCategory = model.AgeCategory(age)
		n.State = model.NodeState(state)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
