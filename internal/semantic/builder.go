package semantic

import (
	"context"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/assocgraph"
	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/embedding"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/store"
	"github.com/nidhogg/hippo/internal/vectorstore"
	"github.com/nidhogg/hippo/internal/writeback"
)

// rescaleSetpoint is the cluster-mean retrieval strength the homeostatic
// rescale pulls toward.
const rescaleSetpoint = 0.5

// Builder projects consolidated memories into the semantic network: fixed
// cluster assignment, per-cluster competition ranking, and derived retrieval
// scores. Cluster assignment is sticky; only Recluster moves existing nodes.
type Builder struct {
	store      *store.Store
	embedder   embedding.Provider  // optional
	vectors    *vectorstore.Client // optional
	graph      *assocgraph.Graph   // optional
	writer     *writeback.Writer
	cfg        config.SemanticConfig
	fetchLimit int
	logger     *zap.Logger
}

// NewBuilder creates the semantic stage job. Embedder, vectors, and graph may
// be nil; clustering then degrades to the category hash.
func NewBuilder(st *store.Store, embedder embedding.Provider, vectors *vectorstore.Client,
	graph *assocgraph.Graph, writer *writeback.Writer, cfg config.SemanticConfig,
	fetchLimit int, logger *zap.Logger) *Builder {
	if fetchLimit <= 0 {
		fetchLimit = 1000
	}
	return &Builder{
		store:      st,
		embedder:   embedder,
		vectors:    vectors,
		graph:      graph,
		writer:     writer,
		cfg:        cfg,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Run executes one build cycle over consolidated memories past the stage
// watermark, then refreshes ranking in every touched cluster.
func (b *Builder) Run(ctx context.Context) (processed, quarantined int, err error) {
	wm, err := b.store.GetWatermark(ctx, model.StageSemantic)
	if err != nil {
		return 0, 0, err
	}

	memories, err := b.store.ListConsolidatedAfter(ctx, wm.LastProcessedAt, b.fetchLimit)
	if err != nil {
		return 0, 0, err
	}
	if len(memories) == 0 {
		return 0, 0, nil
	}

	now := time.Now()
	latest := wm.LastProcessedAt
	touched := make(map[int]bool)
	var nodes []model.SemanticNode
	for _, mem := range memories {
		if mem.CreatedAt.After(latest) {
			latest = mem.CreatedAt
		}

		existing, err := b.store.GetNodeByMemory(ctx, mem.ID)
		if err != nil {
			return 0, 0, err
		}
		if existing != nil {
			existing.Strength = mem.Strength
			existing.UpdatedAt = now
			touched[existing.ClusterID] = true
			nodes = append(nodes, *existing)
			continue
		}

		cluster := b.assignCluster(ctx, mem)
		touched[cluster] = true
		nodes = append(nodes, model.SemanticNode{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte("node/"+mem.ID)).String(),
			MemoryID:       mem.ID,
			Category:       mem.SemanticCategory,
			ClusterID:      cluster,
			Strength:       mem.Strength,
			AgeCategory:    model.AgeRecent,
			State:          model.NodeEpisodic,
			CreatedAt:      now,
			LastAccessedAt: now,
			UpdatedAt:      now,
		})
	}

	applied, quarantined, err := b.writer.Apply(ctx, model.StageSemantic, len(nodes),
		func(i int) string { return nodes[i].ID },
		func(ctx context.Context, q store.Querier, lo, hi int) error {
			return b.store.UpsertNodes(ctx, q, nodes[lo:hi])
		}, nil)
	if err != nil {
		return applied, quarantined, err
	}

	for cluster := range touched {
		if err := ctx.Err(); err != nil {
			return len(memories), quarantined, err
		}
		members, err := b.store.ListNodesByCluster(ctx, b.store.Pool(), cluster)
		if err != nil {
			return len(memories), quarantined, err
		}
		ranked := refreshCluster(b.cfg, members, now)
		_, q, err := b.writer.Apply(ctx, model.StageSemantic, len(ranked),
			func(i int) string { return ranked[i].ID },
			func(ctx context.Context, q store.Querier, lo, hi int) error {
				return b.store.UpsertNodes(ctx, q, ranked[lo:hi])
			}, nil)
		quarantined += q
		if err != nil {
			return len(memories), quarantined, err
		}
	}

	mark := &writeback.Watermark{TS: latest, Hash: writeback.Fingerprint(nodeIDs(nodes), latest)}
	if err := b.store.SetWatermark(ctx, b.store.Pool(), model.StageSemantic, mark.TS, mark.Hash); err != nil {
		return len(memories), quarantined, err
	}

	b.logger.Info("semantic network updated",
		zap.Int("memories", len(memories)),
		zap.Int("clusters_touched", len(touched)))
	return len(memories), quarantined, nil
}

// assignCluster picks the cluster for a new node. With an embedding and a
// vector store available it is a nearest-centroid lookup; otherwise the
// category hash spreads nodes over the fixed cluster count.
func (b *Builder) assignCluster(ctx context.Context, mem model.ConsolidatedMemory) int {
	fallback := b.hashCluster(mem.SemanticCategory)
	if b.embedder == nil || b.vectors == nil {
		return fallback
	}

	vec := mem.Embedding
	if len(vec) == 0 {
		embedded, err := b.embedder.Embed(ctx, []string{mem.SemanticCategory})
		if err != nil || len(embedded) == 0 {
			b.logger.Debug("embedding failed, hashing category", zap.Error(err))
			return fallback
		}
		vec = embedded[0]
	}

	id, _, ok, err := b.vectors.NearestCentroid(ctx, vec)
	if err != nil {
		b.logger.Debug("centroid search failed, hashing category", zap.Error(err))
		return fallback
	}
	if !ok {
		// No centroids yet: seed one at the hash cluster so later lookups
		// have something to converge on.
		if err := b.vectors.UpsertCentroid(ctx, fallback, vec); err != nil {
			b.logger.Debug("centroid seed failed", zap.Error(err))
		}
		return fallback
	}
	return id
}

func (b *Builder) hashCluster(category string) int {
	h := fnv.New32a()
	h.Write([]byte(category))
	return int(h.Sum32() % uint32(b.cfg.ClusterCount))
}

// Rescale runs the periodic homeostatic pass: rolling access frequencies
// outside the access window reset, each cluster's retrieval strengths are
// scaled so the cluster mean returns to the setpoint, then nodes that fell
// below the prune threshold and aged to remote are removed. The scaled
// values persist as-is; the pure recomputation happens on the next Run.
// Intended to run weekly.
func (b *Builder) Rescale(ctx context.Context) (processed, quarantined int, err error) {
	clusters, err := b.store.ListClusterIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	accessWindow := time.Duration(b.cfg.AccessWindowDays) * 24 * time.Hour
	var pruned []string
	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return processed, quarantined, err
		}
		members, err := b.store.ListNodesByCluster(ctx, b.store.Pool(), cluster)
		if err != nil {
			return processed, quarantined, err
		}
		if len(members) == 0 {
			continue
		}

		var sum float64
		for i := range members {
			if now.Sub(members[i].LastAccessedAt) > accessWindow {
				members[i].AccessFrequency = 0
			}
			sum += members[i].RetrievalStrength
		}
		mean := sum / float64(len(members))

		var keep []model.SemanticNode
		for _, n := range members {
			if mean > 0 {
				n.RetrievalStrength = model.Clamp01(n.RetrievalStrength * rescaleSetpoint / mean)
			}
			n.UpdatedAt = now
			if n.RetrievalStrength < b.cfg.PruneThreshold && n.AgeCategory == model.AgeRemote {
				pruned = append(pruned, n.ID)
				continue
			}
			keep = append(keep, n)
		}

		// Re-rank after pruning so ranks stay dense; rankCluster keeps the
		// scaled retrieval strengths intact.
		sort.Slice(keep, func(i, j int) bool {
			if keep[i].Strength != keep[j].Strength {
				return keep[i].Strength > keep[j].Strength
			}
			return keep[i].ID < keep[j].ID
		})
		keep = rankCluster(keep, now)

		_, q, err := b.writer.Apply(ctx, model.StageSemantic, len(keep),
			func(i int) string { return keep[i].ID },
			func(ctx context.Context, q store.Querier, lo, hi int) error {
				return b.store.UpsertNodes(ctx, q, keep[lo:hi])
			}, nil)
		quarantined += q
		if err != nil {
			return processed, quarantined, err
		}
		processed += len(members)
	}

	if len(pruned) > 0 {
		if err := b.store.DeleteNodes(ctx, b.store.Pool(), pruned); err != nil {
			return processed, quarantined, err
		}
		if b.graph != nil {
			if err := b.graph.Remove(ctx, pruned); err != nil {
				b.logger.Warn("graph prune failed", zap.Error(err))
			}
		}
		b.logger.Info("weak remote nodes pruned", zap.Int("count", len(pruned)))
	}
	return processed, quarantined, nil
}

// Recluster reassigns every node, the one operation allowed to move nodes
// between clusters. Runs only when explicitly requested.
func (b *Builder) Recluster(ctx context.Context) (processed, quarantined int, err error) {
	clusters, err := b.store.ListClusterIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now()
	moved := 0
	regroup := make(map[int][]model.SemanticNode)
	for _, cluster := range clusters {
		members, err := b.store.ListNodesByCluster(ctx, b.store.Pool(), cluster)
		if err != nil {
			return 0, 0, err
		}
		for _, n := range members {
			target := b.assignCluster(ctx, model.ConsolidatedMemory{
				ID:               n.MemoryID,
				SemanticCategory: n.Category,
				Strength:         n.Strength,
			})
			if target != n.ClusterID {
				moved++
				n.ClusterID = target
			}
			regroup[target] = append(regroup[target], n)
		}
	}

	for _, members := range regroup {
		sort.Slice(members, func(i, j int) bool {
			if members[i].Strength != members[j].Strength {
				return members[i].Strength > members[j].Strength
			}
			return members[i].ID < members[j].ID
		})
		members = refreshCluster(b.cfg, members, now)
		n, q, err := b.writer.Apply(ctx, model.StageSemantic, len(members),
			func(i int) string { return members[i].ID },
			func(ctx context.Context, q store.Querier, lo, hi int) error {
				return b.store.UpsertNodes(ctx, q, members[lo:hi])
			}, nil)
		processed += n
		quarantined += q
		if err != nil {
			return processed, quarantined, err
		}
	}

	b.logger.Info("recluster complete",
		zap.Int("nodes", processed),
		zap.Int("moved", moved))
	return processed, quarantined, nil
}

func nodeIDs(nodes []model.SemanticNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
