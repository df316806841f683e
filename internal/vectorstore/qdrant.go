package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nidhogg/hippo/internal/config"
)

// centroidCollection holds one point per semantic cluster. Cluster assignment
// is a nearest-centroid lookup against this collection.
const centroidCollection = "hippo_cluster_centroids"

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg config.QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCentroids creates the centroid collection if it does not exist.
func (c *Client) EnsureCentroids(ctx context.Context, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: centroidCollection})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: centroidCollection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", centroidCollection, err)
	}
	return nil
}

// UpsertCentroid writes the centroid vector for a cluster. The cluster id is
// the point id, so recomputed centroids overwrite in place.
func (c *Client) UpsertCentroid(ctx context.Context, clusterID int, vector []float32) error {
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: centroidCollection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(clusterID)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: map[string]*pb.Value{
					"cluster_id": {Kind: &pb.Value_StringValue{StringValue: strconv.Itoa(clusterID)}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert centroid %d: %w", clusterID, err)
	}
	return nil
}

// NearestCentroid returns the closest cluster to the vector. ok is false when
// no centroids exist yet.
func (c *Client) NearestCentroid(ctx context.Context, vector []float32) (clusterID int, score float32, ok bool, err error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: centroidCollection,
		Vector:         vector,
		Limit:          1,
	})
	if err != nil {
		return 0, 0, false, fmt.Errorf("search centroids: %w", err)
	}
	if len(resp.Result) == 0 {
		return 0, 0, false, nil
	}
	hit := resp.Result[0]
	return int(hit.Id.GetNum()), hit.Score, true, nil
}

// DeleteCentroids removes centroid points for emptied clusters.
func (c *Client) DeleteCentroids(ctx context.Context, clusterIDs []int) error {
	if len(clusterIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(clusterIDs))
	for i, id := range clusterIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
	}
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: centroidCollection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete centroids: %w", err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
