package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamKey = "hippo:metrics"

// StreamCollector publishes batch metrics to a Redis Stream so external
// observers can tail pipeline progress. Publish failures are logged and
// dropped; the pipeline never blocks on the sink.
type StreamCollector struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewStreamCollector connects to Redis and returns a stream-backed collector.
func NewStreamCollector(redisURL string, logger *zap.Logger) (*StreamCollector, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StreamCollector{rdb: rdb, logger: logger}, nil
}

// RecordBatch implements Collector.
func (c *StreamCollector) RecordBatch(ctx context.Context, m BatchMetrics) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}

	// Bounded so a slow Redis cannot stall a stage between batches.
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err = c.rdb.XAdd(pubCtx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		c.logger.Debug("metrics publish failed",
			zap.String("stage", m.Stage),
			zap.Error(err))
	}
}

// Close shuts down the Redis connection.
func (c *StreamCollector) Close() error {
	return c.rdb.Close()
}
