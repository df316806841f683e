package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BatchMetrics is the structured per-batch report every stage emits.
type BatchMetrics struct {
	Stage     string        `json:"stage"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Collector receives per-batch metrics. Implementations must not block the
// pipeline; delivery is best-effort.
type Collector interface {
	RecordBatch(ctx context.Context, m BatchMetrics)
}

// Nop discards all metrics. Used when no observability sink is configured.
type Nop struct{}

// RecordBatch implements Collector.
func (Nop) RecordBatch(context.Context, BatchMetrics) {}

// LogCollector writes batch metrics to the structured log.
type LogCollector struct {
	logger *zap.Logger
}

// NewLogCollector creates a log-backed collector.
func NewLogCollector(logger *zap.Logger) *LogCollector {
	return &LogCollector{logger: logger}
}

// RecordBatch implements Collector.
func (c *LogCollector) RecordBatch(_ context.Context, m BatchMetrics) {
	c.logger.Info("batch complete",
		zap.String("stage", m.Stage),
		zap.Int("processed", m.Processed),
		zap.Int("succeeded", m.Succeeded),
		zap.Int("failed", m.Failed),
		zap.Duration("duration", m.Duration))
}

// Multi fans metrics out to several collectors.
type Multi []Collector

// RecordBatch implements Collector.
func (mc Multi) RecordBatch(ctx context.Context, m BatchMetrics) {
	for _, c := range mc {
		c.RecordBatch(ctx, m)
	}
}
