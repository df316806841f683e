package pipeline

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/metrics"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/store"
)

// StageFunc does the actual work of one stage run. It returns counts for the
// structured result. Implementations check ctx only at batch boundaries so a
// cancelled run leaves its watermark safe to resume.
type StageFunc func(ctx context.Context) (processed, quarantined int, err error)

// Runner executes stage jobs under the per-stage run-lock and reports the
// structured result every job returns.
type Runner struct {
	store     *store.Store
	collector metrics.Collector
	lockTTL   time.Duration
	holder    string
	logger    *zap.Logger
}

// NewRunner creates a job runner. The holder id distinguishes this process in
// the run-lock table.
func NewRunner(st *store.Store, collector metrics.Collector, lockTTL time.Duration, logger *zap.Logger) *Runner {
	if collector == nil {
		collector = metrics.Nop{}
	}
	host, _ := os.Hostname()
	return &Runner{
		store:     st,
		collector: collector,
		lockTTL:   lockTTL,
		holder:    host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.New().String()[:8],
		logger:    logger,
	}
}

// Run executes one stage job. Two instances of the same stage never run
// concurrently: when the lock is held the job exits immediately with the
// non-error AlreadyRunning status.
func (r *Runner) Run(ctx context.Context, stage model.Stage, fn StageFunc) model.RunResult {
	start := time.Now()
	result := model.RunResult{Stage: stage, StartedAt: start}

	acquired, err := r.store.AcquireRunLock(ctx, stage, r.holder, r.lockTTL)
	if err != nil {
		result.Status = model.RunFailed
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		r.logger.Info("stage already running, skipping",
			zap.String("stage", string(stage)))
		result.Status = model.RunAlreadyRunning
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := r.store.ReleaseRunLock(context.Background(), stage, r.holder); err != nil {
			r.logger.Warn("release run lock failed",
				zap.String("stage", string(stage)), zap.Error(err))
		}
	}()

	processed, quarantined, runErr := fn(ctx)
	result.RecordsProcessed = processed
	result.RecordsQuarantined = quarantined
	result.Duration = time.Since(start)

	switch {
	case runErr == nil:
		result.Status = model.RunCompleted
	case errors.Is(runErr, context.Canceled):
		// Cancellation lands at a batch boundary; the watermark is intact.
		result.Status = model.RunCompleted
		result.Errors = append(result.Errors, "cancelled at batch boundary")
	default:
		result.Status = model.RunFailed
		result.Errors = append(result.Errors, runErr.Error())
	}

	r.collector.RecordBatch(ctx, metrics.BatchMetrics{
		Stage:     string(stage),
		Processed: processed,
		Succeeded: processed - quarantined,
		Failed:    quarantined,
		Duration:  result.Duration,
		At:        start,
	})
	if err := r.store.RecordRun(ctx, result); err != nil {
		r.logger.Warn("record run failed",
			zap.String("stage", string(stage)), zap.Error(err))
	}

	r.logger.Info("stage run finished",
		zap.String("stage", string(stage)),
		zap.String("status", string(result.Status)),
		zap.Int("processed", processed),
		zap.Int("quarantined", quarantined),
		zap.Duration("duration", result.Duration))
	return result
}
