package writeback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/pipeline"
	"github.com/nidhogg/hippo/internal/store"
)

// BatchFunc writes records [lo,hi) through the given querier. The querier is
// a transaction; the whole range commits or rolls back together.
type BatchFunc func(ctx context.Context, q store.Querier, lo, hi int) error

// Watermark is the cursor advanced after a successful apply.
type Watermark struct {
	TS   time.Time
	Hash string
}

// Writer persists stage output in transactional batches. A failed batch rolls
// back and retries at half the size down to the floor; at the floor, records
// are applied one at a time and failures are quarantined instead of blocking
// the rest of the batch.
type Writer struct {
	store  *store.Store
	cfg    config.WritebackConfig
	logger *zap.Logger
}

// NewWriter creates a batch writer.
func NewWriter(st *store.Store, cfg config.WritebackConfig, logger *zap.Logger) *Writer {
	return &Writer{store: st, cfg: cfg, logger: logger}
}

// Apply writes count records for the stage. recordID names record i for
// quarantine entries. When wm is non-nil the stage watermark advances after
// the data commits, never before. Cancellation is honored only at batch
// boundaries so the cursor stays consistent with committed data.
func (w *Writer) Apply(ctx context.Context, stage model.Stage, count int, recordID func(int) string, write BatchFunc, wm *Watermark) (applied, quarantined int, err error) {
	size := w.cfg.BatchSize
	lo := 0
	for lo < count {
		if err := ctx.Err(); err != nil {
			return applied, quarantined, err
		}
		hi := lo + size
		if hi > count {
			hi = count
		}

		if err := w.applyBatch(ctx, write, lo, hi); err == nil {
			applied += hi - lo
			lo = hi
			continue
		} else if size > w.cfg.MinBatchSize {
			size = size / 2
			if size < w.cfg.MinBatchSize {
				size = w.cfg.MinBatchSize
			}
			w.logger.Warn("batch write failed, halving batch size",
				zap.String("stage", string(stage)),
				zap.Int("next_size", size),
				zap.Error(err))
			continue
		}

		// At the floor a failing batch is isolated record by record so one
		// bad record cannot block the rest.
		for i := lo; i < hi; i++ {
			if recErr := w.applyBatch(ctx, write, i, i+1); recErr != nil {
				id := recordID(i)
				ierr := &pipeline.IntegrityError{RecordID: id, Reason: recErr.Error()}
				runs, qErr := w.store.Quarantine(ctx, stage, id, ierr.Error())
				if qErr != nil {
					return applied, quarantined, qErr
				}
				quarantined++
				w.logger.Warn("record quarantined",
					zap.String("stage", string(stage)),
					zap.String("record_id", id),
					zap.Int("run_count", runs),
					zap.Error(recErr))
			} else {
				applied++
				if cErr := w.store.ClearQuarantine(ctx, stage, recordID(i)); cErr != nil {
					w.logger.Warn("clear quarantine failed", zap.Error(cErr))
				}
			}
		}
		lo = hi
	}

	if quarantined > 0 {
		moved, escErr := w.store.EscalateDeadLetters(ctx, w.cfg.QuarantineThreshold)
		if escErr != nil {
			w.logger.Warn("dead-letter escalation failed", zap.Error(escErr))
		} else if moved > 0 {
			w.logger.Warn("records escalated to dead-letter list",
				zap.String("stage", string(stage)),
				zap.Int("count", moved))
		}
	}

	if wm != nil {
		if err := w.store.SetWatermark(ctx, w.store.Pool(), stage, wm.TS, wm.Hash); err != nil {
			return applied, quarantined, err
		}
	}
	return applied, quarantined, nil
}

// applyBatch runs one transactional write, retrying transient store failures
// with backoff before the caller falls back to halving the batch.
func (w *Writer) applyBatch(ctx context.Context, write BatchFunc, lo, hi int) error {
	return pipeline.Retry(ctx, w.cfg.MaxRetries, time.Second, func(ctx context.Context) error {
		return w.applyTx(ctx, write, lo, hi)
	})
}

func (w *Writer) applyTx(ctx context.Context, write BatchFunc, lo, hi int) error {
	tx, err := w.store.BeginTx(ctx)
	if err != nil {
		return pipeline.Transient("begin batch", err)
	}
	if err := write(ctx, tx, lo, hi); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			w.logger.Debug("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pipeline.Transient(fmt.Sprintf("commit batch [%d,%d)", lo, hi), err)
	}
	return nil
}

// Fingerprint hashes the ordered record ids with the cursor timestamp so a
// re-run can tell an already-applied window from new work.
func Fingerprint(ids []string, ts time.Time) string {
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}
