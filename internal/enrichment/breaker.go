package enrichment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Breaker selects between a remote provider and the rule-based fallback.
// After maxFailures consecutive remote failures the circuit opens and all
// calls go to the fallback until the cooldown elapses. Core pipeline logic
// only ever sees the Provider interface.
type Breaker struct {
	remote   Provider
	fallback Provider
	logger   *zap.Logger

	maxFailures int
	cooldown    time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// NewBreaker wraps remote with circuit-breaking fallback selection. A nil
// remote routes everything to the fallback.
func NewBreaker(remote, fallback Provider, maxFailures int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		remote:      remote,
		fallback:    fallback,
		logger:      logger,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Enrich implements Provider.
func (b *Breaker) Enrich(ctx context.Context, contentRef string) (Features, error) {
	if !b.remoteAvailable() {
		return b.fallback.Enrich(ctx, contentRef)
	}
	f, err := b.remote.Enrich(ctx, contentRef)
	if err != nil {
		b.recordFailure(err)
		return b.fallback.Enrich(ctx, contentRef)
	}
	b.recordSuccess()
	return f, nil
}

// Similarity implements Provider.
func (b *Breaker) Similarity(ctx context.Context, aRef, bRef string) (float64, error) {
	if !b.remoteAvailable() {
		return b.fallback.Similarity(ctx, aRef, bRef)
	}
	score, err := b.remote.Similarity(ctx, aRef, bRef)
	if err != nil {
		b.recordFailure(err)
		return b.fallback.Similarity(ctx, aRef, bRef)
	}
	b.recordSuccess()
	return score, nil
}

func (b *Breaker) remoteAvailable() bool {
	if b.remote == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.maxFailures && time.Now().After(b.openUntil) {
		b.openUntil = time.Now().Add(b.cooldown)
		b.failures = 0
		b.logger.Warn("enrichment circuit opened, using fallback",
			zap.Duration("cooldown", b.cooldown),
			zap.Error(err))
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}
