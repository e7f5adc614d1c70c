// Package ratelimit implements the request admission discipline for the
// collector: a bounded number of in-flight vendor requests plus a minimum
// spacing between granted requests. The admitted count never exceeds the
// configured bound; all limiter state is guarded by a single mutex and a
// channel semaphore.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for limiter admission.
var (
	limiterInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skucollector_ratelimit_inflight",
		Help: "Number of vendor requests currently holding a limiter slot",
	})

	limiterWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skucollector_ratelimit_waits_total",
		Help: "Total number of acquisitions that had to wait for spacing",
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skucollector_ratelimit_wait_seconds",
		Help:    "Time spent waiting for the minimum inter-request spacing",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// Config holds limiter configuration.
type Config struct {
	// MaxConcurrent is the maximum number of simultaneously admitted
	// requests. Must be positive.
	MaxConcurrent int

	// MinInterval is the minimum spacing between two granted admissions.
	// Zero disables spacing.
	MinInterval time.Duration
}

// Limiter bounds concurrent in-flight requests and enforces a minimum
// interval between grants. Safe for concurrent use.
type Limiter struct {
	slots       chan struct{}
	minInterval time.Duration

	mu        sync.Mutex
	nextGrant time.Time

	// Clock indirection for timing tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter from cfg.
func New(cfg Config) (*Limiter, error) {
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max_concurrent must be >= 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min_interval must be >= 0, got %v", cfg.MinInterval)
	}

	return &Limiter{
		slots:       make(chan struct{}, cfg.MaxConcurrent),
		minInterval: cfg.MinInterval,
		now:         time.Now,
		sleep:       sleepContext,
	}, nil
}

// Acquire blocks until a concurrency slot is free and the minimum spacing
// since the last grant has elapsed, or until ctx is done. On success the
// caller owns a slot and must call Release exactly once.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Reserve the next grant time under the lock, then wait outside it so
	// concurrent acquirers queue up with deterministic spacing.
	l.mu.Lock()
	now := l.now()
	grantAt := l.nextGrant
	if grantAt.Before(now) {
		grantAt = now
	}
	l.nextGrant = grantAt.Add(l.minInterval)
	l.mu.Unlock()

	if wait := grantAt.Sub(now); wait > 0 {
		limiterWaitsTotal.Inc()
		limiterWaitSeconds.Observe(wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			<-l.slots
			return err
		}
	}

	limiterInFlight.Inc()
	return nil
}

// Release returns a previously acquired slot.
func (l *Limiter) Release() {
	limiterInFlight.Dec()
	<-l.slots
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}

// SetClock overrides the limiter's time source and sleep function (for testing).
func (l *Limiter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	l.now = now
	l.sleep = sleep
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
