// Package batch implements the fan-out orchestrator: it dispatches a SKU
// list across a bounded worker pool and collects exactly one FetchResult per
// request. Per-item failures are data, never errors; only impossible setup
// fails a batch.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/procurex/sku-collector/pkg/model"
)

// Prometheus metrics for batch runs.
var (
	batchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_batch_results_total",
		Help: "Total batch results by final status",
	}, []string{"status"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skucollector_batch_duration_seconds",
		Help:    "Duration of complete batch runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// SKUFetcher fetches a single SKU to a final result.
type SKUFetcher interface {
	Fetch(ctx context.Context, req model.SkuRequest) model.FetchResult
}

// Orchestrator fans a SKU list out across a worker pool.
type Orchestrator struct {
	fetcher SKUFetcher
	workers int
	logger  zerolog.Logger
}

// New creates an orchestrator with the given worker count. Workers should
// match the limiter's concurrency bound; more workers would only queue on
// the limiter.
func New(fetcher SKUFetcher, workers int, logger zerolog.Logger) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", workers)
	}

	return &Orchestrator{
		fetcher: fetcher,
		workers: workers,
		logger:  logger,
	}, nil
}

// Run fetches all requests concurrently and returns one result per request.
// Completion order is not input order, but cardinality always holds: no
// drops, no duplicates, regardless of the failure mix. An empty request list
// yields an empty result set without any network activity. Cancellation via
// ctx stops dispatching; requests that never reached the network come back
// as failed results carrying the context error, while already-completed
// results are preserved.
func (o *Orchestrator) Run(ctx context.Context, requests []model.SkuRequest) ([]model.FetchResult, error) {
	for i, req := range requests {
		if req.SKU == "" {
			return nil, fmt.Errorf("request %d: empty sku", i)
		}
	}

	if len(requests) == 0 {
		o.logger.Info().Msg("Empty SKU list, nothing to fetch")
		return []model.FetchResult{}, nil
	}

	runID := uuid.NewString()
	start := time.Now()
	o.logger.Info().
		Str("run_id", runID).
		Int("skus", len(requests)).
		Int("workers", o.workers).
		Msg("Starting batch run")

	jobs := make(chan model.SkuRequest, len(requests))
	for _, req := range requests {
		jobs <- req
	}
	close(jobs)

	results := make(chan model.FetchResult, len(requests))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.worker(ctx, workerID, jobs, results)
		}(i)
	}
	wg.Wait()
	close(results)

	collected := make([]model.FetchResult, 0, len(requests))
	var succeeded, failed int
	for result := range results {
		if result.OK() {
			succeeded++
		} else {
			failed++
		}
		batchResultsTotal.WithLabelValues(string(result.Status)).Inc()
		collected = append(collected, result)
	}

	batchDuration.Observe(time.Since(start).Seconds())
	o.logger.Info().
		Str("run_id", runID).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch run complete")

	return collected, nil
}

// worker drains the job queue. After cancellation remaining jobs are still
// drained, but without network activity: they produce failed results
// carrying the context error so the batch keeps its one-result-per-request
// guarantee.
func (o *Orchestrator) worker(ctx context.Context, workerID int, jobs <-chan model.SkuRequest, results chan<- model.FetchResult) {
	processed := 0
	for req := range jobs {
		if err := ctx.Err(); err != nil {
			results <- model.FetchResult{
				SKU:    req.SKU,
				Status: model.StatusPermanentFailure,
				Err:    fmt.Errorf("not dispatched: %w", err),
			}
			continue
		}

		results <- o.fetcher.Fetch(ctx, req)
		processed++
	}

	if processed > 0 {
		o.logger.Debug().
			Int("worker_id", workerID).
			Int("skus_processed", processed).
			Msg("Worker completed")
	}
}
