// Package client implements the per-SKU fetch engine: rate-limited vendor
// requests, transient/permanent error classification, and retry with
// exponential backoff. The retry loop is an explicit attempt state machine so
// attempt counts and backoff timing are independently testable.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/procurex/sku-collector/pkg/model"
	"github.com/procurex/sku-collector/pkg/ratelimit"
)

// Prometheus metrics for fetch operations.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_fetches_total",
		Help: "Total SKU fetches by final status",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skucollector_fetch_duration_seconds",
		Help:    "Per-SKU fetch duration including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_fetch_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skucollector_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skucollector_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Adapter performs one network attempt for a single SKU against a concrete
// vendor API and normalizes the payload. Vendor-specific response shapes stay
// behind this interface; the client only depends on error classification.
type Adapter interface {
	FetchSKU(ctx context.Context, sku string) (*model.PriceRecord, error)
}

// Client is the per-SKU fetch client.
type Client struct {
	adapter Adapter
	limiter *ratelimit.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

// New creates a fetch client.
func New(adapter Adapter, limiter *ratelimit.Limiter, retry RetryConfig, logger zerolog.Logger) (*Client, error) {
	if adapter == nil {
		return nil, fmt.Errorf("vendor adapter is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1, got %d", retry.MaxAttempts)
	}
	if retry.InitialBackoff <= 0 {
		return nil, fmt.Errorf("backoff_base must be > 0, got %v", retry.InitialBackoff)
	}
	if retry.MaxBackoff < retry.InitialBackoff {
		return nil, fmt.Errorf("backoff_max (%v) must be >= backoff_base (%v)",
			retry.MaxBackoff, retry.InitialBackoff)
	}
	if retry.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("backoff multiplier must be >= 1, got %v", retry.BackoffMultiplier)
	}

	return &Client{
		adapter: adapter,
		limiter: limiter,
		retry:   retry,
		logger:  logger,
	}, nil
}

// Fetch retrieves a single SKU, retrying transient failures up to the
// configured attempt budget. It never returns an error: every outcome is a
// FetchResult. Transient results only exist between attempts; the returned
// result is Success or PermanentFailure.
func (c *Client) Fetch(ctx context.Context, req model.SkuRequest) model.FetchResult {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	backoff := c.retry.InitialBackoff
	var last model.FetchResult

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		record, issued, err := c.attempt(ctx, req.SKU)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Str("sku", req.SKU).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			fetchesTotal.WithLabelValues(string(model.StatusSuccess)).Inc()
			return model.FetchResult{
				SKU:      req.SKU,
				Status:   model.StatusSuccess,
				Record:   record,
				Attempts: attempt,
			}
		}

		if !issued {
			// Limiter admission failed: the context is gone and no network
			// attempt happened, so this attempt does not count.
			return c.cancelled(req.SKU, err, attempt-1)
		}

		class := Classify(err)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()

		status := model.StatusTransientFailure
		if !shouldRetry(class) {
			status = model.StatusPermanentFailure
		}
		last = model.FetchResult{
			SKU:      req.SKU,
			Status:   status,
			Err:      err,
			Attempts: attempt,
		}

		if status == model.StatusPermanentFailure {
			c.logger.Warn().
				Str("sku", req.SKU).
				Str("error_class", string(class)).
				Err(err).
				Msg("Permanent fetch failure")
			fetchesTotal.WithLabelValues(string(status)).Inc()
			return last
		}

		if attempt == c.retry.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		wait := withJitter(backoff)
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		c.logger.Debug().
			Str("sku", req.SKU).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			c.logger.Warn().
				Str("sku", req.SKU).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return c.cancelled(req.SKU, ctx.Err(), attempt)
		case <-time.After(wait):
		}

		backoff = c.retry.next(backoff)
	}

	// Transient retries exhausted: the failure becomes permanent.
	class := Classify(last.Err)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	fetchesTotal.WithLabelValues(string(model.StatusPermanentFailure)).Inc()
	c.logger.Warn().
		Str("sku", req.SKU).
		Str("error_class", string(class)).
		Int("attempts", last.Attempts).
		Msg("Retry attempts exhausted")

	return model.FetchResult{
		SKU:      req.SKU,
		Status:   model.StatusPermanentFailure,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, last.Attempts, last.Err),
		Attempts: last.Attempts,
	}
}

// attempt performs one rate-limited network attempt. The limiter wraps the
// network call itself, not the retry loop, so every individual attempt is
// separately admitted. issued reports whether a network call was made.
func (c *Client) attempt(ctx context.Context, sku string) (record *model.PriceRecord, issued bool, err error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, false, err
	}
	defer c.limiter.Release()

	record, err = c.adapter.FetchSKU(ctx, sku)
	return record, true, err
}

// cancelled builds the terminal result for a context-aborted fetch.
func (c *Client) cancelled(sku string, cause error, attempts int) model.FetchResult {
	fetchesTotal.WithLabelValues(string(model.StatusPermanentFailure)).Inc()
	if cause == nil {
		cause = context.Canceled
	}
	if !errors.Is(cause, ErrFetchCancelled) {
		cause = fmt.Errorf("%w: %w", ErrFetchCancelled, cause)
	}
	return model.FetchResult{
		SKU:      sku,
		Status:   model.StatusPermanentFailure,
		Err:      cause,
		Attempts: attempts,
	}
}
