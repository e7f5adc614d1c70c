// Package metrics provides the centralized Prometheus metrics registry for the
// SKU collector. All metrics are defined in their respective packages (client,
// ratelimit, auth, batch, history, csvstore) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the collector.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - skucollector_ratelimit_inflight (Gauge): Fetches currently holding a concurrency slot
//   - skucollector_ratelimit_waits_total (Counter): Acquisitions that had to wait for spacing
//   - skucollector_ratelimit_wait_seconds (Histogram): Time spent waiting for admission
//
// Fetch Metrics (pkg/client):
//   - skucollector_fetches_total{status} (Counter): Completed fetches by terminal status
//   - skucollector_fetch_duration_seconds (Histogram): End-to-end fetch duration including retries
//   - skucollector_fetch_errors_total{class} (Counter): Attempt errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - skucollector_retries_total{error_class} (Counter): Retry attempts by error class
//   - skucollector_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - skucollector_retry_exhausted_total{error_class} (Counter): Fetches that exhausted the attempt budget
//
// Auth Metrics (pkg/auth):
//   - skucollector_token_cache_hits_total{layer} (Counter): Token cache hits by layer (memory, redis)
//   - skucollector_token_fetches_total (Counter): Fresh token grants requested from the vendor
//
// Batch Metrics (pkg/batch):
//   - skucollector_batch_results_total{status} (Counter): Per-run result counts by status
//   - skucollector_batch_duration_seconds (Histogram): Wall-clock duration of batch runs
//
// History Metrics (pkg/history):
//   - skucollector_merge_outcomes_total{outcome} (Counter): Merge outcomes (succeeded, failed, skipped_duplicate)
//
// Persistence Metrics (pkg/csvstore):
//   - skucollector_csv_rows_written_total (Counter): Data rows appended to the output file
//   - skucollector_csv_write_errors_total (Counter): Failed persistence attempts
//
// Example Prometheus Queries:
//
//   # Fetch Success Rate
//   sum(rate(skucollector_fetches_total{status="success"}[5m])) /
//   sum(rate(skucollector_fetches_total[5m]))
//
//   # Retry Pressure by Error Class
//   rate(skucollector_retries_total[5m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(skucollector_fetch_duration_seconds_bucket[5m]))
//
//   # Token Cache Hit Rate
//   sum(rate(skucollector_token_cache_hits_total[5m])) /
//   (sum(rate(skucollector_token_cache_hits_total[5m])) + rate(skucollector_token_fetches_total[5m]))
