package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/procurex/sku-collector/pkg/model"
)

// fakeFetcher resolves SKUs from a fixed outcome table.
type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]model.Status // default success
	calls    atomic.Int64
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, req model.SkuRequest) model.FetchResult {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.FetchResult{SKU: req.SKU, Status: model.StatusPermanentFailure, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	status, ok := f.outcomes[req.SKU]
	f.mu.Unlock()
	if !ok {
		status = model.StatusSuccess
	}

	if status == model.StatusSuccess {
		return model.FetchResult{
			SKU:      req.SKU,
			Status:   model.StatusSuccess,
			Record:   &model.PriceRecord{SKU: req.SKU, RetrievedAt: time.Now().UTC()},
			Attempts: 1,
		}
	}
	return model.FetchResult{SKU: req.SKU, Status: status, Err: errors.New("fetch failed"), Attempts: 1}
}

func requests(skus ...string) []model.SkuRequest {
	reqs := make([]model.SkuRequest, len(skus))
	for i, sku := range skus {
		reqs[i] = model.SkuRequest{SKU: sku}
	}
	return reqs
}

func TestNew_Validation(t *testing.T) {
	fetcher := &fakeFetcher{}

	if _, err := New(nil, 4, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil fetcher")
	}
	if _, err := New(fetcher, 0, zerolog.Nop()); err == nil {
		t.Error("Expected error for zero workers")
	}
	if _, err := New(fetcher, 4, zerolog.Nop()); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

func TestRun_OneResultPerRequest(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: map[string]model.Status{
		"SKU-2": model.StatusPermanentFailure,
		"SKU-4": model.StatusPermanentFailure,
	}}
	orch, err := New(fetcher, 3, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reqs := requests("SKU-1", "SKU-2", "SKU-3", "SKU-4", "SKU-5")
	results, err := orch.Run(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != len(reqs) {
		t.Fatalf("Got %d results, want %d", len(results), len(reqs))
	}

	// Exactly one result per input SKU, no drops, no duplicates.
	seen := make(map[string]int)
	for _, r := range results {
		seen[r.SKU]++
	}
	for _, req := range reqs {
		if seen[req.SKU] != 1 {
			t.Errorf("SKU %s has %d results, want 1", req.SKU, seen[req.SKU])
		}
	}
}

func TestRun_PartialFailureIsNotBatchFailure(t *testing.T) {
	fetcher := &fakeFetcher{outcomes: map[string]model.Status{
		"SKU-1": model.StatusPermanentFailure,
		"SKU-2": model.StatusPermanentFailure,
		"SKU-3": model.StatusPermanentFailure,
	}}
	orch, err := New(fetcher, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := orch.Run(context.Background(), requests("SKU-1", "SKU-2", "SKU-3"))
	if err != nil {
		t.Errorf("Run() error = %v, want nil for an all-failed batch", err)
	}
	if len(results) != 3 {
		t.Errorf("Got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Status != model.StatusPermanentFailure {
			t.Errorf("SKU %s status = %q, want permanent_failure", r.SKU, r.Status)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	fetcher := &fakeFetcher{}
	orch, err := New(fetcher, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	results, err := orch.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Got %d results, want 0", len(results))
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("Fetcher called %d times, want 0 (no network calls for empty input)", fetcher.calls.Load())
	}
}

func TestRun_EmptySKURejectedBeforeDispatch(t *testing.T) {
	fetcher := &fakeFetcher{}
	orch, err := New(fetcher, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = orch.Run(context.Background(), requests("SKU-1", "", "SKU-3"))
	if err == nil {
		t.Fatal("Expected error for empty SKU in batch")
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("Fetcher called %d times, want 0 (validation precedes dispatch)", fetcher.calls.Load())
	}
}

func TestRun_CancellationPreservesCompleted(t *testing.T) {
	fetcher := &fakeFetcher{delay: 30 * time.Millisecond}
	orch, err := New(fetcher, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(45 * time.Millisecond)
		cancel()
	}()

	reqs := requests("SKU-1", "SKU-2", "SKU-3", "SKU-4", "SKU-5")
	results, err := orch.Run(ctx, reqs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Cardinality holds even under cancellation.
	if len(results) != len(reqs) {
		t.Fatalf("Got %d results, want %d", len(results), len(reqs))
	}

	var succeeded, cancelled int
	for _, r := range results {
		if r.OK() {
			succeeded++
		} else if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	if succeeded == 0 {
		t.Error("Expected at least one completed result before cancellation")
	}
	if cancelled == 0 {
		t.Error("Expected undispatched requests to carry the context error")
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, peak atomic.Int64

	fetcher := fetchFunc(func(ctx context.Context, req model.SkuRequest) model.FetchResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return model.FetchResult{SKU: req.SKU, Status: model.StatusSuccess, Record: &model.PriceRecord{SKU: req.SKU}}
	})

	orch, err := New(fetcher, workers, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := orch.Run(context.Background(), requests("a", "b", "c", "d", "e", "f", "g", "h")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := peak.Load(); got > workers {
		t.Errorf("Peak concurrent fetches = %d, want <= %d", got, workers)
	}
}

// fetchFunc adapts a function to SKUFetcher.
type fetchFunc func(ctx context.Context, req model.SkuRequest) model.FetchResult

func (f fetchFunc) Fetch(ctx context.Context, req model.SkuRequest) model.FetchResult {
	return f(ctx, req)
}

func TestRun_ResultsCoverInputSetDeterministically(t *testing.T) {
	fetcher := &fakeFetcher{}
	orch, err := New(fetcher, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reqs := requests("SKU-3", "SKU-1", "SKU-2")
	results, err := orch.Run(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.SKU
	}
	sort.Strings(got)

	want := []string{"SKU-1", "SKU-2", "SKU-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Result set = %v, want %v (order-independent coverage)", got, want)
			break
		}
	}
}
