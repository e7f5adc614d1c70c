// Package model defines the shared data types flowing through the collector:
// SKU requests, per-SKU fetch outcomes, and normalized price records.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies the final outcome of fetching a single SKU.
type Status string

const (
	// StatusSuccess indicates a 2xx response with a parseable payload.
	StatusSuccess Status = "success"

	// StatusTransientFailure indicates an error expected to resolve on retry
	// (5xx, timeout, connection error). Only observed between attempts; a
	// batch never surfaces a transient result as final.
	StatusTransientFailure Status = "transient_failure"

	// StatusPermanentFailure indicates an error retrying cannot fix
	// (4xx, or transient retries exhausted).
	StatusPermanentFailure Status = "permanent_failure"
)

// SkuRequest identifies a single SKU to fetch within a batch run.
// Immutable once created; retries consume the same request.
type SkuRequest struct {
	SKU string
}

// FetchResult is the outcome of fetching one SKU. Instances are never
// mutated after creation; each retry produces a new FetchResult that
// supersedes the previous attempt for the same SKU.
type FetchResult struct {
	SKU      string
	Status   Status
	Record   *PriceRecord // non-nil only for StatusSuccess
	Err      error        // non-nil for failures
	Attempts int          // network attempts actually issued
}

// OK reports whether the fetch produced a usable record.
func (r FetchResult) OK() bool {
	return r.Status == StatusSuccess && r.Record != nil
}

// PriceRecord is the normalized form of a successful vendor response.
type PriceRecord struct {
	SKU            string          // vendor product code
	Price          decimal.Decimal // unit list price
	UnitOfMeasure  string          // pricing unit (e.g., "EA", "BX")
	InventoryQty   int64           // on-hand quantity reported by the vendor
	StockStatus    string          // vendor stock message (e.g., "InStock")
	RetrievedAt    time.Time       // when the fetch completed
	SourceEndpoint string          // vendor endpoint the record came from
}

// HistoryKey identifies a record in the persisted history. Records are
// keyed by SKU and calendar date: one surviving record per SKU per day.
type HistoryKey struct {
	SKU  string
	Date string // YYYY-MM-DD, derived from RetrievedAt
}

// Key returns the history key for this record.
func (p *PriceRecord) Key() HistoryKey {
	return HistoryKey{
		SKU:  p.SKU,
		Date: p.RetrievedAt.UTC().Format("2006-01-02"),
	}
}
