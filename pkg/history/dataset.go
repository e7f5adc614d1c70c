// Package history implements the append-only historical price dataset and
// the dedup/merge step that folds a batch run's results into it.
package history

import (
	"fmt"
	"time"

	"github.com/procurex/sku-collector/pkg/model"
)

// Dataset is an ordered, append-only log of price records with a key index
// on (SKU, date). Records are never modified or removed after append, and no
// two records share a key.
type Dataset struct {
	records []model.PriceRecord
	index   map[model.HistoryKey]int
	latest  map[string]time.Time // last RetrievedAt per SKU, for monotonicity
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		index:  make(map[model.HistoryKey]int),
		latest: make(map[string]time.Time),
	}
}

// FromRecords builds a dataset from previously persisted records, in order.
// Duplicate keys or per-SKU timestamp regressions mean the source was
// corrupted outside the collector and are rejected.
func FromRecords(records []model.PriceRecord) (*Dataset, error) {
	ds := NewDataset()
	for i := range records {
		if err := ds.append(records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return ds, nil
}

// append adds one record, enforcing key uniqueness and per-SKU timestamp
// monotonicity. Mutation goes through Merge; the dataset exposes no public
// mutator so the no-mutation invariant holds for callers.
func (d *Dataset) append(rec model.PriceRecord) error {
	key := rec.Key()
	if _, exists := d.index[key]; exists {
		return fmt.Errorf("duplicate history key %s/%s", key.SKU, key.Date)
	}
	if last, ok := d.latest[rec.SKU]; ok && rec.RetrievedAt.Before(last) {
		return fmt.Errorf("retrieved_at regression for %s: %s before %s",
			rec.SKU, rec.RetrievedAt.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	d.index[key] = len(d.records)
	d.records = append(d.records, rec)
	d.latest[rec.SKU] = rec.RetrievedAt
	return nil
}

// Contains reports whether a record with the given key is present.
func (d *Dataset) Contains(key model.HistoryKey) bool {
	_, ok := d.index[key]
	return ok
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Records returns a copy of the log in append order.
func (d *Dataset) Records() []model.PriceRecord {
	out := make([]model.PriceRecord, len(d.records))
	copy(out, d.records)
	return out
}

// At returns the record at position i in append order.
func (d *Dataset) At(i int) model.PriceRecord {
	return d.records[i]
}
