package history

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/procurex/sku-collector/pkg/model"
)

var mergeOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skucollector_merge_outcomes_total",
	Help: "Merge outcomes by disposition",
}, []string{"outcome"})

// Summary reports the disposition of a merged batch run.
type Summary struct {
	Succeeded        int // new records appended to the history
	Failed           int // non-success fetch results
	SkippedDuplicate int // successes discarded by dedup (in-run or vs. history)
}

// Merge folds a run's fetch results into the dataset. Non-success results
// are counted but never produce records. Among successes for the same SKU,
// the latest RetrievedAt wins; the rest count as skipped duplicates, as do
// successes whose (SKU, date) key is already in the history or whose
// timestamp is older than what the history already holds. Merge only appends:
// existing records are never modified or removed, so merging the same result
// set twice is idempotent. Order of the input does not matter.
func Merge(results []model.FetchResult, ds *Dataset) Summary {
	var summary Summary

	// Latest-wins selection within the run.
	winners := make(map[string]*model.PriceRecord)
	for i := range results {
		r := results[i]
		if !r.OK() {
			summary.Failed++
			continue
		}
		prev, ok := winners[r.SKU]
		if !ok {
			winners[r.SKU] = r.Record
			continue
		}
		summary.SkippedDuplicate++
		if r.Record.RetrievedAt.After(prev.RetrievedAt) {
			winners[r.SKU] = r.Record
		}
	}

	// Deterministic append order regardless of fetch completion order.
	skus := make([]string, 0, len(winners))
	for sku := range winners {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		rec := winners[sku]
		if ds.Contains(rec.Key()) {
			summary.SkippedDuplicate++
			continue
		}
		if err := ds.append(*rec); err != nil {
			// Stale timestamp against already-persisted history.
			summary.SkippedDuplicate++
			continue
		}
		summary.Succeeded++
	}

	mergeOutcomesTotal.WithLabelValues("succeeded").Add(float64(summary.Succeeded))
	mergeOutcomesTotal.WithLabelValues("failed").Add(float64(summary.Failed))
	mergeOutcomesTotal.WithLabelValues("skipped_duplicate").Add(float64(summary.SkippedDuplicate))

	return summary
}
