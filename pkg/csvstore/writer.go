// Package csvstore persists price history datasets as an append-only CSV file.
//
// The file is create-once: the header row is written when the file does not
// exist and verified on every subsequent open. Rows already on disk are never
// rewritten or reordered, so external consumers polling the file only ever see
// new rows appended at the end.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/procurex/sku-collector/pkg/history"
	"github.com/procurex/sku-collector/pkg/model"
)

// ErrSchemaMismatch is returned when an existing output file carries a header
// that does not match the expected column layout.
var ErrSchemaMismatch = errors.New("csv header does not match expected schema")

var header = []string{
	"sku_id",
	"price",
	"unit_of_measure",
	"inventory_qty",
	"stock_status",
	"retrieved_at",
	"source_endpoint",
}

var (
	rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skucollector_csv_rows_written_total",
		Help: "Total number of data rows appended to the output CSV",
	})
	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skucollector_csv_write_errors_total",
		Help: "Total number of failed CSV persistence attempts",
	})
)

// Writer appends price history records to a CSV file at a fixed path.
type Writer struct {
	path string
}

// NewWriter creates a Writer for the given output path. The file itself is
// created lazily on the first Append.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("output path is required")
	}
	return &Writer{path: path}, nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Load reads the existing output file into a history dataset. A missing file
// yields an empty dataset, not an error, so first runs start from scratch.
func (w *Writer) Load() (*history.Dataset, error) {
	f, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return history.NewDataset(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", w.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		return history.NewDataset(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header from %s: %w", w.path, err)
	}
	if !headerMatches(first) {
		return nil, fmt.Errorf("%w: got %v", ErrSchemaMismatch, first)
	}

	var records []model.PriceRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", w.path, line, err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", w.path, line, err)
		}
		records = append(records, rec)
	}

	ds, err := history.FromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("rebuild dataset from %s: %w", w.path, err)
	}
	return ds, nil
}

// Append writes every dataset record not yet on disk to the output file. The
// file is created with a header row when absent; otherwise the existing header
// is verified and new rows are appended after the current last row. Nothing on
// disk is modified on failure, so a failed Append can be retried on its own.
func (w *Writer) Append(ds *history.Dataset) (int, error) {
	n, err := w.append(ds)
	if err != nil {
		writeErrors.Inc()
		return 0, err
	}
	rowsWritten.Add(float64(n))
	return n, nil
}

func (w *Writer) append(ds *history.Dataset) (int, error) {
	existing, created, err := w.openForAppend()
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s for append: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if created {
		if err := cw.Write(header); err != nil {
			return 0, fmt.Errorf("write header to %s: %w", w.path, err)
		}
	}

	records := ds.Records()
	if existing > len(records) {
		return 0, fmt.Errorf("%s has %d rows but dataset holds %d records", w.path, existing, len(records))
	}

	pending := records[existing:]
	for _, rec := range pending {
		if err := cw.Write(formatRow(rec)); err != nil {
			return 0, fmt.Errorf("write row for %s: %w", rec.SKU, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", w.path, err)
	}
	return len(pending), nil
}

// openForAppend ensures the output file exists with a valid header and returns
// the number of data rows already on disk. created reports whether the header
// still needs to be written.
func (w *Writer) openForAppend() (rows int, created bool, err error) {
	f, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		nf, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return 0, false, fmt.Errorf("create %s: %w", w.path, err)
		}
		nf.Close()
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("open %s: %w", w.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Empty file left by an interrupted earlier run.
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read header from %s: %w", w.path, err)
	}
	if !headerMatches(first) {
		return 0, false, fmt.Errorf("%w: got %v", ErrSchemaMismatch, first)
	}

	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("count rows in %s: %w", w.path, err)
		}
		rows++
	}
	return rows, false, nil
}

func headerMatches(row []string) bool {
	if len(row) != len(header) {
		return false
	}
	for i := range header {
		if row[i] != header[i] {
			return false
		}
	}
	return true
}

func formatRow(rec model.PriceRecord) []string {
	return []string{
		rec.SKU,
		rec.Price.String(),
		rec.UnitOfMeasure,
		strconv.FormatInt(rec.InventoryQty, 10),
		rec.StockStatus,
		rec.RetrievedAt.UTC().Format(time.RFC3339),
		rec.SourceEndpoint,
	}
}

func parseRow(row []string) (model.PriceRecord, error) {
	if len(row) != len(header) {
		return model.PriceRecord{}, fmt.Errorf("expected %d columns, got %d", len(header), len(row))
	}

	price, err := decimal.NewFromString(row[1])
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("invalid price %q: %w", row[1], err)
	}

	qty, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("invalid inventory quantity %q: %w", row[3], err)
	}

	at, err := time.Parse(time.RFC3339, row[5])
	if err != nil {
		return model.PriceRecord{}, fmt.Errorf("invalid retrieved_at %q: %w", row[5], err)
	}

	return model.PriceRecord{
		SKU:            row[0],
		Price:          price,
		UnitOfMeasure:  row[2],
		InventoryQty:   qty,
		StockStatus:    row[4],
		RetrievedAt:    at,
		SourceEndpoint: row[6],
	}, nil
}
