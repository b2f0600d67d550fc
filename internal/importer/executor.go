// Package importer streams product CSV files into the catalog. Rows are
// validated and upserted one at a time so memory stays flat regardless of
// file size; bad rows are collected, never fatal.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
)

// progressInterval is how many successfully processed rows pass between
// progress callbacks.
const progressInterval = 100

// RecordUpserter persists one catalog record per row.
type RecordUpserter interface {
	Upsert(ctx context.Context, ownerID uuid.UUID, p store.UpsertProductParams) error
}

// ProgressFunc receives the running count of processed rows.
type ProgressFunc func(processed int)

// RowError is one rejected row. Row is the 1-based index of the data row,
// not counting the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result aggregates an import run. Total always equals Imported + Errors.
type Result struct {
	Total        int        `json:"total"`
	Imported     int        `json:"imported"`
	Errors       int        `json:"errors"`
	ErrorDetails []RowError `json:"errorDetails"`
}

// JSON encodes the result for storage on the job row.
func (r *Result) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Summary is the compact form sent in bulk-import webhook payloads.
func (r *Result) Summary() map[string]interface{} {
	return map[string]interface{}{
		"total":    r.Total,
		"imported": r.Imported,
		"errors":   r.Errors,
	}
}

// Executor runs CSV imports against a record store.
type Executor struct {
	records RecordUpserter
	log     *slog.Logger
}

// New creates an Executor.
func New(records RecordUpserter, log *slog.Logger) *Executor {
	return &Executor{records: records, log: log}
}

// Execute streams the CSV at sourcePath and upserts each row for owner.
// Row-level failures (missing sku, rejected upsert) land in ErrorDetails
// and the batch continues; only an unreadable or malformed stream returns
// an error. On success the source file is deleted best-effort.
func (e *Executor) Execute(ctx context.Context, sourcePath string, owner uuid.UUID, progress ProgressFunc) (*Result, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open import source: %w", err)
	}
	defer f.Close()

	res, err := e.run(ctx, f, owner, progress)
	if err != nil {
		return nil, err
	}

	f.Close()
	if rmErr := os.Remove(sourcePath); rmErr != nil {
		e.log.Warn("could not remove import source", "path", sourcePath, "error", rmErr)
	}

	e.log.Info("csv import finished",
		"owner_id", owner,
		"total", res.Total,
		"imported", res.Imported,
		"errors", res.Errors,
	)
	return res, nil
}

// run processes the decoded stream. Split from Execute so tests can feed
// readers directly.
func (e *Executor) run(ctx context.Context, r io.Reader, owner uuid.UUID, progress ProgressFunc) (*Result, error) {
	cr := csv.NewReader(sanitizedReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return &Result{ErrorDetails: []RowError{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := headerIndex(header)

	res := &Result{ErrorDetails: []RowError{}}
	processed := 0
	for rowNum := 1; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("malformed csv at line %d: %w", parseErr.Line, err)
			}
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		res.Total++
		sku := strings.TrimSpace(cols.get(row, "sku"))
		if sku == "" {
			res.Errors++
			res.ErrorDetails = append(res.ErrorDetails, RowError{Row: rowNum, Error: "SKU is required"})
			continue
		}

		params := store.UpsertProductParams{
			SKU:         sku,
			Name:        strings.TrimSpace(cols.get(row, "name")),
			Description: strings.TrimSpace(cols.get(row, "description")),
			Active:      parseActive(cols, row),
		}
		if err := e.records.Upsert(ctx, owner, params); err != nil {
			res.Errors++
			res.ErrorDetails = append(res.ErrorDetails, RowError{Row: rowNum, Error: err.Error()})
			continue
		}

		res.Imported++
		processed++
		if progress != nil && processed%progressInterval == 0 {
			progress(processed)
		}
	}

	return res, nil
}

// headerIdx maps lowercased column names to their positions.
type headerIdx map[string]int

func headerIndex(header []string) headerIdx {
	idx := make(headerIdx, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func (h headerIdx) get(row []string, name string) string {
	pos, ok := h[name]
	if !ok || pos >= len(row) {
		return ""
	}
	return row[pos]
}

// parseActive defaults to true when the column is absent; otherwise only
// the literal string "true" counts.
func parseActive(cols headerIdx, row []string) bool {
	pos, ok := cols["active"]
	if !ok || pos >= len(row) {
		return true
	}
	return strings.TrimSpace(row[pos]) == "true"
}
