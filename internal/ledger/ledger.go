// Package ledger persists simulation output: the executed Orders, daily
// Position snapshots and daily Performance values of a run, plus the
// indicator values strategies record. A ledger is recreated for every run.
package ledger

import (
	"context"
	"os"
	"strings"

	"quantsim/internal/domain"
	"quantsim/internal/indicator"
)

// Ledger is the write side of a run's output. Rows are buffered until Flush.
type Ledger interface {
	indicator.Recorder

	// Begin records the run's identity. It must be called before any row.
	Begin(ctx context.Context, run domain.RunInfo) error
	RecordOrder(ctx context.Context, row domain.OrderRow) error
	RecordPosition(ctx context.Context, row domain.PositionRow) error
	RecordPerformance(ctx context.Context, row domain.PerformanceRow) error
	// Flush makes every row recorded so far durable.
	Flush(ctx context.Context) error
	Close() error
}

// Reader is the read side of a ledger written by a previous run.
type Reader interface {
	Run(ctx context.Context) (domain.RunInfo, error)
	Orders(ctx context.Context) ([]domain.OrderRow, error)
	Positions(ctx context.Context) ([]domain.PositionRow, error)
	Performance(ctx context.Context) ([]domain.PerformanceRow, error)
	Indicators(ctx context.Context) ([]domain.IndicatorRow, error)
	Close() error
}

// Open creates a fresh ledger at path, discarding any previous output there.
// A path ending in ".csv" or naming a directory selects CSV files; anything
// else is a SQLite database.
func Open(path string) (Ledger, error) {
	if isCSV(path) {
		return NewCSVLedger(path)
	}
	return NewSQLiteLedger(path)
}

// OpenReader opens the ledger at path for reading.
func OpenReader(path string) (Reader, error) {
	if isCSV(path) {
		return NewCSVReader(path)
	}
	return NewSQLiteReader(path)
}

func isCSV(path string) bool {
	if strings.HasSuffix(strings.ToLower(path), ".csv") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
