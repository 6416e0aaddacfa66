// Package store defines the persistent quote cache and its backends:
// SQLite (default), Parquet files and PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

// QuoteCache persists daily quotes keyed by (symbol, date). Every calendar
// day of a filled range has a row: trading days carry data, other days are
// placeholders (domain.Quote.Valid == false).
type QuoteCache interface {
	// GetQuotes returns the cached rows for symbol within [from, to], ordered
	// by date. Days with no row at all are absent from the result.
	GetQuotes(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error)

	// PutQuotes upserts quotes by (symbol, date). A Valid quote replaces
	// whatever is stored; a placeholder is only inserted where no row exists.
	PutQuotes(ctx context.Context, quotes []domain.Quote) error

	// InitDays inserts a placeholder row for every day in [from, to] that has
	// no row yet. Existing rows are never modified.
	InitDays(ctx context.Context, symbol string, from, to time.Time) error

	// Purge removes every row for symbol.
	Purge(ctx context.Context, symbol string) error

	// Symbols returns the distinct cached symbols, sorted.
	Symbols(ctx context.Context) ([]string, error)

	// LastDate returns the latest date with a Valid quote for symbol.
	LastDate(ctx context.Context, symbol string) (time.Time, bool, error)

	// Close releases the backend's resources.
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Storage) (QuoteCache, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStore(cfg.CachePath)
	case "parquet":
		return NewParquetStore(cfg.DataDir), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// eachDay calls fn for every calendar day in [from, to].
func eachDay(from, to time.Time, fn func(time.Time)) {
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}
