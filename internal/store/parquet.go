package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantsim/internal/domain"
)

// Compile-time interface check.
var _ QuoteCache = (*ParquetStore)(nil)

// ParquetStore implements QuoteCache using one Parquet file per symbol and
// year. Writes rewrite the whole year file, so they are serialized.
type ParquetStore struct {
	DataDir string

	mu sync.Mutex
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// QuoteRecord is the Parquet schema for a cached day. Price columns are
// optional; a record with a null close is a placeholder.
type QuoteRecord struct {
	Symbol   string   `parquet:"symbol"`
	Date     int64    `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open     *float64 `parquet:"open,optional"`
	High     *float64 `parquet:"high,optional"`
	Low      *float64 `parquet:"low,optional"`
	Close    *float64 `parquet:"close,optional"`
	Volume   *int64   `parquet:"volume,optional"`
	AdjClose *float64 `parquet:"adjclose,optional"`
}

func toRecord(q domain.Quote) QuoteRecord {
	r := QuoteRecord{
		Symbol: domain.NormalizeSymbol(q.Symbol),
		Date:   domain.Day(q.Date).UnixMilli(),
	}
	if q.Valid {
		open, high, low, cls, vol, adj := q.Open, q.High, q.Low, q.Close, q.Volume, q.AdjClose
		r.Open, r.High, r.Low, r.Close, r.Volume, r.AdjClose = &open, &high, &low, &cls, &vol, &adj
	}
	return r
}

func (r QuoteRecord) quote() domain.Quote {
	q := domain.Placeholder(r.Symbol, time.UnixMilli(r.Date).UTC())
	if r.Close == nil {
		return q
	}
	q.Close = *r.Close
	q.Valid = true
	if r.Open != nil {
		q.Open = *r.Open
	}
	if r.High != nil {
		q.High = *r.High
	}
	if r.Low != nil {
		q.Low = *r.Low
	}
	if r.Volume != nil {
		q.Volume = *r.Volume
	}
	if r.AdjClose != nil {
		q.AdjClose = *r.AdjClose
	}
	return q
}

// ---------------------------------------------------------------------------
// QuoteCache implementation
// ---------------------------------------------------------------------------

// GetQuotes reads the year files overlapping [from, to].
func (s *ParquetStore) GetQuotes(_ context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	lo, hi := domain.Day(from).UnixMilli(), domain.Day(to).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	var quotes []domain.Quote
	for year := from.Year(); year <= to.Year(); year++ {
		records, err := readParquetFile[QuoteRecord](s.quotePath(symbol, year))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if r.Date >= lo && r.Date <= hi {
				quotes = append(quotes, r.quote())
			}
		}
	}
	return quotes, nil
}

// PutQuotes merges quotes into their year files.
func (s *ParquetStore) PutQuotes(_ context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	// Group by symbol → year.
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]QuoteRecord)
	for _, q := range quotes {
		r := toRecord(q)
		k := key{symbol: r.Symbol, year: q.Date.Year()}
		groups[k] = append(groups[k], r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, records := range groups {
		path := s.quotePath(k.symbol, k.year)

		existing, err := readParquetFile[QuoteRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeQuoteRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing quotes for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// InitDays writes placeholders for the days in [from, to] without a record.
func (s *ParquetStore) InitDays(ctx context.Context, symbol string, from, to time.Time) error {
	var days []domain.Quote
	eachDay(from, to, func(d time.Time) {
		days = append(days, domain.Placeholder(symbol, d))
	})
	return s.PutQuotes(ctx, days)
}

// Purge removes the symbol's directory.
func (s *ParquetStore) Purge(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.DataDir, "quotes", domain.NormalizeSymbol(symbol)))
}

// Symbols lists the symbols that have a quote directory.
func (s *ParquetStore) Symbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "quotes"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// LastDate scans year files newest first for the last Valid record.
func (s *ParquetStore) LastDate(_ context.Context, symbol string) (time.Time, bool, error) {
	symbol = domain.NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.DataDir, "quotes", symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	var years []int
	for _, e := range entries {
		y, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".parquet"))
		if err == nil {
			years = append(years, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	for _, y := range years {
		records, err := readParquetFile[QuoteRecord](s.quotePath(symbol, y))
		if err != nil {
			return time.Time{}, false, err
		}
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Close != nil {
				return time.UnixMilli(records[i].Date).UTC(), true, nil
			}
		}
	}
	return time.Time{}, false, nil
}

// Close is a no-op; files are closed after every read and write.
func (s *ParquetStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Path and file helpers
// ---------------------------------------------------------------------------

// quotePath returns the filesystem path for a symbol's year file.
// Layout: <dataDir>/quotes/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) quotePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "quotes", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns an error matching fs.ErrNotExist when path is absent.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeQuoteRecords deduplicates records by date. Incoming records with data
// replace existing ones; incoming placeholders only fill dates that have no
// record. The result is sorted by date.
func mergeQuoteRecords(existing, incoming []QuoteRecord) []QuoteRecord {
	seen := make(map[int64]QuoteRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		if _, ok := seen[r.Date]; ok && r.Close == nil {
			continue
		}
		seen[r.Date] = r
	}

	merged := make([]QuoteRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
