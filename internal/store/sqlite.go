package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quantsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ QuoteCache = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
	symbol   TEXT NOT NULL,
	date     TEXT NOT NULL,
	open     REAL,
	high     REAL,
	low      REAL,
	close    REAL,
	volume   INTEGER,
	adjclose REAL,
	PRIMARY KEY (symbol, date)
)`

// SQLiteStore implements QuoteCache backed by a single SQLite file. A row
// whose close is NULL is a placeholder.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetQuotes returns the cached rows for symbol within [from, to].
func (s *SQLiteStore) GetQuotes(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume, adjclose
		FROM history
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		symbol, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var (
			date                      string
			open, high, low, cls, adj sql.NullFloat64
			volume                    sql.NullInt64
		)
		if err := rows.Scan(&date, &open, &high, &low, &cls, &volume, &adj); err != nil {
			return nil, err
		}
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad date %q in history for %s: %w", date, symbol, err)
		}
		q := domain.Placeholder(symbol, d)
		if cls.Valid {
			q.Open, q.High, q.Low, q.Close = open.Float64, high.Float64, low.Float64, cls.Float64
			q.Volume = volume.Int64
			q.AdjClose = adj.Float64
			q.Valid = true
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// PutQuotes upserts quotes in a single transaction.
func (s *SQLiteStore) PutQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO history (symbol, date, open, high, low, close, volume, adjclose)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, adjclose = excluded.adjclose`)
	if err != nil {
		return err
	}
	defer upsert.Close()
	placeholder, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO history (symbol, date) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer placeholder.Close()

	for _, q := range quotes {
		sym, date := domain.NormalizeSymbol(q.Symbol), q.Date.Format(domain.DateLayout)
		if !q.Valid {
			if _, err := placeholder.ExecContext(ctx, sym, date); err != nil {
				return fmt.Errorf("inserting placeholder %s/%s: %w", sym, date, err)
			}
			continue
		}
		if _, err := upsert.ExecContext(ctx, sym, date,
			q.Open, q.High, q.Low, q.Close, q.Volume, q.AdjClose); err != nil {
			return fmt.Errorf("upserting %s/%s: %w", sym, date, err)
		}
	}
	return tx.Commit()
}

// InitDays inserts placeholders for the days in [from, to] without a row.
func (s *SQLiteStore) InitDays(ctx context.Context, symbol string, from, to time.Time) error {
	var days []domain.Quote
	eachDay(from, to, func(d time.Time) {
		days = append(days, domain.Placeholder(symbol, d))
	})
	return s.PutQuotes(ctx, days)
}

// Purge deletes every row for symbol.
func (s *SQLiteStore) Purge(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE symbol = ?`, domain.NormalizeSymbol(symbol))
	return err
}

// Symbols lists the distinct cached symbols.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM history ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// LastDate returns the newest date holding real data for symbol.
func (s *SQLiteStore) LastDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM history WHERE symbol = ? AND close IS NOT NULL`,
		domain.NormalizeSymbol(symbol)).Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(domain.DateLayout, last.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
