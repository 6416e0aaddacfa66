package store

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
)

// Compile-time interface check.
var _ QuoteCache = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS history (
	symbol   TEXT    NOT NULL,
	date     DATE    NOT NULL,
	open     NUMERIC,
	high     NUMERIC,
	low      NUMERIC,
	close    NUMERIC,
	volume   BIGINT,
	adjclose NUMERIC,
	PRIMARY KEY (symbol, date)
)`

// PostgresStore implements QuoteCache on a shared PostgreSQL database.
// Prices are stored as NUMERIC and travel through shopspring decimals.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies connectivity and creates the
// history table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetQuotes returns the cached rows for symbol within [from, to].
func (s *PostgresStore) GetQuotes(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	rows, err := s.pool.Query(ctx, `
		SELECT date, open, high, low, close, volume, adjclose
		FROM history
		WHERE symbol = $1 AND date BETWEEN $2 AND $3
		ORDER BY date`,
		symbol, domain.Day(from), domain.Day(to))
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var (
			date                      time.Time
			open, high, low, cls, adj decimal.NullDecimal
			volume                    *int64
		)
		if err := rows.Scan(&date, &open, &high, &low, &cls, &volume, &adj); err != nil {
			return nil, err
		}
		q := domain.Placeholder(symbol, date)
		if cls.Valid {
			q.Open = open.Decimal.InexactFloat64()
			q.High = high.Decimal.InexactFloat64()
			q.Low = low.Decimal.InexactFloat64()
			q.Close = cls.Decimal.InexactFloat64()
			q.AdjClose = adj.Decimal.InexactFloat64()
			if volume != nil {
				q.Volume = *volume
			}
			q.Valid = true
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// PutQuotes upserts quotes in one batch.
func (s *PostgresStore) PutQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range quotes {
		sym, date := domain.NormalizeSymbol(q.Symbol), domain.Day(q.Date)
		if !q.Valid {
			batch.Queue(`INSERT INTO history (symbol, date) VALUES ($1, $2) ON CONFLICT DO NOTHING`, sym, date)
			continue
		}
		batch.Queue(`
			INSERT INTO history (symbol, date, open, high, low, close, volume, adjclose)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, date) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume, adjclose = EXCLUDED.adjclose`,
			sym, date,
			decimal.NewFromFloat(q.Open), decimal.NewFromFloat(q.High),
			decimal.NewFromFloat(q.Low), decimal.NewFromFloat(q.Close),
			q.Volume, decimal.NewFromFloat(q.AdjClose))
	}

	br := s.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upserting quote %d/%d: %w", i+1, batch.Len(), err)
		}
	}
	return br.Close()
}

// InitDays inserts placeholders server-side with generate_series.
func (s *PostgresStore) InitDays(ctx context.Context, symbol string, from, to time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO history (symbol, date)
		SELECT $1, d::date FROM generate_series($2::date, $3::date, interval '1 day') AS d
		ON CONFLICT DO NOTHING`,
		domain.NormalizeSymbol(symbol), domain.Day(from), domain.Day(to))
	return err
}

// Purge deletes every row for symbol.
func (s *PostgresStore) Purge(ctx context.Context, symbol string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM history WHERE symbol = $1`, domain.NormalizeSymbol(symbol))
	return err
}

// Symbols lists the distinct cached symbols.
func (s *PostgresStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT symbol FROM history ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// LastDate returns the newest date holding real data for symbol.
func (s *PostgresStore) LastDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM history WHERE symbol = $1 AND close IS NOT NULL`,
		domain.NormalizeSymbol(symbol)).Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return domain.Day(*last), true, nil
}
