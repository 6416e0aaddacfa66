package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var (
	_ Ledger = (*SQLiteLedger)(nil)
	_ Reader = (*SQLiteReader)(nil)
)

// Money columns are TEXT so decimals round-trip exactly.
const schema = `
CREATE TABLE runs (
	id         TEXT PRIMARY KEY,
	strategy   TEXT NOT NULL,
	portfolio  TEXT NOT NULL,
	params     TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE orders (
	id          TEXT PRIMARY KEY,
	date        TEXT NOT NULL,
	type        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	quantity    REAL NOT NULL,
	price       REAL NOT NULL,
	basis       REAL NOT NULL,
	fee         TEXT NOT NULL,
	description TEXT NOT NULL
);

CREATE TABLE position (
	date   TEXT NOT NULL,
	symbol TEXT NOT NULL,
	amount REAL NOT NULL,
	basis  REAL NOT NULL,
	price  REAL NOT NULL,
	value  TEXT NOT NULL
);

CREATE TABLE performance (
	date  TEXT NOT NULL,
	value TEXT NOT NULL
);

CREATE TABLE indicators (
	date   TEXT NOT NULL,
	symbol TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  REAL NOT NULL
);

CREATE INDEX idx_orders_date ON orders(date);
CREATE INDEX idx_position_date ON position(date);
CREATE INDEX idx_performance_date ON performance(date);
`

// SQLiteLedger writes run output to a SQLite database. Rows recorded between
// two Flush calls share one transaction.
type SQLiteLedger struct {
	db *sql.DB
	tx *sql.Tx
}

// NewSQLiteLedger removes any database at path and creates a new one.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger dir: %w", err)
		}
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing old ledger: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger tables: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) exec(ctx context.Context, query string, args ...any) error {
	if l.tx == nil {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin ledger tx: %w", err)
		}
		l.tx = tx
	}
	_, err := l.tx.ExecContext(ctx, query, args...)
	return err
}

// Begin inserts the runs row.
func (l *SQLiteLedger) Begin(ctx context.Context, run domain.RunInfo) error {
	return l.exec(ctx, `
		INSERT INTO runs (id, strategy, portfolio, params, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Portfolio, run.Params,
		run.Start.Format(domain.DateLayout), run.End.Format(domain.DateLayout),
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
}

// RecordOrder inserts an executed order.
func (l *SQLiteLedger) RecordOrder(ctx context.Context, r domain.OrderRow) error {
	return l.exec(ctx, `
		INSERT INTO orders (id, date, type, symbol, quantity, price, basis, fee, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Date.Format(domain.DateLayout), string(r.Type), r.Symbol,
		r.Quantity, r.Price, r.Basis, r.Fee.String(), r.Description,
	)
}

// RecordPosition inserts a holding snapshot.
func (l *SQLiteLedger) RecordPosition(ctx context.Context, r domain.PositionRow) error {
	return l.exec(ctx, `
		INSERT INTO position (date, symbol, amount, basis, price, value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Date.Format(domain.DateLayout), r.Symbol, r.Amount, r.Basis, r.Price, r.Value.String(),
	)
}

// RecordPerformance inserts the day's portfolio value.
func (l *SQLiteLedger) RecordPerformance(ctx context.Context, r domain.PerformanceRow) error {
	return l.exec(ctx, `INSERT INTO performance (date, value) VALUES (?, ?)`,
		r.Date.Format(domain.DateLayout), r.Value.String())
}

// RecordIndicator inserts one indicator output.
func (l *SQLiteLedger) RecordIndicator(ctx context.Context, r domain.IndicatorRow) error {
	return l.exec(ctx, `INSERT INTO indicators (date, symbol, name, value) VALUES (?, ?, ?, ?)`,
		r.Date.Format(domain.DateLayout), r.Symbol, r.Name, r.Value)
}

// Flush commits the open transaction.
func (l *SQLiteLedger) Flush(_ context.Context) error {
	if l.tx == nil {
		return nil
	}
	err := l.tx.Commit()
	l.tx = nil
	if err != nil {
		return fmt.Errorf("committing ledger: %w", err)
	}
	return nil
}

// Close commits pending rows and closes the database.
func (l *SQLiteLedger) Close() error {
	err := l.Flush(context.Background())
	return errors.Join(err, l.db.Close())
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// SQLiteReader reads a ledger written by SQLiteLedger.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader opens the ledger database at path.
func NewSQLiteReader(path string) (*SQLiteReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	return &SQLiteReader{db: db}, nil
}

// Close closes the database.
func (r *SQLiteReader) Close() error { return r.db.Close() }

// Run returns the runs row.
func (r *SQLiteReader) Run(ctx context.Context) (domain.RunInfo, error) {
	var (
		run                   domain.RunInfo
		start, end, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, strategy, portfolio, params, start_date, end_date, created_at FROM runs LIMIT 1`).
		Scan(&run.ID, &run.Strategy, &run.Portfolio, &run.Params, &start, &end, &createdAt)
	if err != nil {
		return run, fmt.Errorf("reading run: %w", err)
	}
	if run.Start, err = domain.ParseDay(start); err != nil {
		return run, err
	}
	if run.End, err = domain.ParseDay(end); err != nil {
		return run, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return run, err
	}
	return run, nil
}

// Orders returns the executed orders in date order.
func (r *SQLiteReader) Orders(ctx context.Context) ([]domain.OrderRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, type, symbol, quantity, price, basis, fee, description
		FROM orders ORDER BY date, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderRow
	for rows.Next() {
		var (
			o         domain.OrderRow
			date, fee string
			side      string
		)
		if err := rows.Scan(&o.ID, &date, &side, &o.Symbol, &o.Quantity, &o.Price, &o.Basis, &fee, &o.Description); err != nil {
			return nil, err
		}
		o.Type = domain.OrderSide(side)
		if o.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		if o.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("order %s fee: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Positions returns the position snapshots in date order.
func (r *SQLiteReader) Positions(ctx context.Context) ([]domain.PositionRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, symbol, amount, basis, price, value
		FROM position ORDER BY date, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying position: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionRow
	for rows.Next() {
		var (
			p           domain.PositionRow
			date, value string
		)
		if err := rows.Scan(&date, &p.Symbol, &p.Amount, &p.Basis, &p.Price, &value); err != nil {
			return nil, err
		}
		if p.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Performance returns the daily values in date order.
func (r *SQLiteReader) Performance(ctx context.Context) ([]domain.PerformanceRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, value FROM performance ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("querying performance: %w", err)
	}
	defer rows.Close()

	var out []domain.PerformanceRow
	for rows.Next() {
		var (
			p           domain.PerformanceRow
			date, value string
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, err
		}
		if p.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Indicators returns the recorded indicator values.
func (r *SQLiteReader) Indicators(ctx context.Context) ([]domain.IndicatorRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, symbol, name, value FROM indicators ORDER BY date, rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying indicators: %w", err)
	}
	defer rows.Close()

	var out []domain.IndicatorRow
	for rows.Next() {
		var (
			ir   domain.IndicatorRow
			date string
		)
		if err := rows.Scan(&date, &ir.Symbol, &ir.Name, &ir.Value); err != nil {
			return nil, err
		}
		if ir.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		out = append(out, ir)
	}
	return out, rows.Err()
}
