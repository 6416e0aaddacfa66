package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

func quote(sym string, d time.Time, px float64) domain.Quote {
	return domain.Quote{
		Symbol: sym, Date: d,
		Open: px - 1, High: px + 1, Low: px - 2, Close: px,
		Volume: 1000, AdjClose: px / 2, Valid: true,
	}
}

// testQuoteCache runs the QuoteCache contract against any backend.
func testQuoteCache(t *testing.T, c QuoteCache) {
	t.Helper()
	ctx := context.Background()
	from, to := domain.Date(2023, 12, 29), domain.Date(2024, 1, 4)

	// 1. Placeholders for every day of the range.
	if err := c.InitDays(ctx, "aapl", from, to); err != nil {
		t.Fatalf("InitDays: %v", err)
	}
	got, err := c.GetQuotes(ctx, "AAPL", from, to)
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d rows after InitDays, want 7", len(got))
	}
	for _, q := range got {
		if q.Valid {
			t.Errorf("row %s should be a placeholder", q.Date.Format(domain.DateLayout))
		}
	}
	if _, ok, _ := c.LastDate(ctx, "AAPL"); ok {
		t.Error("LastDate should report nothing for placeholders only")
	}

	// 2. Real data replaces placeholders; the year boundary is crossed.
	data := []domain.Quote{
		quote("AAPL", domain.Date(2023, 12, 29), 192),
		quote("AAPL", domain.Date(2024, 1, 2), 185),
		quote("AAPL", domain.Date(2024, 1, 3), 184),
	}
	if err := c.PutQuotes(ctx, data); err != nil {
		t.Fatalf("PutQuotes: %v", err)
	}

	// 3. InitDays again must not regress real rows.
	if err := c.InitDays(ctx, "AAPL", from, to); err != nil {
		t.Fatalf("InitDays (second): %v", err)
	}
	got, err = c.GetQuotes(ctx, "AAPL", from, to)
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d rows, want 7 (no duplicates)", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Fatalf("rows not ordered by date: %v then %v", got[i-1].Date, got[i].Date)
		}
	}
	valid := 0
	for _, q := range got {
		if q.Valid {
			valid++
		}
	}
	if valid != 3 {
		t.Errorf("got %d valid rows, want 3", valid)
	}
	q := got[4] // 2024-01-02
	if !q.Valid || q.Close != 185 || q.AdjClose != 92.5 || q.Open != 184 || q.Volume != 1000 {
		t.Errorf("2024-01-02 = %+v", q)
	}

	// 4. Upsert with newer values wins.
	if err := c.PutQuotes(ctx, []domain.Quote{quote("AAPL", domain.Date(2024, 1, 2), 186)}); err != nil {
		t.Fatalf("PutQuotes (update): %v", err)
	}
	got, _ = c.GetQuotes(ctx, "AAPL", domain.Date(2024, 1, 2), domain.Date(2024, 1, 2))
	if len(got) != 1 || got[0].Close != 186 {
		t.Errorf("after upsert got %+v, want close 186", got)
	}

	last, ok, err := c.LastDate(ctx, "AAPL")
	if err != nil || !ok || !last.Equal(domain.Date(2024, 1, 3)) {
		t.Errorf("LastDate = %v, %v, %v; want 2024-01-03, true, nil", last, ok, err)
	}

	// 5. Symbols and Purge.
	if err := c.PutQuotes(ctx, []domain.Quote{quote("MSFT", domain.Date(2024, 1, 2), 370)}); err != nil {
		t.Fatalf("PutQuotes MSFT: %v", err)
	}
	syms, err := c.Symbols(ctx)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", syms)
	}
	if err := c.Purge(ctx, "aapl"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	got, _ = c.GetQuotes(ctx, "AAPL", from, to)
	if len(got) != 0 {
		t.Errorf("got %d rows after Purge, want 0", len(got))
	}
	got, _ = c.GetQuotes(ctx, "MSFT", from, to)
	if len(got) != 1 {
		t.Errorf("Purge(AAPL) touched MSFT: %d rows", len(got))
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache", "stocks.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	testQuoteCache(t, s)
}

func TestParquetStore(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	defer s.Close()
	testQuoteCache(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("QUANT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUANT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer s.Close()
	for _, sym := range []string{"AAPL", "MSFT"} {
		if err := s.Purge(ctx, sym); err != nil {
			t.Fatalf("Purge: %v", err)
		}
	}
	testQuoteCache(t, s)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.quotePath("aapl", 2024)
	want := filepath.Join("/data", "quotes", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("quotePath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestMergeQuoteRecords(t *testing.T) {
	day := func(d int) int64 { return domain.Date(2024, 1, d).UnixMilli() }
	price := func(v float64) *float64 { return &v }

	existing := []QuoteRecord{
		{Symbol: "AAPL", Date: day(3), Close: price(10)},
		{Symbol: "AAPL", Date: day(2)},
	}
	incoming := []QuoteRecord{
		{Symbol: "AAPL", Date: day(3)},                  // placeholder: must not clobber
		{Symbol: "AAPL", Date: day(2), Close: price(9)}, // data: fills placeholder
		{Symbol: "AAPL", Date: day(1)},                  // new placeholder
	}

	merged := mergeQuoteRecords(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("merged %d records, want 3", len(merged))
	}
	if merged[0].Date != day(1) || merged[0].Close != nil {
		t.Errorf("merged[0] = %+v, want placeholder on day 1", merged[0])
	}
	if merged[1].Close == nil || *merged[1].Close != 9 {
		t.Errorf("merged[1] should carry close 9")
	}
	if merged[2].Close == nil || *merged[2].Close != 10 {
		t.Errorf("merged[2] placeholder overwrote real data")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(ctx, config.Storage{Backend: "sqlite", CachePath: filepath.Join(dir, "s.db")})
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	if _, ok := c.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) returned %T", c)
	}
	c.Close()

	c, err = Open(ctx, config.Storage{Backend: "parquet", DataDir: dir})
	if err != nil {
		t.Fatalf("Open(parquet): %v", err)
	}
	if _, ok := c.(*ParquetStore); !ok {
		t.Errorf("Open(parquet) returned %T", c)
	}

	if _, err := Open(ctx, config.Storage{Backend: "redis"}); err == nil {
		t.Error("Open(redis) should fail")
	}
}
