package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
)

func testLedger(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	run := domain.RunInfo{
		ID: "run-1", Strategy: "trending", Portfolio: "cash", Params: "{long: 50}",
		Start: domain.Date(2024, 1, 2), End: domain.Date(2024, 1, 31),
		CreatedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := l.Begin(ctx, run); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	d1, d2 := domain.Date(2024, 1, 2), domain.Date(2024, 1, 3)
	rows := []error{
		l.RecordPosition(ctx, domain.PositionRow{Date: d1, Symbol: domain.Cash, Value: decimal.RequireFromString("1000.50")}),
		l.RecordPosition(ctx, domain.PositionRow{Date: d1, Symbol: "AAPL", Amount: 10, Basis: 99.5, Price: 101, Value: decimal.NewFromInt(1010)}),
		l.RecordPerformance(ctx, domain.PerformanceRow{Date: d1, Value: decimal.RequireFromString("2010.50")}),
		l.RecordIndicator(ctx, domain.IndicatorRow{Date: d1, Symbol: "AAPL", Name: "short", Value: 100.25}),
		l.RecordOrder(ctx, domain.OrderRow{
			ID: "o1", Date: d2, Type: domain.OrderSideSell, Symbol: "AAPL",
			Quantity: 10, Price: 102, Basis: 99.5, Fee: decimal.RequireFromString("9.99"),
			Description: "SELL ALL AAPL at MARKET",
		}),
		l.RecordPerformance(ctx, domain.PerformanceRow{Date: d2, Value: decimal.RequireFromString("2010.51")}),
	}
	for i, err := range rows {
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	gotRun, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotRun.ID != run.ID || gotRun.Params != run.Params || !gotRun.End.Equal(run.End) || !gotRun.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("Run() = %+v, want %+v", gotRun, run)
	}

	orders, err := r.Orders(ctx)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	o := orders[0]
	if o.Type != domain.OrderSideSell || o.Quantity != 10 || o.Basis != 99.5 || !o.Date.Equal(d2) {
		t.Errorf("order = %+v", o)
	}
	if !o.Fee.Equal(decimal.RequireFromString("9.99")) || o.Description != "SELL ALL AAPL at MARKET" {
		t.Errorf("order fee/description = %s/%q", o.Fee, o.Description)
	}

	pos, err := r.Positions(ctx)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(pos) != 2 || pos[0].Symbol != domain.Cash || pos[1].Basis != 99.5 {
		t.Errorf("Positions() = %+v", pos)
	}

	perf, err := r.Performance(ctx)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if len(perf) != 2 || !perf[1].Value.Equal(decimal.RequireFromString("2010.51")) {
		t.Errorf("Performance() = %+v", perf)
	}

	inds, err := r.Indicators(ctx)
	if err != nil {
		t.Fatalf("Indicators: %v", err)
	}
	if len(inds) != 1 || inds[0].Value != 100.25 {
		t.Errorf("Indicators() = %+v", inds)
	}

	// Opening again starts from scratch.
	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r2, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r2.Close()
	if orders, err := r2.Orders(ctx); err != nil || len(orders) != 0 {
		t.Errorf("Orders after recreate = %v, %v, want none", orders, err)
	}
}

func TestSQLiteLedger(t *testing.T) {
	testLedger(t, filepath.Join(t.TempDir(), "out", "simulation.db"))
}

func TestCSVLedgerFile(t *testing.T) {
	dir := t.TempDir()
	testLedger(t, filepath.Join(dir, "simulation.csv"))
	if _, err := os.Stat(filepath.Join(dir, "simulation_orders.csv")); err != nil {
		t.Errorf("orders table not next to simulation.csv: %v", err)
	}
}

func TestCSVLedgerDir(t *testing.T) {
	dir := t.TempDir()
	testLedger(t, dir)
	for _, name := range []string{ordersFile, positionFile, performanceFile, indicatorsFile, runFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestOpenReaderMissing(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Error("OpenReader on a missing database should fail")
	}
}

func TestSQLiteFlushIsDurable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sim.db")
	l, err := NewSQLiteLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.RecordPerformance(ctx, domain.PerformanceRow{Date: domain.Date(2024, 1, 2), Value: decimal.NewFromInt(5)}); err != nil {
		t.Fatal(err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	// A reader sees flushed rows while the writer is still open.
	r, err := NewSQLiteReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	perf, err := r.Performance(ctx)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if len(perf) != 1 {
		t.Errorf("got %d rows, want 1", len(perf))
	}
}
