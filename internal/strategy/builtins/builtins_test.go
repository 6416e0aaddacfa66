package builtins

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/market/markettest"
	"quantsim/internal/strategy"
)

var today = domain.Date(2024, 6, 28)

func newMarket(t *testing.T, prices map[string]func(i int, d time.Time) float64) *market.Market {
	t.Helper()
	p := markettest.NewProvider()
	for sym, f := range prices {
		p.Weekdays(sym, domain.Date(2023, 1, 2), today, f)
	}
	return markettest.NewMarket(t, p, today)
}

func flat(v float64) func(int, time.Time) float64 {
	return func(int, time.Time) float64 { return v }
}

func portfolio(cash int64, holdings map[string]float64) domain.Portfolio {
	pf := domain.NewPortfolio(decimal.NewFromInt(cash))
	for sym, amt := range holdings {
		pf.Position(sym).Add(amt, 10)
	}
	return *pf
}

func TestRegister(t *testing.T) {
	names := NewRegistry().List()
	want := []string{"hold", "sell", "sma-cross", "trending"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestHoldNeverTrades(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t, map[string]func(int, time.Time) float64{"AAPL": flat(100)})
	s, err := NewHold(ctx, strategy.Params{Market: m})
	if err != nil {
		t.Fatal(err)
	}
	orders, err := s.Evaluate(ctx, domain.Date(2024, 6, 3), portfolio(1000, map[string]float64{"AAPL": 10}), m)
	if err != nil || len(orders) != 0 {
		t.Errorf("Evaluate() = %v, %v, want no orders", orders, err)
	}
}

func TestSellLiquidatesEveryHolding(t *testing.T) {
	ctx := context.Background()
	s, _ := NewSell(ctx, strategy.Params{})
	pf := portfolio(0, map[string]float64{"MSFT": 5, "AAPL": 10, "IBM": 0})

	orders, err := s.Evaluate(ctx, domain.Date(2024, 6, 3), pf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2 (IBM is empty): %v", len(orders), orders)
	}
	want := []string{"SELL 10 AAPL at MARKET", "SELL 5 MSFT at MARKET"}
	for i, o := range orders {
		if o.String() != want[i] {
			t.Errorf("order %d = %q, want %q", i, o.String(), want[i])
		}
	}
}

func TestTrendingParams(t *testing.T) {
	p, err := parseTrendingParams(strategy.Args{"long": 50})
	if err != nil {
		t.Fatal(err)
	}
	if p.Short != 15 || p.Long != 50 || p.RSI != 14 || p.Backfill != 50 {
		t.Errorf("params = %+v, want short 15 long 50 rsi 14 backfill 50", p)
	}
	if _, err := parseTrendingParams(strategy.Args{"short": 0}); err == nil {
		t.Error("short=0 should be rejected")
	}
}

func TestTrendingFollowsTrend(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t, map[string]func(int, time.Time) float64{
		"UP":   func(i int, _ time.Time) float64 { return 10 + float64(i)*0.1 },
		"DOWN": func(i int, _ time.Time) float64 { return 100 - float64(i)*0.1 },
	})
	start := domain.Date(2024, 6, 3)
	initial := portfolio(10000, map[string]float64{"UP": 0, "DOWN": 20})

	s, err := NewTrending(ctx, strategy.Params{
		Start:   start,
		End:     today,
		Initial: initial,
		Market:  m,
		Args:    strategy.Args{"short": 5, "long": 20, "backfill": 60},
	})
	if err != nil {
		t.Fatalf("NewTrending: %v", err)
	}

	orders, err := s.Evaluate(ctx, start, initial, m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want SELL DOWN + BUY UP: %v", len(orders), orders)
	}
	if o := orders[0]; o.Side != domain.OrderSideSell || o.Symbol != "DOWN" || o.Quantity.Kind != domain.QuantityAll {
		t.Errorf("orders[0] = %v, want SELL ALL DOWN", o)
	}
	if o := orders[1]; o.Side != domain.OrderSideBuy || o.Symbol != "UP" || o.Quantity != domain.Dollars(10000) {
		t.Errorf("orders[1] = %v, want BUY $10000 UP", o)
	}
}

func TestTrendingSkipsBuyBelowOneShare(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t, map[string]func(int, time.Time) float64{
		"UP": func(i int, _ time.Time) float64 { return 500 + float64(i) },
	})
	start := domain.Date(2024, 6, 3)
	initial := portfolio(100, map[string]float64{"UP": 0})
	s, err := NewTrending(ctx, strategy.Params{
		Start: start, End: today, Initial: initial, Market: m,
		Args: strategy.Args{"short": 3, "long": 10, "backfill": 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	orders, err := s.Evaluate(ctx, start, initial, m)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Errorf("orders = %v, want none: $100 buys no share at ~$870", orders)
	}
}

func TestSMACrossSignals(t *testing.T) {
	ctx := context.Background()
	// Falling until mid-May 2024, rising after.
	turn := domain.Date(2024, 5, 15)
	m := newMarket(t, map[string]func(int, time.Time) float64{
		"XYZ": func(i int, d time.Time) float64 {
			if d.Before(turn) {
				return 200 - float64(i)*0.2
			}
			return 100 + float64(d.Sub(turn)/(24*time.Hour))*2
		},
	})
	initial := portfolio(5000, map[string]float64{"XYZ": 0})

	if _, err := NewSMACross(5, 5, m, nil); err == nil {
		t.Error("NewSMACross(5, 5) should be rejected")
	}

	start := domain.Date(2024, 5, 1)
	s, err := NewSMACrossFactory(ctx, strategy.Params{
		Start: start, End: today, Initial: initial, Market: m,
		Args: strategy.Args{"short": 3, "long": 10},
	})
	if err != nil {
		t.Fatalf("NewSMACrossFactory: %v", err)
	}

	var buys int
	var first time.Time
	for d := start; !d.After(domain.Date(2024, 6, 14)); d = d.AddDate(0, 0, 1) {
		orders, err := s.Evaluate(ctx, d, initial, m)
		if err != nil {
			t.Fatalf("Evaluate(%s): %v", d.Format(domain.DateLayout), err)
		}
		for _, o := range orders {
			if o.Side == domain.OrderSideBuy {
				buys++
				if first.IsZero() {
					first = d
				}
			}
		}
	}
	if buys != 1 {
		t.Fatalf("got %d buy signals, want exactly 1 golden cross", buys)
	}
	if first.Before(turn) {
		t.Errorf("buy on %s, before the trend turned", first.Format(domain.DateLayout))
	}
}
