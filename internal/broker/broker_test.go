package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
	"quantsim/internal/market/markettest"
)

var (
	monday   = domain.Date(2024, 3, 4)
	saturday = domain.Date(2024, 3, 9)
)

func newBroker(t *testing.T) *SimulatorBroker {
	t.Helper()
	p := markettest.NewProvider()
	// AAPL closes at 100 and opens at 99 every day; MSFT closes at 50.
	p.Weekdays("AAPL", domain.Date(2024, 1, 2), domain.Date(2024, 3, 29), func(int, time.Time) float64 { return 100 })
	p.Weekdays("MSFT", domain.Date(2024, 1, 2), domain.Date(2024, 3, 29), func(int, time.Time) float64 { return 50 })
	m := markettest.NewMarket(t, p, domain.Date(2024, 3, 29))
	return NewSimulatorBroker(m, DefaultTradeCost)
}

func TestSimulatorBrokerName(t *testing.T) {
	b := newBroker(t)
	if got := b.Name(); got != "simulator" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "simulator")
	}
}

func TestBuyDollarsFloorsToShares(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	pf := domain.NewPortfolio(decimal.NewFromInt(10000))

	fill, err := b.Execute(ctx, monday, domain.NewOrder(domain.OrderSideBuy, "AAPL", domain.Dollars(1000), domain.PriceMarket), pf)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// $1000 / 99 open = 10.1 → 10 shares.
	if fill.Quantity != 10 || fill.Price != 99 {
		t.Errorf("fill = %v @ %v, want 10 @ 99", fill.Quantity, fill.Price)
	}
	if want := decimal.RequireFromString("9000.01"); !pf.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", pf.Cash, want)
	}
	if pos, _ := pf.Holding("AAPL"); pos.Amount != 10 || pos.Basis != 99 {
		t.Errorf("position = %+v, want 10 @ 99", pos)
	}

	// A second buy at the close blends the basis.
	fill, err = b.Execute(ctx, monday, domain.NewOrder(domain.OrderSideBuy, "AAPL", domain.Shares(10), domain.PriceMarketOnClose), pf)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fill.Price != 100 || fill.Basis != 99 {
		t.Errorf("fill price/basis = %v/%v, want 100/99 (pre-trade basis)", fill.Price, fill.Basis)
	}
	if pos, _ := pf.Holding("AAPL"); pos.Amount != 20 || pos.Basis != 99.5 {
		t.Errorf("position = %+v, want 20 @ 99.5", pos)
	}
}

func TestBuyThenSellCostsTwoFees(t *testing.T) {
	ctx := context.Background()
	b := newBroker(t)
	pf := domain.NewPortfolio(decimal.NewFromInt(5000))
	before := pf.Cash

	if _, err := b.Execute(ctx, monday, domain.NewOrder(domain.OrderSideBuy, "MSFT", domain.Shares(20), domain.PriceMarket), pf); err != nil {
		t.Fatalf("buy: %v", err)
	}
	fill, err := b.Execute(ctx, monday, domain.NewOrder(domain.OrderSideSell, "MSFT", domain.Shares(20), domain.PriceMarket), pf)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if fill.Basis != 49 {
		t.Errorf("sell basis = %v, want 49", fill.Basis)
	}
	if pos, _ := pf.Holding("MSFT"); pos.Amount != 0 {
		t.Errorf("amount = %v, want 0", pos.Amount)
	}
	if got, want := before.Sub(pf.Cash), DefaultTradeCost.Mul(decimal.NewFromInt(2)); !got.Equal(want) {
		t.Errorf("cash lost = %s, want %s", got, want)
	}
}

func TestSellAll(t *testing.T) {
	b := newBroker(t)
	pf := domain.NewPortfolio(decimal.Zero)
	pf.Position("AAPL").Add(7, 80)

	fill, err := b.Execute(context.Background(), monday, domain.NewOrder(domain.OrderSideSell, "AAPL", domain.All(), domain.PriceMarketOnClose), pf)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fill.Quantity != 7 || fill.Basis != 80 {
		t.Errorf("fill = %+v, want 7 shares, basis 80", fill)
	}
	if want := decimal.RequireFromString("690.01"); !pf.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", pf.Cash, want)
	}
}

func TestRejectedOrders(t *testing.T) {
	b := newBroker(t)
	held := func() *domain.Portfolio {
		pf := domain.NewPortfolio(decimal.NewFromInt(100))
		pf.Position("AAPL").Add(5, 90)
		pf.Position("MSFT")
		return pf
	}

	tests := []struct {
		name  string
		date  time.Time
		order domain.Order
		want  error
	}{
		{"sell more than held", monday, domain.NewOrder(domain.OrderSideSell, "AAPL", domain.Shares(6), domain.PriceMarket), ErrInvalidQuantity},
		{"sell fraction", monday, domain.NewOrder(domain.OrderSideSell, "AAPL", domain.Shares(0.5), domain.PriceMarket), ErrInvalidQuantity},
		{"sell all of empty", monday, domain.NewOrder(domain.OrderSideSell, "MSFT", domain.All(), domain.PriceMarket), ErrInvalidQuantity},
		{"sell unheld", monday, domain.NewOrder(domain.OrderSideSell, "IBM", domain.Shares(1), domain.PriceMarket), ErrNotHeld},
		{"buy under one share", monday, domain.NewOrder(domain.OrderSideBuy, "AAPL", domain.Dollars(50), domain.PriceMarket), ErrInvalidQuantity},
		{"buy all", monday, domain.NewOrder(domain.OrderSideBuy, "AAPL", domain.All(), domain.PriceMarket), ErrInvalidQuantity},
		{"limit", monday, domain.NewOrder(domain.OrderSideBuy, "AAPL", domain.Shares(1), domain.PriceLimit), ErrUnsupportedPriceType},
		{"short", monday, domain.NewOrder(domain.OrderSideShort, "AAPL", domain.Shares(1), domain.PriceMarket), ErrUnsupportedSide},
		{"weekend", saturday, domain.NewOrder(domain.OrderSideSell, "AAPL", domain.Shares(1), domain.PriceMarket), ErrNoQuote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := held()
			fill, err := b.Execute(context.Background(), tt.date, tt.order, pf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Execute() = %v, %v, want %v", fill, err, tt.want)
			}
			if !pf.Cash.Equal(decimal.NewFromInt(100)) {
				t.Errorf("rejected order changed cash to %s", pf.Cash)
			}
			if pos, _ := pf.Holding("AAPL"); pos.Amount != 5 {
				t.Errorf("rejected order changed AAPL amount to %v", pos.Amount)
			}
		})
	}
}
