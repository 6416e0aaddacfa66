package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestQuoteAdjustedPrices(t *testing.T) {
	q := Quote{
		Symbol: "AAPL", Date: Date(2024, 1, 2),
		Open: 100, High: 110, Low: 90, Close: 105, AdjClose: 52.5,
		Volume: 1000, Valid: true,
	}

	open, ok := q.AdjOpen()
	if !ok || open != 50 {
		t.Errorf("AdjOpen() = %v, %v, want 50, true", open, ok)
	}
	high, ok := q.AdjHigh()
	if !ok || high != 55 {
		t.Errorf("AdjHigh() = %v, %v, want 55, true", high, ok)
	}
	low, ok := q.AdjLow()
	if !ok || low != 45 {
		t.Errorf("AdjLow() = %v, %v, want 45, true", low, ok)
	}

	// Placeholders have no adjusted prices.
	p := Placeholder("aapl", Date(2024, 1, 6))
	if p.Symbol != "AAPL" {
		t.Errorf("Placeholder symbol = %q, want AAPL", p.Symbol)
	}
	if _, ok := p.AdjOpen(); ok {
		t.Error("AdjOpen on placeholder should not be ok")
	}
}

func TestDayHelpers(t *testing.T) {
	loc := time.FixedZone("ET", -5*3600)
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, loc)
	if got, want := Day(ts), Date(2024, 3, 1); !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", ts, got, want)
	}
	if got := DaysBetween(Date(2024, 2, 27), Date(2024, 3, 1)); got != 3 {
		t.Errorf("DaysBetween = %d, want 3 (leap year)", got)
	}
	if got := AddDays(Date(2024, 12, 31), 1); !got.Equal(Date(2025, 1, 1)) {
		t.Errorf("AddDays = %v, want 2025-01-01", got)
	}
	if _, err := ParseDay("2024-13-01"); err == nil {
		t.Error("ParseDay should reject month 13")
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
		str  string
	}{
		{"100", Shares(100), "100"},
		{"$5000", Dollars(5000), "$5000.00"},
		{" all ", All(), "ALL"},
		{"2.5", Shares(2.5), "2.5"},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if err != nil {
			t.Fatalf("ParseQuantity(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseQuantity(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.str {
			t.Errorf("Quantity.String() = %q, want %q", got.String(), tt.str)
		}
	}

	if _, err := ParseQuantity("$abc"); err == nil {
		t.Error("ParseQuantity($abc) should fail")
	}
}

func TestOrderString(t *testing.T) {
	o := NewOrder(OrderSideBuy, "aapl", Dollars(5000), PriceMarket)
	if got, want := o.String(), "BUY $5000.00 AAPL at MARKET"; got != want {
		t.Errorf("Order.String() = %q, want %q", got, want)
	}
	o = Order{Side: OrderSideSell, Symbol: "MSFT", Quantity: All(), PriceType: PriceStopLimit, Limit: 10, Stop: 9}
	if got, want := o.String(), "SELL ALL MSFT at STOP_LIMIT 10.00 when 9.00"; got != want {
		t.Errorf("Order.String() = %q, want %q", got, want)
	}
}

func TestPositionAverageCost(t *testing.T) {
	var p Position
	p.Add(10, 100)
	p.Add(10, 200)
	if p.Amount != 20 || p.Basis != 150 {
		t.Fatalf("after two buys got amount=%v basis=%v, want 20/150", p.Amount, p.Basis)
	}

	// Sells reduce the amount and leave the basis untouched.
	p.Remove(5)
	if p.Amount != 15 || p.Basis != 150 {
		t.Errorf("after sell got amount=%v basis=%v, want 15/150", p.Amount, p.Basis)
	}

	// Realised P&L on a sale is (price - basis) * qty.
	pnl := (180 - p.Basis) * 5
	if math.Abs(pnl-150) > 1e-9 {
		t.Errorf("pnl = %v, want 150", pnl)
	}
}

func TestPortfolioCloneAndValue(t *testing.T) {
	pf := NewPortfolio(decimal.NewFromInt(1000))
	pf.Position("aapl").Add(10, 50)
	pf.Position("MSFT").Add(2, 100)

	c := pf.Clone()
	c.Positions["AAPL"].Amount = 0
	c.Cash = decimal.Zero
	if pf.Positions["AAPL"].Amount != 10 {
		t.Error("mutating a clone changed the original position")
	}
	if !pf.Cash.Equal(decimal.NewFromInt(1000)) {
		t.Error("mutating a clone changed the original cash")
	}

	got := pf.Value(map[string]float64{"AAPL": 60})
	if want := decimal.NewFromInt(1600); !got.Equal(want) {
		t.Errorf("Value() = %s, want %s (MSFT has no price)", got, want)
	}

	syms := pf.Symbols()
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", syms)
	}
}
