package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Position is a holding in one symbol valued with the single-category
// average-cost method: every BUY blends into one basis, SELLs leave it alone.
type Position struct {
	Amount float64
	Basis  float64
}

// Add records a purchase of qty shares at price and recomputes the basis.
func (p *Position) Add(qty, price float64) {
	v := p.Amount*p.Basis + qty*price
	p.Amount += qty
	if p.Amount == 0 {
		p.Basis = 0
		return
	}
	p.Basis = v / p.Amount
}

// Remove records a sale of qty shares. The basis is unchanged.
func (p *Position) Remove(qty float64) {
	p.Amount -= qty
}

// Portfolio is the cash balance plus a position per symbol.
type Portfolio struct {
	Cash      decimal.Decimal
	Positions map[string]*Position
}

// NewPortfolio returns an empty portfolio holding cash.
func NewPortfolio(cash decimal.Decimal) *Portfolio {
	return &Portfolio{Cash: cash, Positions: make(map[string]*Position)}
}

// Position returns the position for symbol, creating an empty one if needed.
func (p *Portfolio) Position(symbol string) *Position {
	symbol = NormalizeSymbol(symbol)
	if p.Positions == nil {
		p.Positions = make(map[string]*Position)
	}
	pos, ok := p.Positions[symbol]
	if !ok {
		pos = &Position{}
		p.Positions[symbol] = pos
	}
	return pos
}

// Holding returns the position for symbol and whether one exists.
func (p *Portfolio) Holding(symbol string) (Position, bool) {
	pos, ok := p.Positions[NormalizeSymbol(symbol)]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Symbols returns the non-cash symbols in sorted order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to hand to code that must not mutate p.
func (p *Portfolio) Clone() Portfolio {
	c := Portfolio{Cash: p.Cash, Positions: make(map[string]*Position, len(p.Positions))}
	for sym, pos := range p.Positions {
		cp := *pos
		c.Positions[sym] = &cp
	}
	return c
}

// Value marks the portfolio to market. Symbols missing from prices
// contribute nothing.
func (p *Portfolio) Value(prices map[string]float64) decimal.Decimal {
	total := p.Cash
	for sym, pos := range p.Positions {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		total = total.Add(decimal.NewFromFloat(pos.Amount).Mul(decimal.NewFromFloat(price)))
	}
	return total
}

// Allocation describes how to seed a portfolio: symbol → amount, where the
// amount is a share count ("100") or a cash amount ("$5000"). The Cash key
// holds the starting cash.
type Allocation map[string]string

// Fill is the result of executing one order.
type Fill struct {
	Date     time.Time
	Order    Order
	Quantity float64
	Price    float64
	// Basis is the position's basis before the trade was applied.
	Basis float64
	Fee   decimal.Decimal
}
