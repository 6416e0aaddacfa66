package builtins

import (
	"context"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
)

var _ strategy.Strategy = (*Sell)(nil)

// Sell liquidates: every evaluation issues a market SELL of the full amount
// of each holding.
type Sell struct{}

// NewSell is the Factory for "sell".
func NewSell(_ context.Context, _ strategy.Params) (strategy.Strategy, error) {
	return &Sell{}, nil
}

// Name returns "sell".
func (s *Sell) Name() string { return "sell" }

// Evaluate returns one SELL per non-empty position, in symbol order.
func (s *Sell) Evaluate(_ context.Context, _ time.Time, pf domain.Portfolio, _ *market.Market) ([]domain.Order, error) {
	var orders []domain.Order
	for _, sym := range pf.Symbols() {
		pos := pf.Positions[sym]
		if pos.Amount <= 0 {
			continue
		}
		orders = append(orders, domain.NewOrder(domain.OrderSideSell, sym, domain.Shares(pos.Amount), domain.PriceMarket))
	}
	return orders, nil
}

// Finalize returns no orders.
func (s *Sell) Finalize(_ context.Context) ([]domain.Order, error) { return nil, nil }
