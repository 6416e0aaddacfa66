package builtins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/indicator"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It buys
// when the short-period SMA crosses above the long-period SMA, and sells the
// whole position when it crosses below.
//
// Signals are suppressed until the long SMA has seen a full window, so the
// zero-padded warm-up of SMA never produces a crossover.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	indicators *strategy.IndicatorSet
	// seen counts the closes fed to each symbol's SMAs.
	seen map[string]int
	// above records whether short > long on the previous evaluation.
	above map[string]bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int, m *market.Market, rec indicator.Recorder) (*SMACross, error) {
	if short < 1 || long <= short {
		return nil, fmt.Errorf("sma-cross: need 1 <= short < long, got %d/%d", short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		indicators:  strategy.NewIndicatorSet(m, rec),
		seen:        make(map[string]int),
		above:       make(map[string]bool),
	}, nil
}

// NewSMACrossFactory is the Factory for "sma-cross": params short (20) and
// long (50). The SMAs are warmed over 2*long calendar days before the start.
func NewSMACrossFactory(ctx context.Context, p strategy.Params) (strategy.Strategy, error) {
	short, err := p.Args.Int("short", 20)
	if err != nil {
		return nil, err
	}
	long, err := p.Args.Int("long", 50)
	if err != nil {
		return nil, err
	}
	s, err := NewSMACross(short, long, p.Market, p.Recorder)
	if err != nil {
		return nil, err
	}
	for _, sym := range p.Initial.Symbols() {
		s.Watch(sym)
	}
	if len(s.indicators.Symbols()) == 0 {
		return nil, errors.New("sma-cross: initial portfolio holds no symbols")
	}

	start := domain.Day(p.Start)
	if err := s.warm(ctx, p.Market, domain.AddDays(start, -2*long), start); err != nil {
		return nil, fmt.Errorf("sma-cross backfill: %w", err)
	}
	return s, nil
}

// Watch adds SMAs for symbol.
func (s *SMACross) Watch(symbol string) {
	s.indicators.Add(symbol, "short", indicator.NewSMA(s.shortPeriod))
	s.indicators.Add(symbol, "long", indicator.NewSMA(s.longPeriod))
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

func (s *SMACross) warm(ctx context.Context, m *market.Market, from, to time.Time) error {
	for _, sym := range s.indicators.Symbols() {
		rows, err := m.Ticker(sym).History(ctx, from, domain.AddDays(to, -1))
		if err != nil {
			return err
		}
		for _, q := range rows {
			if q.Valid {
				s.seen[sym]++
			}
		}
	}
	if err := s.indicators.Update(ctx, from, to); err != nil {
		return err
	}
	for _, sym := range s.indicators.Symbols() {
		short, long := s.values(sym)
		s.above[sym] = short > long
	}
	return nil
}

// Evaluate feeds date's close and trades the crossovers. Cash is split
// evenly between the symbols crossing upward.
func (s *SMACross) Evaluate(ctx context.Context, date time.Time, pf domain.Portfolio, m *market.Market) ([]domain.Order, error) {
	if err := s.indicators.UpdateDay(ctx, date); err != nil {
		return nil, err
	}

	var ups []string
	var orders []domain.Order
	for _, sym := range s.indicators.Symbols() {
		q, err := m.Ticker(sym).At(ctx, date)
		if err != nil {
			return nil, err
		}
		if !q.Valid {
			continue
		}
		s.seen[sym]++
		short, long := s.values(sym)
		above := short > long
		wasAbove := s.above[sym]
		s.above[sym] = above
		if s.seen[sym] < s.longPeriod {
			continue
		}
		switch {
		case above && !wasAbove:
			ups = append(ups, sym)
		case !above && wasAbove:
			if pos, ok := pf.Holding(sym); ok && pos.Amount > 0 {
				orders = append(orders, domain.NewOrder(domain.OrderSideSell, sym, domain.All(), domain.PriceMarket))
			}
		}
	}
	if len(ups) == 0 {
		return orders, nil
	}
	share := pf.Cash.InexactFloat64() / float64(len(ups))
	for _, sym := range ups {
		orders = append(orders, domain.NewOrder(domain.OrderSideBuy, sym, domain.Dollars(share), domain.PriceMarket))
	}
	return orders, nil
}

func (s *SMACross) values(symbol string) (short, long float64) {
	if ind, ok := s.indicators.Get(symbol, "short"); ok {
		short, _ = ind.Value()
	}
	if ind, ok := s.indicators.Get(symbol, "long"); ok {
		long, _ = ind.Value()
	}
	return short, long
}

// Finalize returns no orders.
func (s *SMACross) Finalize(_ context.Context) ([]domain.Order, error) {
	return nil, nil
}
