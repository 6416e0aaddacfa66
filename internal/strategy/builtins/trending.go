package builtins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/indicator"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
)

var _ strategy.Strategy = (*Trending)(nil)

// Indicator names registered by Trending for each symbol.
const (
	indValue = "value"
	indShort = "short"
	indLong  = "long"
	indRSI   = "rsi"
)

// TrendingParams configures Trending. Periods are in trading days; Backfill
// is in calendar days before the start date.
type TrendingParams struct {
	Short    int
	Long     int
	RSI      int
	Backfill int
}

// DefaultTrendingParams returns short=15, long=200, rsi=14, backfill=long.
func DefaultTrendingParams() TrendingParams {
	return TrendingParams{Short: 15, Long: 200, RSI: 14, Backfill: 200}
}

// Trending follows the trend of the symbols in the initial portfolio. When
// the short EMA of a symbol's adjusted close is above the long EMA the
// symbol is bought with an equal share of the available cash; when it is
// below, the whole position is sold.
type Trending struct {
	params     TrendingParams
	indicators *strategy.IndicatorSet
	log        *slog.Logger
}

// NewTrending is the Factory for "trending". It warms the indicators over
// the Backfill window ending the day before p.Start.
func NewTrending(ctx context.Context, p strategy.Params) (strategy.Strategy, error) {
	params, err := parseTrendingParams(p.Args)
	if err != nil {
		return nil, err
	}

	t := &Trending{
		params:     params,
		indicators: strategy.NewIndicatorSet(p.Market, p.Recorder),
		log:        p.Logger,
	}
	if t.log == nil {
		t.log = slog.Default().With("strategy", "trending")
	}

	for _, sym := range p.Initial.Symbols() {
		t.indicators.Add(sym, indValue, indicator.NewValue())
		t.indicators.Add(sym, indShort, indicator.NewEMA(params.Short))
		t.indicators.Add(sym, indLong, indicator.NewEMA(params.Long))
		t.indicators.Add(sym, indRSI, indicator.NewRSI(params.RSI))
	}

	if params.Backfill > 0 {
		start := domain.Day(p.Start)
		from := domain.AddDays(start, -params.Backfill)
		t.log.Info("backfilling indicators",
			"symbols", len(t.indicators.Symbols()),
			"from", from.Format(domain.DateLayout),
			"to", start.Format(domain.DateLayout),
		)
		if err := t.indicators.Update(ctx, from, start); err != nil {
			return nil, fmt.Errorf("trending backfill: %w", err)
		}
	}
	return t, nil
}

func parseTrendingParams(args strategy.Args) (TrendingParams, error) {
	p := DefaultTrendingParams()
	var err error
	if p.Short, err = args.Int("short", p.Short); err != nil {
		return p, err
	}
	if p.Long, err = args.Int("long", p.Long); err != nil {
		return p, err
	}
	if p.RSI, err = args.Int("rsi", p.RSI); err != nil {
		return p, err
	}
	if p.Backfill, err = args.Int("backfill", p.Long); err != nil {
		return p, err
	}
	if p.Short < 1 || p.Long < 1 || p.RSI < 1 {
		return p, errors.New("trending: periods must be at least 1")
	}
	if p.Backfill < 0 {
		return p, errors.New("trending: backfill must not be negative")
	}
	return p, nil
}

// Name returns "trending".
func (t *Trending) Name() string { return "trending" }

// Params returns the effective parameters.
func (t *Trending) Params() TrendingParams { return t.params }

// Indicators exposes the per-symbol indicators.
func (t *Trending) Indicators() *strategy.IndicatorSet { return t.indicators }

// Evaluate feeds date's close to the indicators and trades on the EMA
// crossover state. Sells come before buys.
func (t *Trending) Evaluate(ctx context.Context, date time.Time, pf domain.Portfolio, m *market.Market) ([]domain.Order, error) {
	if err := t.indicators.UpdateDay(ctx, date); err != nil {
		return nil, err
	}

	var buys, sells []string
	for _, sym := range t.indicators.Symbols() {
		short, ok1 := t.value(sym, indShort)
		long, ok2 := t.value(sym, indLong)
		if !ok1 || !ok2 {
			continue
		}
		switch {
		case short < long:
			sells = append(sells, sym)
		case short > long:
			buys = append(buys, sym)
		}
	}

	var orders []domain.Order
	for _, sym := range sells {
		if pos, ok := pf.Holding(sym); ok && pos.Amount > 0 {
			orders = append(orders, domain.NewOrder(domain.OrderSideSell, sym, domain.All(), domain.PriceMarket))
		}
	}

	if len(buys) == 0 {
		return orders, nil
	}
	cashamt := pf.Cash.InexactFloat64() / float64(len(buys))
	for _, sym := range buys {
		q, err := m.Ticker(sym).At(ctx, date)
		if err != nil {
			return nil, err
		}
		if !q.Valid || q.AdjClose <= 0 {
			continue
		}
		if int(cashamt/q.AdjClose) >= 1 {
			orders = append(orders, domain.NewOrder(domain.OrderSideBuy, sym, domain.Dollars(cashamt), domain.PriceMarket))
		}
	}
	return orders, nil
}

func (t *Trending) value(symbol, name string) (float64, bool) {
	ind, ok := t.indicators.Get(symbol, name)
	if !ok {
		return 0, false
	}
	return ind.Value()
}

// Finalize returns no orders.
func (t *Trending) Finalize(_ context.Context) ([]domain.Order, error) { return nil, nil }
