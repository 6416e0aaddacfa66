package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/indicator"
	"quantsim/internal/market"
)

// IndicatorSet holds named indicators per symbol and feeds them adjusted
// closes from the market. Indicators of a symbol are updated in the order
// they were added.
type IndicatorSet struct {
	market   *market.Market
	recorder indicator.Recorder

	bySymbol map[string]map[string]indicator.Indicator
	order    map[string][]string
}

// NewIndicatorSet creates an empty set reading quotes from m. rec may be nil.
func NewIndicatorSet(m *market.Market, rec indicator.Recorder) *IndicatorSet {
	return &IndicatorSet{
		market:   m,
		recorder: rec,
		bySymbol: make(map[string]map[string]indicator.Indicator),
		order:    make(map[string][]string),
	}
}

// Add registers ind for symbol under name, replacing any previous one.
func (s *IndicatorSet) Add(symbol, name string, ind indicator.Indicator) {
	symbol = domain.NormalizeSymbol(symbol)
	m, ok := s.bySymbol[symbol]
	if !ok {
		m = make(map[string]indicator.Indicator)
		s.bySymbol[symbol] = m
	}
	if _, exists := m[name]; !exists {
		s.order[symbol] = append(s.order[symbol], name)
	}
	m[name] = ind
}

// Remove drops the named indicator for symbol.
func (s *IndicatorSet) Remove(symbol, name string) {
	symbol = domain.NormalizeSymbol(symbol)
	m, ok := s.bySymbol[symbol]
	if !ok {
		return
	}
	delete(m, name)
	names := s.order[symbol]
	for i, n := range names {
		if n == name {
			s.order[symbol] = append(names[:i], names[i+1:]...)
			break
		}
	}
	if len(m) == 0 {
		delete(s.bySymbol, symbol)
		delete(s.order, symbol)
	}
}

// Get returns the named indicator for symbol.
func (s *IndicatorSet) Get(symbol, name string) (indicator.Indicator, bool) {
	ind, ok := s.bySymbol[domain.NormalizeSymbol(symbol)][name]
	return ind, ok
}

// Symbols returns the symbols with at least one indicator, sorted.
func (s *IndicatorSet) Symbols() []string {
	out := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Update feeds every day in [start, end) that has a quote to the indicators.
// The range is loaded with one History call per symbol.
func (s *IndicatorSet) Update(ctx context.Context, start, end time.Time) error {
	start, end = domain.Day(start), domain.Day(end)
	if !start.Before(end) {
		return nil
	}
	last := domain.AddDays(end, -1)
	for _, sym := range s.Symbols() {
		rows, err := s.market.Ticker(sym).History(ctx, start, last)
		if err != nil {
			return fmt.Errorf("loading %s for indicators: %w", sym, err)
		}
		for _, q := range rows {
			if err := s.feed(ctx, sym, q); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateDay feeds date's quote, if there is one, to the indicators.
func (s *IndicatorSet) UpdateDay(ctx context.Context, date time.Time) error {
	for _, sym := range s.Symbols() {
		q, err := s.market.Ticker(sym).At(ctx, date)
		if err != nil {
			return fmt.Errorf("loading %s for indicators: %w", sym, err)
		}
		if err := s.feed(ctx, sym, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *IndicatorSet) feed(ctx context.Context, symbol string, q domain.Quote) error {
	if !q.Valid {
		return nil
	}
	for _, name := range s.order[symbol] {
		v := s.bySymbol[symbol][name].Update(q.AdjClose, q.Date)
		if s.recorder == nil {
			continue
		}
		row := domain.IndicatorRow{Date: q.Date, Symbol: symbol, Name: name, Value: v}
		if err := s.recorder.RecordIndicator(ctx, row); err != nil {
			return fmt.Errorf("recording indicator %s/%s: %w", symbol, name, err)
		}
	}
	return nil
}
