// Package markettest provides an in-memory quote provider and a ready-made
// Market for tests.
package markettest

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/provider"
	"quantsim/internal/store"
)

var _ provider.Provider = (*Provider)(nil)

// Call records one History request.
type Call struct {
	Symbol   string
	From, To time.Time
}

// Provider serves quotes from memory and records every History call.
type Provider struct {
	mu     sync.Mutex
	quotes map[string]map[time.Time]domain.Quote
	calls  []Call
	// Err, when set, is returned by History instead of data.
	Err error
}

// NewProvider returns an empty Provider.
func NewProvider() *Provider {
	return &Provider{quotes: make(map[string]map[time.Time]domain.Quote)}
}

// Name returns "fake".
func (p *Provider) Name() string { return "fake" }

// Add stores quotes, marking them Valid.
func (p *Provider) Add(quotes ...domain.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range quotes {
		q.Symbol = domain.NormalizeSymbol(q.Symbol)
		q.Date = domain.Day(q.Date)
		q.Valid = true
		if q.AdjClose == 0 {
			q.AdjClose = q.Close
		}
		m, ok := p.quotes[q.Symbol]
		if !ok {
			m = make(map[time.Time]domain.Quote)
			p.quotes[q.Symbol] = m
		}
		m[q.Date] = q
	}
}

// Weekdays adds a quote for every Monday-Friday in [from, to] except the
// given holidays. price receives the trading-day index (0-based) and the
// date and returns the close; open is set to the close minus one.
func (p *Provider) Weekdays(symbol string, from, to time.Time, price func(i int, d time.Time) float64, holidays ...time.Time) {
	skip := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		skip[domain.Day(h)] = true
	}
	i := 0
	for d := domain.Day(from); !d.After(domain.Day(to)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday || skip[d] {
			continue
		}
		c := price(i, d)
		p.Add(domain.Quote{Symbol: symbol, Date: d, Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000})
		i++
	}
}

// History returns the stored quotes for symbol within [from, to].
func (p *Provider) History(_ context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	symbol = domain.NormalizeSymbol(symbol)
	p.calls = append(p.calls, Call{Symbol: symbol, From: from, To: to})
	if p.Err != nil {
		return nil, p.Err
	}

	var out []domain.Quote
	for d, q := range p.quotes[symbol] {
		if d.Before(domain.Day(from)) || d.After(domain.Day(to)) {
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, provider.ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Latest returns the newest stored quote for symbol.
func (p *Provider) Latest(_ context.Context, symbol string) (domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var (
		best  domain.Quote
		found bool
	)
	for _, q := range p.quotes[domain.NormalizeSymbol(symbol)] {
		if !found || q.Date.After(best.Date) {
			best, found = q, true
		}
	}
	if !found {
		return domain.Quote{}, provider.ErrNoData
	}
	return best, nil
}

// Calls returns a copy of the recorded History calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// NewMarket builds a Market over a SQLite cache in a temp dir, backed by p,
// with the clock fixed at today.
func NewMarket(tb testing.TB, p *Provider, today time.Time) *market.Market {
	tb.Helper()
	cache, err := store.NewSQLiteStore(filepath.Join(tb.TempDir(), "stocks.db"))
	if err != nil {
		tb.Fatalf("NewSQLiteStore: %v", err)
	}
	tb.Cleanup(func() { cache.Close() })
	qs := market.NewQuoteStore(cache, p, market.WithClock(func() time.Time { return today }))
	return market.New(qs)
}
