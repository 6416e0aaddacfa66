// Package market serves historical daily quotes to the simulator. A
// QuoteStore reconciles a persistent cache with a remote provider; Ticker
// views and the Market handle sit on top of it.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/provider"
	"quantsim/internal/store"
)

// ErrOutOfRange is returned for dates after today, before MinDate, or for an
// inverted range.
var ErrOutOfRange = errors.New("date out of range")

// MinDate is the earliest date the store will serve.
var MinDate = domain.Date(1950, 1, 1)

// fetchWindow is the number of calendar days fetched when a short range
// misses the cache, so that neighbouring lookups hit.
const fetchWindow = 90

// Option configures a QuoteStore.
type Option func(*QuoteStore)

// WithClock overrides the clock used to decide what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *QuoteStore) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *QuoteStore) { s.log = l }
}

// QuoteStore is a read-through cache of daily quotes. Every calendar day of
// a filled range has a row in the cache, so a range is complete when the
// number of rows equals the number of days.
type QuoteStore struct {
	cache    store.QuoteCache
	provider provider.Provider
	now      func() time.Time
	log      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewQuoteStore creates a QuoteStore over cache, filling misses from p.
func NewQuoteStore(cache store.QuoteCache, p provider.Provider, opts ...Option) *QuoteStore {
	s := &QuoteStore{
		cache:    cache,
		provider: p,
		now:      time.Now,
		log:      slog.Default().With("component", "quotestore"),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current calendar day according to the store's clock.
func (s *QuoteStore) Today() time.Time {
	return domain.Day(s.now())
}

// symbolLock returns the mutex serializing fills for symbol.
func (s *QuoteStore) symbolLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	return l
}

func (s *QuoteStore) checkRange(from, to time.Time) error {
	switch {
	case to.After(s.Today()):
		return fmt.Errorf("%w: %s is after today", ErrOutOfRange, to.Format(domain.DateLayout))
	case from.Before(MinDate):
		return fmt.Errorf("%w: %s is before %s", ErrOutOfRange, from.Format(domain.DateLayout), MinDate.Format(domain.DateLayout))
	case from.After(to):
		return fmt.Errorf("%w: %s after %s", ErrOutOfRange, from.Format(domain.DateLayout), to.Format(domain.DateLayout))
	}
	return nil
}

// Get returns one row per calendar day in [priorDate, date], placeholders
// included. A zero priorDate requests the single day date. When the cache
// does not hold every day, the range (widened to fetchWindow days for short
// requests) is filled from the provider and read once more.
func (s *QuoteStore) Get(ctx context.Context, symbol string, date, priorDate time.Time) ([]domain.Quote, error) {
	symbol = domain.NormalizeSymbol(symbol)
	date = domain.Day(date)
	if priorDate.IsZero() {
		priorDate = date
	}
	priorDate = domain.Day(priorDate)
	if err := s.checkRange(priorDate, date); err != nil {
		return nil, err
	}

	want := domain.DaysBetween(priorDate, date) + 1
	rows, err := s.cache.GetQuotes(ctx, symbol, priorDate, date)
	if err != nil {
		return nil, fmt.Errorf("reading cache for %s: %w", symbol, err)
	}
	if len(rows) == want {
		return rows, nil
	}

	fillFrom := priorDate
	if want < fetchWindow {
		fillFrom = domain.AddDays(date, -(fetchWindow - 1))
		if fillFrom.After(priorDate) {
			fillFrom = priorDate
		}
	}
	if fillFrom.Before(MinDate) {
		fillFrom = MinDate
	}
	s.log.Debug("cache miss", "symbol", symbol,
		"from", priorDate.Format(domain.DateLayout), "to", date.Format(domain.DateLayout),
		"have", len(rows), "want", want)

	if err := s.Fill(ctx, symbol, fillFrom, date); err != nil {
		return nil, err
	}
	rows, err = s.cache.GetQuotes(ctx, symbol, priorDate, date)
	if err != nil {
		return nil, fmt.Errorf("reading cache for %s: %w", symbol, err)
	}
	return rows, nil
}

// Fill fetches [from, to] for symbol from the provider and stores it. Days
// without data become placeholders; days already cached keep their data
// unless the provider returns a newer row. A failed fetch is logged and
// leaves the cache untouched. Only cache write failures are returned.
func (s *QuoteStore) Fill(ctx context.Context, symbol string, from, to time.Time) error {
	symbol = domain.NormalizeSymbol(symbol)
	from, to = domain.Day(from), domain.Day(to)
	if err := s.checkRange(from, to); err != nil {
		return err
	}

	l := s.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	quotes, err := s.provider.History(ctx, symbol, from, to)
	switch {
	case errors.Is(err, provider.ErrNoData):
		s.log.Info("no data available", "symbol", symbol,
			"from", from.Format(domain.DateLayout), "to", to.Format(domain.DateLayout))
		quotes = nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("fetch failed, keeping cache as is", "symbol", symbol,
			"from", from.Format(domain.DateLayout), "to", to.Format(domain.DateLayout), "err", err)
		return nil
	}

	if err := s.cache.InitDays(ctx, symbol, from, to); err != nil {
		return fmt.Errorf("initialising %s: %w", symbol, err)
	}

	kept := quotes[:0]
	for _, q := range quotes {
		if !q.Valid || q.Date.Before(from) || q.Date.After(to) {
			continue
		}
		q.Symbol = symbol
		kept = append(kept, q)
	}
	if err := s.cache.PutQuotes(ctx, kept); err != nil {
		return fmt.Errorf("storing %s: %w", symbol, err)
	}
	s.log.Info("filled", "symbol", symbol, "provider", s.provider.Name(),
		"from", from.Format(domain.DateLayout), "to", to.Format(domain.DateLayout), "quotes", len(kept))
	return nil
}

// Purge clears everything cached for symbol.
func (s *QuoteStore) Purge(ctx context.Context, symbol string) error {
	symbol = domain.NormalizeSymbol(symbol)
	l := s.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	if err := s.cache.Purge(ctx, symbol); err != nil {
		return fmt.Errorf("purging %s: %w", symbol, err)
	}
	s.log.Info("purged", "symbol", symbol)
	return nil
}

// Refresh purges symbol and re-fetches [from, to].
func (s *QuoteStore) Refresh(ctx context.Context, symbol string, from, to time.Time) error {
	if err := s.Purge(ctx, symbol); err != nil {
		return err
	}
	return s.Fill(ctx, symbol, from, to)
}

// Update fetches from the day after the last cached quote up to end. With
// nothing cached it fills the fetchWindow days ending at end.
func (s *QuoteStore) Update(ctx context.Context, symbol string, end time.Time) error {
	end = domain.Day(end)
	last, ok, err := s.cache.LastDate(ctx, domain.NormalizeSymbol(symbol))
	if err != nil {
		return fmt.Errorf("last cached date for %s: %w", symbol, err)
	}
	from := domain.AddDays(end, -(fetchWindow - 1))
	if ok {
		from = domain.AddDays(last, 1)
	}
	if from.After(end) {
		return nil
	}
	return s.Fill(ctx, symbol, from, end)
}

// Latest asks the provider for the most recent quote. It is not cached.
func (s *QuoteStore) Latest(ctx context.Context, symbol string) (domain.Quote, error) {
	q, err := s.provider.Latest(ctx, domain.NormalizeSymbol(symbol))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("latest quote for %s: %w", symbol, err)
	}
	return q, nil
}

// Cached reads [from, to] from the cache without touching the provider.
func (s *QuoteStore) Cached(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error) {
	return s.cache.GetQuotes(ctx, domain.NormalizeSymbol(symbol), domain.Day(from), domain.Day(to))
}

// Symbols lists the cached symbols.
func (s *QuoteStore) Symbols(ctx context.Context) ([]string, error) {
	return s.cache.Symbols(ctx)
}
