package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quantsim/internal/domain"
)

// Market is the handle strategies and the engine use to reach quote data.
// It is passed explicitly; there is no package-level instance.
type Market struct {
	quotes *QuoteStore
	log    *slog.Logger
}

// New wraps qs in a Market.
func New(qs *QuoteStore) *Market {
	return &Market{
		quotes: qs,
		log:    slog.Default().With("component", "market"),
	}
}

// Ticker returns a view for symbol.
func (m *Market) Ticker(symbol string) *Ticker {
	return &Ticker{Symbol: domain.NormalizeSymbol(symbol), qs: m.quotes}
}

// Quotes exposes the underlying QuoteStore.
func (m *Market) Quotes() *QuoteStore { return m.quotes }

// Today returns the current calendar day according to the store's clock.
func (m *Market) Today() time.Time { return m.quotes.Today() }

// Precache warms [start, end] for every symbol using up to workers
// goroutines. Fetch failures are logged by the store; cache write failures
// are collected and returned together.
func (m *Market) Precache(ctx context.Context, symbols []string, start, end time.Time, workers int) error {
	if len(symbols) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	symCh := make(chan string, len(symbols))
	for _, s := range symbols {
		symCh <- s
	}
	close(symCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		done     atomic.Int64
		runStart = time.Now()
	)

	workers = min(workers, len(symbols))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}
				if _, err := m.Ticker(sym).History(ctx, start, end); err != nil {
					m.log.Error("precache failed", "symbol", sym, "err", err)
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					continue
				}
				done.Add(1)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.log.Info("precache complete",
		"symbols", len(symbols),
		"ok", done.Load(),
		"from", start.Format(domain.DateLayout),
		"to", end.Format(domain.DateLayout),
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return errors.Join(errs...)
}
