// Package provider fetches daily quotes from remote market-data sources.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

// ErrNoData is returned when the source has nothing for the requested symbol
// or range. Callers treat it as "no new data", not as a failure.
var ErrNoData = errors.New("no data")

// retryBaseDelay is the first backoff interval between fetch attempts.
const retryBaseDelay = 500 * time.Millisecond

// Provider is a remote source of historical daily quotes.
type Provider interface {
	// Name returns the provider identifier.
	Name() string
	// History returns the quotes for symbol over the inclusive calendar range
	// [from, to], ordered by date. Only trading days are returned; every
	// quote is Valid.
	History(ctx context.Context, symbol string, from, to time.Time) ([]domain.Quote, error)
	// Latest returns the most recent quote available for symbol.
	Latest(ctx context.Context, symbol string) (domain.Quote, error)
}

// New builds the provider selected by cfg.Provider.Kind.
func New(cfg *config.Config) (Provider, error) {
	p := cfg.Provider
	switch p.Kind {
	case "alpaca":
		return NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			cfg.Alpaca.Feed, p.RateLimitPerMin, p.MaxRetries), nil
	case "csv":
		return NewCSVProvider(p.HistoryURL, p.QuoteURL, p.Timeout, p.RateLimitPerMin, p.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}
