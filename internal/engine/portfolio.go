package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/domain"
	"quantsim/internal/market"
)

// InitializePortfolio turns an allocation into a portfolio as of date. Each
// instrument is priced at its latest adjusted close within a week of date.
// Dollar amounts buy whole shares; the remainder is not kept. An instrument
// with no price gets an empty position and its dollar amount stays in cash.
func InitializePortfolio(ctx context.Context, m *market.Market, alloc domain.Allocation, date time.Time) (*domain.Portfolio, error) {
	log := slog.Default().With("component", "engine")

	cash := decimal.Zero
	if amt, ok := alloc[domain.Cash]; ok {
		v, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(amt), "$"))
		if err != nil {
			return nil, fmt.Errorf("cash amount %q: %w", amt, err)
		}
		cash = v
	}
	pf := domain.NewPortfolio(cash)

	for sym, amt := range alloc {
		if sym == domain.Cash {
			continue
		}
		qty, err := domain.ParseQuantity(amt)
		if err != nil {
			return nil, fmt.Errorf("allocation for %s: %w", sym, err)
		}
		if qty.Kind == domain.QuantityAll {
			return nil, fmt.Errorf("allocation for %s: ALL is not an amount", sym)
		}

		q, ok, err := m.Ticker(sym).Quote(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("pricing %s: %w", sym, err)
		}
		pos := pf.Position(sym)
		if !ok || q.AdjClose <= 0 {
			if qty.Kind == domain.QuantityDollars {
				pf.Cash = pf.Cash.Add(decimal.NewFromFloat(qty.Value))
			} else {
				log.Warn("share amount for instrument with no price at start; holding none",
					"symbol", sym, "amount", amt, "date", date.Format(domain.DateLayout))
			}
			continue
		}

		shares := qty.Value
		if qty.Kind == domain.QuantityDollars {
			shares = math.Floor(qty.Value / q.AdjClose)
		}
		*pos = domain.Position{Amount: shares, Basis: q.AdjClose}
	}
	return pf, nil
}

// markToMarket prices every holding at date's adjusted close. A holding with
// no quote that day contributes zero.
func markToMarket(ctx context.Context, m *market.Market, pf *domain.Portfolio, date time.Time) (map[string]float64, error) {
	prices := make(map[string]float64, len(pf.Positions))
	for _, sym := range pf.Symbols() {
		q, err := m.Ticker(sym).At(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("pricing %s on %s: %w", sym, date.Format(domain.DateLayout), err)
		}
		if q.Valid {
			prices[sym] = q.AdjClose
		} else {
			prices[sym] = 0
		}
	}
	return prices, nil
}
