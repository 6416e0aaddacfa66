// Package calendar decides which days the market was open by looking at a
// reference symbol's quotes: a trading day is a weekday on which the
// reference has a quote.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/market"
)

// ErrNoTradingDay is returned when no trading day is found within maxWalk
// calendar days.
var ErrNoTradingDay = errors.New("no trading day found")

// DefaultReference is the reference symbol used when none is configured.
const DefaultReference = "SPY"

// maxWalk bounds how many days Next/PrevTradingDay will step.
const maxWalk = 30

// TradingCalendar answers trading-day questions from a reference symbol.
type TradingCalendar struct {
	market    *market.Market
	reference string

	mu   sync.Mutex
	memo map[time.Time]bool
}

// New creates a calendar over m using reference (DefaultReference if empty).
func New(m *market.Market, reference string) *TradingCalendar {
	if reference == "" {
		reference = DefaultReference
	}
	return &TradingCalendar{
		market:    m,
		reference: domain.NormalizeSymbol(reference),
		memo:      make(map[time.Time]bool),
	}
}

// Reference returns the reference symbol.
func (c *TradingCalendar) Reference() string { return c.reference }

// IsTradingDay reports whether date is a weekday on which the reference
// symbol has a quote. Weekend bars in the reference series are ignored.
func (c *TradingCalendar) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	date = domain.Day(date)

	c.mu.Lock()
	open, ok := c.memo[date]
	if !ok && isWeekend(date) {
		c.memo[date] = false
		open, ok = false, true
	}
	c.mu.Unlock()
	if ok {
		return open, nil
	}

	q, err := c.market.Ticker(c.reference).At(ctx, date)
	if err != nil {
		return false, err
	}
	// Today's bar may still arrive; only settled days are remembered.
	if date.Before(c.market.Today()) {
		c.mu.Lock()
		c.memo[date] = q.Valid
		c.mu.Unlock()
	}
	return q.Valid, nil
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextTradingDay returns the first trading day strictly after date.
func (c *TradingCalendar) NextTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	return c.walk(ctx, date, 1)
}

// PrevTradingDay returns the last trading day strictly before date.
func (c *TradingCalendar) PrevTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	return c.walk(ctx, date, -1)
}

func (c *TradingCalendar) walk(ctx context.Context, date time.Time, step int) (time.Time, error) {
	d := domain.Day(date)
	for i := 0; i < maxWalk; i++ {
		d = d.AddDate(0, 0, step)
		open, err := c.IsTradingDay(ctx, d)
		if err != nil {
			return time.Time{}, err
		}
		if open {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w within %d days of %s (reference %s)",
		ErrNoTradingDay, maxWalk, date.Format(domain.DateLayout), c.reference)
}
