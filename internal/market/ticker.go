package market

import (
	"context"
	"time"

	"quantsim/internal/domain"
)

// lookback is how many calendar days Quote walks back for a price.
const lookback = 7

// Ticker is a lightweight per-symbol view over a QuoteStore. It holds no
// data of its own; Market.Ticker creates a fresh one on every call.
type Ticker struct {
	Symbol string
	qs     *QuoteStore
}

// At returns the row for date exactly. The result is a placeholder when the
// symbol did not trade that day.
func (t *Ticker) At(ctx context.Context, date time.Time) (domain.Quote, error) {
	rows, err := t.qs.Get(ctx, t.Symbol, date, time.Time{})
	if err != nil {
		return domain.Quote{}, err
	}
	if len(rows) == 0 {
		return domain.Placeholder(t.Symbol, date), nil
	}
	return rows[0], nil
}

// Quote returns the latest Valid quote in [date-7d, date]. ok is false when
// none of those days has data.
func (t *Ticker) Quote(ctx context.Context, date time.Time) (q domain.Quote, ok bool, err error) {
	date = domain.Day(date)
	from := domain.AddDays(date, -lookback)
	if from.Before(MinDate) {
		from = MinDate
	}
	rows, err := t.qs.Get(ctx, t.Symbol, date, from)
	if err != nil {
		return domain.Quote{}, false, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Valid {
			return rows[i], true, nil
		}
	}
	return domain.Quote{}, false, nil
}

// History returns one row per day in [start, end]. A cold range is filled in
// a single provider request.
func (t *Ticker) History(ctx context.Context, start, end time.Time) ([]domain.Quote, error) {
	return t.qs.Get(ctx, t.Symbol, end, start)
}

// LatestQuote returns the provider's most recent quote for the symbol.
func (t *Ticker) LatestQuote(ctx context.Context) (domain.Quote, error) {
	return t.qs.Latest(ctx, t.Symbol)
}
