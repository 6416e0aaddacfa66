// Package domain defines the core value types shared across the simulator:
// quotes, orders, positions, portfolios and the rows written to a run ledger.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-day format used in caches and ledgers.
const DateLayout = "2006-01-02"

// Cash is the reserved portfolio/allocation key for the cash balance.
const Cash = "$"

// Quote is one day's OHLCV bar for a symbol. A Quote with Valid == false is a
// placeholder for a calendar day on which the symbol has no data (weekend,
// holiday, before listing).
type Quote struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	AdjClose float64
	Valid    bool
}

// Placeholder returns an empty quote for symbol on date.
func Placeholder(symbol string, date time.Time) Quote {
	return Quote{Symbol: NormalizeSymbol(symbol), Date: Day(date)}
}

// adjRatio is the split/dividend adjustment applied uniformly to the bar.
func (q Quote) adjRatio() (float64, bool) {
	if !q.Valid || q.Close == 0 || q.AdjClose == 0 {
		return 0, false
	}
	return q.AdjClose / q.Close, true
}

// AdjOpen returns the open normalised by AdjClose/Close.
func (q Quote) AdjOpen() (float64, bool) {
	r, ok := q.adjRatio()
	if !ok {
		return 0, false
	}
	return q.Open * r, true
}

// AdjHigh returns the high normalised by AdjClose/Close.
func (q Quote) AdjHigh() (float64, bool) {
	r, ok := q.adjRatio()
	if !ok {
		return 0, false
	}
	return q.High * r, true
}

// AdjLow returns the low normalised by AdjClose/Close.
func (q Quote) AdjLow() (float64, bool) {
	r, ok := q.adjRatio()
	if !ok {
		return 0, false
	}
	return q.Low * r, true
}

func (q Quote) String() string {
	if !q.Valid {
		return fmt.Sprintf("<Quote:%s/%s>", q.Symbol, q.Date.Format(DateLayout))
	}
	return fmt.Sprintf("<Quote:%s/%s:m=%+.2f o=%.2f c=%.2f l=%.2f h=%.2f a=%.2f v=%d>",
		q.Symbol, q.Date.Format(DateLayout), q.Close-q.Open,
		q.Open, q.Close, q.Low, q.High, q.AdjClose, q.Volume)
}

// ---------------------------------------------------------------------------
// Calendar-day helpers
// ---------------------------------------------------------------------------

// Day truncates t to midnight UTC of its calendar date (as seen in t's own
// location).
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns the number of calendar days from a to b (b - a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// AddDays shifts a calendar day by n days.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// NormalizeSymbol returns the canonical (upper-case, trimmed) form of symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
