package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quantsim/internal/calendar"
	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/market/markettest"
)

var today = domain.Date(2024, 7, 10)

func newCalendar(t *testing.T) (*calendar.TradingCalendar, *markettest.Provider) {
	t.Helper()
	p := markettest.NewProvider()
	p.Weekdays("SPY", domain.Date(2024, 1, 2), today,
		func(int, time.Time) float64 { return 470 },
		domain.Date(2024, 1, 15), // MLK day
		domain.Date(2024, 3, 29), // Good Friday
		domain.Date(2024, 7, 4),
	)
	return calendar.New(markettest.NewMarket(t, p, today), ""), p
}

func TestIsTradingDay(t *testing.T) {
	cal, _ := newCalendar(t)
	ctx := context.Background()

	if cal.Reference() != "SPY" {
		t.Errorf("Reference() = %q, want SPY", cal.Reference())
	}

	tests := []struct {
		date time.Time
		want bool
	}{
		{domain.Date(2024, 1, 12), true},  // Friday
		{domain.Date(2024, 1, 13), false}, // Saturday
		{domain.Date(2024, 1, 15), false}, // holiday
		{domain.Date(2024, 3, 28), true},  // Thursday before Good Friday
		{domain.Date(2024, 3, 29), false}, // Good Friday
	}
	for _, tt := range tests {
		got, err := cal.IsTradingDay(ctx, tt.date)
		if err != nil {
			t.Fatalf("IsTradingDay(%s): %v", tt.date.Format(domain.DateLayout), err)
		}
		if got != tt.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date.Format(domain.DateLayout), got, tt.want)
		}
	}
}

func TestNextPrevTradingDay(t *testing.T) {
	cal, _ := newCalendar(t)
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func(context.Context, time.Time) (time.Time, error)
		from time.Time
		want time.Time
	}{
		{"next over weekend and holiday", cal.NextTradingDay, domain.Date(2024, 1, 12), domain.Date(2024, 1, 16)},
		{"next midweek", cal.NextTradingDay, domain.Date(2024, 1, 16), domain.Date(2024, 1, 17)},
		{"next over long weekend", cal.NextTradingDay, domain.Date(2024, 3, 28), domain.Date(2024, 4, 1)},
		{"prev over weekend", cal.PrevTradingDay, domain.Date(2024, 1, 22), domain.Date(2024, 1, 19)},
		{"prev from holiday", cal.PrevTradingDay, domain.Date(2024, 7, 4), domain.Date(2024, 7, 3)},
		{"prev over holiday", cal.PrevTradingDay, domain.Date(2024, 7, 5), domain.Date(2024, 7, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(ctx, tt.from)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got.Format(domain.DateLayout), tt.want.Format(domain.DateLayout))
			}
		})
	}
}

func TestWalkBounds(t *testing.T) {
	cal, _ := newCalendar(t)
	ctx := context.Background()

	// Walking past today is out of range.
	if _, err := cal.NextTradingDay(ctx, today); !errors.Is(err, market.ErrOutOfRange) {
		t.Errorf("NextTradingDay(today) error = %v, want ErrOutOfRange", err)
	}

	// The series begins 2024-01-02, so a month earlier nothing is found.
	if _, err := cal.PrevTradingDay(ctx, domain.Date(2023, 12, 1)); !errors.Is(err, calendar.ErrNoTradingDay) {
		t.Errorf("PrevTradingDay before data error = %v, want ErrNoTradingDay", err)
	}
}

func TestMemoised(t *testing.T) {
	cal, p := newCalendar(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cal.NextTradingDay(ctx, domain.Date(2024, 5, 10)); err != nil {
			t.Fatalf("NextTradingDay: %v", err)
		}
	}
	if got := len(p.Calls()); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

func TestWeekendBarIsNotTradingDay(t *testing.T) {
	cal, p := newCalendar(t)
	ctx := context.Background()

	sat := domain.Date(2024, 1, 13)
	p.Add(domain.Quote{Symbol: "SPY", Date: sat, Open: 470, High: 470, Low: 470, Close: 470, AdjClose: 470, Valid: true})

	open, err := cal.IsTradingDay(ctx, sat)
	if err != nil {
		t.Fatalf("IsTradingDay: %v", err)
	}
	if open {
		t.Error("IsTradingDay(Saturday with a reference bar) = true, want false")
	}

	next, err := cal.NextTradingDay(ctx, domain.Date(2024, 1, 12))
	if err != nil {
		t.Fatalf("NextTradingDay: %v", err)
	}
	// Saturday and Sunday are skipped and Monday the 15th is a holiday.
	if want := domain.Date(2024, 1, 16); !next.Equal(want) {
		t.Errorf("NextTradingDay(Fri) = %s, want %s", next.Format(domain.DateLayout), want.Format(domain.DateLayout))
	}
}
