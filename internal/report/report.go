// Package report computes performance statistics from a run's ledger: total
// and annualised return, maximum drawdown, and win/loss statistics over the
// SELL trades priced against their average-cost basis.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"quantsim/internal/domain"
)

// ErrEmpty is returned when the ledger holds no performance rows.
var ErrEmpty = errors.New("no performance data")

// Source is the part of a ledger reader a report needs.
type Source interface {
	Performance(ctx context.Context) ([]domain.PerformanceRow, error)
	Orders(ctx context.Context) ([]domain.OrderRow, error)
}

// Point is one day on the equity curve.
type Point struct {
	Date  time.Time
	Value float64
}

// Summary holds the metrics produced from a run.
type Summary struct {
	Period    int // calendar days from first to last point
	Start     Point
	End       Point
	Return    float64
	ReturnPct float64
	CAGR      float64

	// DrawdownDays is the longest stretch between two highs on the curve.
	DrawdownDays  int
	DrawdownFrom  Point
	DrawdownUntil Point
	// DrawdownAmount is the largest fall from a high to the low before the
	// next high.
	DrawdownAmount float64
	DrawdownPct    float64
	DrawdownHigh   Point
	DrawdownLow    Point

	Orders []domain.OrderRow
	Trades TradeStats
}

// TradeStats summarizes closed trades. Each SELL is one trade whose profit
// is (price - basis) * quantity.
type TradeStats struct {
	Total       int
	Winning     int
	Losing      int
	TotalProfit float64
	Average     float64
	AverageWin  float64
	AverageLoss float64

	MaxWinStreak  int
	MaxLoseStreak int

	LargestWin      float64
	LargestWinDate  time.Time
	LargestLoss     float64
	LargestLossDate time.Time
}

// PercentProfitable returns the share of trades that made money, in [0, 1].
func (s TradeStats) PercentProfitable() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Winning) / float64(s.Total)
}

// Compute loads the ledger rows from src and summarizes them.
func Compute(ctx context.Context, src Source) (*Summary, error) {
	perf, err := src.Performance(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading performance: %w", err)
	}
	orders, err := src.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading orders: %w", err)
	}
	return Summarize(perf, orders)
}

// Summarize computes a Summary from performance rows in date order and the
// executed orders.
func Summarize(perf []domain.PerformanceRow, orders []domain.OrderRow) (*Summary, error) {
	if len(perf) == 0 {
		return nil, ErrEmpty
	}
	curve := make([]Point, len(perf))
	for i, p := range perf {
		curve[i] = Point{Date: p.Date, Value: p.Value.InexactFloat64()}
	}

	s := &Summary{
		Start:  curve[0],
		End:    curve[len(curve)-1],
		Orders: orders,
	}
	s.Period = domain.DaysBetween(s.Start.Date, s.End.Date)
	s.Return = s.End.Value - s.Start.Value
	if s.Start.Value != 0 {
		s.ReturnPct = 100 * s.Return / s.Start.Value
		if s.Period > 0 && s.End.Value/s.Start.Value > 0 {
			years := float64(s.Period) / 365
			s.CAGR = 100 * (math.Pow(s.End.Value/s.Start.Value, 1/years) - 1)
		}
	}

	s.drawdown(curve)
	s.Trades = tradeStats(orders)
	return s, nil
}

func (s *Summary) drawdown(curve []Point) {
	high, low := curve[0], curve[0]
	last := curve[len(curve)-1].Date
	for _, p := range curve[1:] {
		if p.Value >= high.Value || p.Date.Equal(last) {
			days := domain.DaysBetween(high.Date, p.Date)
			amount := high.Value - low.Value
			if days > s.DrawdownDays {
				s.DrawdownDays = days
				s.DrawdownFrom = high
				s.DrawdownUntil = p
			}
			if amount > s.DrawdownAmount {
				s.DrawdownAmount = amount
				s.DrawdownHigh = high
				s.DrawdownLow = low
			}
			high, low = p, p
		}
		if p.Value <= low.Value {
			low = p
		}
	}
	if s.DrawdownHigh.Value != 0 {
		s.DrawdownPct = 100 * s.DrawdownAmount / s.DrawdownHigh.Value
	}
}

func tradeStats(orders []domain.OrderRow) TradeStats {
	var (
		st                    TradeStats
		winStreak, loseStreak int
		totalWin, totalLoss   float64
	)
	for _, o := range orders {
		if o.Type != domain.OrderSideSell {
			continue
		}
		st.Total++
		profit := (o.Price - o.Basis) * o.Quantity
		st.TotalProfit += profit

		switch {
		case profit > 0:
			st.Winning++
			totalWin += profit
			winStreak++
			st.MaxLoseStreak = max(st.MaxLoseStreak, loseStreak)
			loseStreak = 0
		case profit < 0:
			st.Losing++
			totalLoss += profit
			loseStreak++
			st.MaxWinStreak = max(st.MaxWinStreak, winStreak)
			winStreak = 0
		}

		if profit > st.LargestWin {
			st.LargestWin, st.LargestWinDate = profit, o.Date
		}
		if profit < st.LargestLoss {
			st.LargestLoss, st.LargestLossDate = profit, o.Date
		}
	}
	st.MaxWinStreak = max(st.MaxWinStreak, winStreak)
	st.MaxLoseStreak = max(st.MaxLoseStreak, loseStreak)

	if st.Total > 0 {
		st.Average = st.TotalProfit / float64(st.Total)
	}
	if st.Winning > 0 {
		st.AverageWin = totalWin / float64(st.Winning)
	}
	if st.Losing > 0 {
		st.AverageLoss = totalLoss / float64(st.Losing)
	}
	return st
}
