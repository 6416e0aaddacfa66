package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunInfo identifies one simulation run in the ledger.
type RunInfo struct {
	ID        string
	Strategy  string
	Portfolio string
	Params    string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
}

// OrderRow is an executed order as written to the Orders table.
type OrderRow struct {
	ID          string
	Date        time.Time
	Type        OrderSide
	Symbol      string
	Quantity    float64
	Price       float64
	Basis       float64
	Fee         decimal.Decimal
	Description string
}

// PositionRow is one holding's end-of-day snapshot. The cash row uses the
// Cash symbol with Amount 0 and Value equal to the balance.
type PositionRow struct {
	Date   time.Time
	Symbol string
	Amount float64
	Basis  float64
	Price  float64
	Value  decimal.Decimal
}

// PerformanceRow is the marked-to-market total value for a day.
type PerformanceRow struct {
	Date  time.Time
	Value decimal.Decimal
}

// IndicatorRow is one indicator output recorded during a run.
type IndicatorRow struct {
	Date   time.Time
	Symbol string
	Name   string
	Value  float64
}

// OrderRowFromFill converts an execution into its ledger row.
func OrderRowFromFill(id string, f Fill) OrderRow {
	return OrderRow{
		ID:          id,
		Date:        f.Date,
		Type:        f.Order.Side,
		Symbol:      f.Order.Symbol,
		Quantity:    f.Quantity,
		Price:       f.Price,
		Basis:       f.Basis,
		Fee:         f.Fee,
		Description: f.Order.String(),
	}
}
