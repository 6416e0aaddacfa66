package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"quantsim/internal/broker"
	"quantsim/internal/domain"
)

// Order screening errors.
var (
	ErrUnsupportedSide = broker.ErrUnsupportedSide
	ErrPositionLimit   = errors.New("order exceeds position limit")
)

// RiskManager screens strategy orders before they reach the broker.
type RiskManager struct {
	maxPositionPct decimal.Decimal
}

// NewRiskManager creates a RiskManager.
//
//   - maxPositionPct: maximum fraction of equity a single dollar-sized BUY
//     may spend (e.g. 0.10 for 10%). Zero disables the check.
func NewRiskManager(maxPositionPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct: decimal.NewFromFloat(maxPositionPct),
	}
}

// CheckOrder evaluates whether the proposed order complies with the
// configured limits given the portfolio's equity. Only BUY and SELL are
// simulated.
func (rm *RiskManager) CheckOrder(_ context.Context, order domain.Order, equity decimal.Decimal) error {
	switch order.Side {
	case domain.OrderSideBuy, domain.OrderSideSell:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSide, order.Side)
	}

	if rm == nil || rm.maxPositionPct.IsZero() {
		return nil
	}
	if order.Side != domain.OrderSideBuy || order.Quantity.Kind != domain.QuantityDollars {
		return nil
	}
	limit := equity.Mul(rm.maxPositionPct)
	if decimal.NewFromFloat(order.Quantity.Value).GreaterThan(limit) {
		return fmt.Errorf("%w: %s is above %s of equity %s",
			ErrPositionLimit, order.Quantity, rm.maxPositionPct.String(), equity.StringFixed(2))
	}
	return nil
}
