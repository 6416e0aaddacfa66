// Package builtins provides the strategies that ship with quantsim.
package builtins

import (
	"context"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Hold)(nil)

// Hold keeps the initial portfolio untouched. It is the baseline every other
// strategy is compared against.
type Hold struct{}

// NewHold is the Factory for "hold".
func NewHold(_ context.Context, _ strategy.Params) (strategy.Strategy, error) {
	return &Hold{}, nil
}

// Name returns "hold".
func (h *Hold) Name() string { return "hold" }

// Evaluate never trades.
func (h *Hold) Evaluate(_ context.Context, _ time.Time, _ domain.Portfolio, _ *market.Market) ([]domain.Order, error) {
	return nil, nil
}

// Finalize returns no orders.
func (h *Hold) Finalize(_ context.Context) ([]domain.Order, error) { return nil, nil }
