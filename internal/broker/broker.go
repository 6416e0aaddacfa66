// Package broker executes strategy orders against a portfolio.
package broker

import (
	"context"
	"errors"
	"time"

	"quantsim/internal/domain"
)

// Order rejection reasons. A rejected order leaves the portfolio untouched
// and is not charged a fee.
var (
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrUnsupportedPriceType = errors.New("unsupported price type")
	ErrUnsupportedSide      = errors.New("unsupported order side")
	ErrNoQuote              = errors.New("no quote for execution day")
	ErrNotHeld              = errors.New("symbol not held")
)

// Broker abstracts order execution.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// Execute fills order on date and applies it to pf. It returns the fill,
	// or an error when the order is rejected.
	Execute(ctx context.Context, date time.Time, order domain.Order, pf *domain.Portfolio) (*domain.Fill, error)
}
