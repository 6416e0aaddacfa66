// Package indicator implements streaming technical indicators. Each
// indicator consumes one value per trading day and keeps just enough state
// to produce its next output.
package indicator

import (
	"context"
	"time"

	"quantsim/internal/domain"
)

// Indicator is a stateful per-symbol computation fed one value at a time.
type Indicator interface {
	// Name identifies the indicator kind and parameters, e.g. "EMA(15)".
	Name() string
	// Update folds value (observed on date) into the state and returns the
	// new output.
	Update(value float64, date time.Time) float64
	// Value returns the current output; ok is false before the first Update.
	Value() (v float64, ok bool)
}

// Recorder receives indicator outputs as they are produced.
type Recorder interface {
	RecordIndicator(ctx context.Context, row domain.IndicatorRow) error
}

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var (
	_ Indicator = (*SMA)(nil)
	_ Indicator = (*EMA)(nil)
	_ Indicator = (*RSI)(nil)
	_ Indicator = (*Value)(nil)
)
