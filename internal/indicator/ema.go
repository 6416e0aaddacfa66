package indicator

import (
	"fmt"
	"time"
)

// EMA is an exponential moving average with alpha = 2/(period+1). The first
// value seeds the average as-is.
type EMA struct {
	period  int
	alpha   float64
	value   float64
	updated bool
}

// NewEMA returns an EMA over period. period < 1 is treated as 1.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{period: period, alpha: 2.0 / float64(period+1)}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

// Alpha returns the smoothing factor.
func (e *EMA) Alpha() float64 { return e.alpha }

func (e *EMA) Update(value float64, _ time.Time) float64 {
	if !e.updated {
		e.value = value
		e.updated = true
		return e.value
	}
	e.value = value*e.alpha + e.value*(1-e.alpha)
	return e.value
}

func (e *EMA) Value() (float64, bool) { return e.value, e.updated }
