package indicator

import (
	"fmt"
	"time"
)

// RSI is the relative strength index over EMAs of up and down moves.
//
// The first value is compared with itself, so both averages are seeded with
// a zero move and the first output is always 100. A zero down-average also
// yields 100.
type RSI struct {
	period  int
	up      *EMA
	down    *EMA
	last    float64
	value   float64
	updated bool
}

// NewRSI returns an RSI over period.
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period, up: NewEMA(period), down: NewEMA(period)}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }

func (r *RSI) Update(value float64, date time.Time) float64 {
	if !r.updated {
		r.last = value
	}
	u, d := value-r.last, r.last-value
	r.last = value
	if u > 0 {
		d = 0
	} else if d > 0 {
		u = 0
	}

	up := r.up.Update(u, date)
	down := r.down.Update(d, date)
	if down == 0 {
		r.value = 100
	} else {
		r.value = 100 - 100/(1+up/down)
	}
	r.updated = true
	return r.value
}

func (r *RSI) Value() (float64, bool) { return r.value, r.updated }
