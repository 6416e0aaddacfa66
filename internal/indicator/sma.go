package indicator

import (
	"fmt"
	"time"
)

// SMA is a simple moving average over the last period values.
//
// The window starts out filled with zeros and the output is always the
// window sum divided by period, so the first period-1 outputs are biased
// toward zero: SMA(5) fed a constant 5 yields 1, 2, 3, 4, 5, 5, ...
type SMA struct {
	period  int
	window  *Ring[float64]
	value   float64
	updated bool
}

// NewSMA returns an SMA over period values. period < 1 is treated as 1.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	s := &SMA{period: period, window: NewRing[float64](period)}
	for i := 0; i < period; i++ {
		s.window.Push(0)
	}
	return s
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA(%d)", s.period) }

// Period returns the window length.
func (s *SMA) Period() int { return s.period }

func (s *SMA) Update(value float64, _ time.Time) float64 {
	oldest, _ := s.window.Push(value)
	n := float64(s.period)
	s.value = s.value - oldest/n + value/n
	s.updated = true
	return s.value
}

func (s *SMA) Value() (float64, bool) { return s.value, s.updated }
