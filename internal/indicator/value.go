package indicator

import "time"

// Value passes its input through; it lets strategies record and read the
// raw series alongside derived indicators.
type Value struct {
	value   float64
	updated bool
}

// NewValue returns a pass-through indicator.
func NewValue() *Value { return &Value{} }

func (v *Value) Name() string { return "VALUE" }

func (v *Value) Update(value float64, _ time.Time) float64 {
	v.value, v.updated = value, true
	return value
}

func (v *Value) Value() (float64, bool) { return v.value, v.updated }
