package builtins

import "quantsim/internal/strategy"

// Register installs every built-in strategy in r.
func Register(r *strategy.Registry) {
	r.Register("hold", NewHold)
	r.Register("sell", NewSell)
	r.Register("trending", NewTrending)
	r.Register("sma-cross", NewSMACrossFactory)
}

// NewRegistry returns a Registry holding the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
