// Package strategy defines the Strategy contract, the factory Registry that
// resolves strategies by name, and the per-symbol IndicatorSet strategies use
// to keep running state across a replay.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"quantsim/internal/domain"
	"quantsim/internal/indicator"
	"quantsim/internal/market"
)

// ErrUnknownStrategy is returned by Registry.New for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Evaluate is called once per trading day with the portfolio as of the
	// close of date. It returns the orders to execute on the next trading
	// day. pf is a copy; changing it has no effect.
	Evaluate(ctx context.Context, date time.Time, pf domain.Portfolio, m *market.Market) ([]domain.Order, error)

	// Finalize is called exactly once after the last trading day. Any orders
	// it returns are reported but not executed.
	Finalize(ctx context.Context) ([]domain.Order, error)
}

// Params carries everything a Factory needs to construct a strategy.
type Params struct {
	Start   time.Time
	End     time.Time
	Initial domain.Portfolio
	Market  *market.Market
	Args    Args
	// Recorder receives indicator outputs; nil disables recording.
	Recorder indicator.Recorder
	Logger   *slog.Logger
}

// Factory constructs a Strategy. Warm-up work such as indicator backfill
// happens inside the factory.
type Factory func(ctx context.Context, p Params) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New constructs the named strategy.
func (r *Registry) New(ctx context.Context, name string, p Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownStrategy, name, r.List())
	}
	if p.Logger == nil {
		p.Logger = slog.Default().With("strategy", name)
	}
	s, err := f(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("constructing strategy %q: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
