// Package engine replays a strategy over historical daily quotes. Each
// trading day it records the portfolio, asks the strategy for orders and
// executes them on the next trading day.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"quantsim/internal/broker"
	"quantsim/internal/calendar"
	"quantsim/internal/domain"
	"quantsim/internal/ledger"
	"quantsim/internal/market"
	"quantsim/internal/strategy"
	"quantsim/internal/util"
)

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the lifecycle stage of a run.
type State int32

const (
	StateUninitialized State = iota
	StateWarming
	StateRunning
	StateFinalizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateWarming:
		return "WARMING"
	case StateRunning:
		return "RUNNING"
	case StateFinalizing:
		return "FINALIZING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Progress receives the number of calendar days simulated. A
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Deps are the collaborators of an Engine. Ledger and Progress are optional
// for Analyze; Risk is optional everywhere.
type Deps struct {
	Market   *market.Market
	Calendar *calendar.TradingCalendar
	Registry *strategy.Registry
	Broker   broker.Broker
	Ledger   ledger.Ledger
	Risk     *RiskManager
	Progress Progress
	Logger   *slog.Logger
}

// RunConfig describes one simulation.
type RunConfig struct {
	Strategy   string
	Args       strategy.Args
	Portfolio  string
	Allocation domain.Allocation
	Start      time.Time
	End        time.Time
	// Workers bounds the parallel pre-cache.
	Workers int
}

// Result summarizes a completed (or interrupted) run.
type Result struct {
	RunID string
	// First is the trading day before Start on which the portfolio was
	// initialised; Last is the last day recorded.
	First, Last time.Time
	Days        int
	Executed    int
	Rejected    int
	Final       domain.Portfolio
	FinalValue  decimal.Decimal
	// FinalOrders are the orders returned by Finalize; they are not executed.
	FinalOrders []domain.Order
}

// Engine drives simulations. An Engine runs one simulation at a time.
type Engine struct {
	deps  Deps
	log   *slog.Logger
	state atomic.Int32
}

// New creates an Engine wired with the given dependencies.
func New(deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default().With("component", "engine")
	}
	return &Engine{deps: deps, log: log}
}

// State returns the current lifecycle stage.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.log.Debug("state", "state", s.String())
}

// Run simulates cfg.Strategy from cfg.Start through cfg.End. The returned
// error wraps strategy, calendar and ledger failures; rows flushed before
// the failure remain readable. Cancelling ctx stops the run between days.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if e.deps.Ledger == nil {
		return nil, errors.New("engine: a ledger is required to run")
	}
	start, end := domain.Day(cfg.Start), domain.Day(cfg.End)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", market.ErrOutOfRange,
			end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}
	e.setState(StateUninitialized)

	m, cal := e.deps.Market, e.deps.Calendar

	// The simulation starts at the close of the previous trading day.
	now, err := cal.PrevTradingDay(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("finding trading day before %s: %w", start.Format(domain.DateLayout), err)
	}
	pf, err := InitializePortfolio(ctx, m, cfg.Allocation, now)
	if err != nil {
		return nil, err
	}

	symbols := append(pf.Symbols(), cal.Reference())
	until := end
	if today := m.Today(); until.After(today) {
		until = today
	}
	if err := m.Precache(ctx, symbols, now, until, cfg.Workers); err != nil {
		return nil, fmt.Errorf("pre-caching quotes: %w", err)
	}

	res := &Result{RunID: util.NewID(), First: now}
	run := domain.RunInfo{
		ID:        res.RunID,
		Strategy:  cfg.Strategy,
		Portfolio: cfg.Portfolio,
		Params:    cfg.Args.Encode(),
		Start:     start,
		End:       end,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.deps.Ledger.Begin(ctx, run); err != nil {
		return nil, fmt.Errorf("writing run header: %w", err)
	}

	e.setState(StateWarming)
	strat, err := e.deps.Registry.New(ctx, cfg.Strategy, strategy.Params{
		Start:    start,
		End:      end,
		Initial:  pf.Clone(),
		Market:   m,
		Args:     cfg.Args,
		Recorder: e.deps.Ledger,
		Logger:   e.log.With("strategy", cfg.Strategy),
	})
	if err != nil {
		return nil, err
	}
	if err := e.deps.Ledger.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flushing ledger: %w", err)
	}

	e.setState(StateRunning)
	e.log.Info("simulation started",
		"run", res.RunID,
		"strategy", cfg.Strategy,
		"portfolio", cfg.Portfolio,
		"from", now.Format(domain.DateLayout),
		"to", end.Format(domain.DateLayout),
	)

	// abort returns the partial result; a cancelled context takes
	// precedence over the error it caused.
	abort := func(err error) (*Result, error) {
		e.finishPartial(res, pf)
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		return res, err
	}

	for !now.After(end) {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		equity, err := e.record(ctx, now, pf)
		if err != nil {
			return abort(err)
		}
		res.Last = now
		res.Days++

		orders, err := strat.Evaluate(ctx, now, pf.Clone(), m)
		if err != nil {
			return abort(fmt.Errorf("strategy %s on %s: %w", cfg.Strategy, now.Format(domain.DateLayout), err))
		}

		next, err := cal.NextTradingDay(ctx, now)
		if errors.Is(err, market.ErrOutOfRange) {
			if len(orders) > 0 {
				e.log.Warn("no trading day after last recorded day; pending orders dropped",
					"date", now.Format(domain.DateLayout), "orders", len(orders))
			}
			break
		}
		if err != nil {
			return abort(fmt.Errorf("advancing from %s: %w", now.Format(domain.DateLayout), err))
		}
		// Orders of an interrupted day are not executed.
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		if err := e.execute(ctx, next, orders, pf, equity, res); err != nil {
			return abort(err)
		}
		if err := e.deps.Ledger.Flush(ctx); err != nil {
			return abort(fmt.Errorf("flushing ledger: %w", err))
		}
		if e.deps.Progress != nil {
			_ = e.deps.Progress.Add(domain.DaysBetween(now, next))
		}
		now = next
	}
	if e.deps.Progress != nil {
		_ = e.deps.Progress.Finish()
	}

	e.setState(StateFinalizing)
	final, err := strat.Finalize(ctx)
	if err != nil {
		return res, fmt.Errorf("finalizing strategy %s: %w", cfg.Strategy, err)
	}
	for _, o := range final {
		e.log.Info("final order (not executed)", "order", o.String())
	}
	res.FinalOrders = final
	if err := e.deps.Ledger.Flush(ctx); err != nil {
		return res, fmt.Errorf("flushing ledger: %w", err)
	}
	e.finishPartial(res, pf)

	e.setState(StateDone)
	e.log.Info("simulation finished",
		"run", res.RunID,
		"days", res.Days,
		"executed", res.Executed,
		"rejected", res.Rejected,
	)
	return res, nil
}

func (e *Engine) finishPartial(res *Result, pf *domain.Portfolio) {
	res.Final = pf.Clone()
	if !res.Last.IsZero() {
		prices, err := markToMarket(context.Background(), e.deps.Market, pf, res.Last)
		if err == nil {
			res.FinalValue = pf.Value(prices)
		}
	}
}

// record writes date's Position and Performance rows and returns the
// portfolio's value.
func (e *Engine) record(ctx context.Context, date time.Time, pf *domain.Portfolio) (decimal.Decimal, error) {
	prices, err := markToMarket(ctx, e.deps.Market, pf, date)
	if err != nil {
		return decimal.Zero, err
	}

	l := e.deps.Ledger
	if err := l.RecordPosition(ctx, domain.PositionRow{Date: date, Symbol: domain.Cash, Value: pf.Cash}); err != nil {
		return decimal.Zero, fmt.Errorf("recording position: %w", err)
	}
	for _, sym := range pf.Symbols() {
		pos := pf.Positions[sym]
		price := prices[sym]
		row := domain.PositionRow{
			Date:   date,
			Symbol: sym,
			Amount: pos.Amount,
			Basis:  pos.Basis,
			Price:  price,
			Value:  decimal.NewFromFloat(pos.Amount).Mul(decimal.NewFromFloat(price)),
		}
		if err := l.RecordPosition(ctx, row); err != nil {
			return decimal.Zero, fmt.Errorf("recording position: %w", err)
		}
	}

	value := pf.Value(prices)
	if err := l.RecordPerformance(ctx, domain.PerformanceRow{Date: date, Value: value}); err != nil {
		return decimal.Zero, fmt.Errorf("recording performance: %w", err)
	}
	return value, nil
}

// execute fills orders on date. Rejected orders are logged and skipped.
func (e *Engine) execute(ctx context.Context, date time.Time, orders []domain.Order, pf *domain.Portfolio, equity decimal.Decimal, res *Result) error {
	for _, o := range orders {
		e.log.Debug("executing order", "order", o.String(), "date", date.Format(domain.DateLayout))

		if err := e.deps.Risk.CheckOrder(ctx, o, equity); err != nil {
			e.log.Warn("order rejected", "order", o.String(), "err", err)
			res.Rejected++
			continue
		}

		fill, err := e.deps.Broker.Execute(ctx, date, o, pf)
		if err != nil {
			if isRejection(err) {
				e.log.Warn("ignoring invalid order", "order", o.String(), "err", err)
				res.Rejected++
				continue
			}
			return fmt.Errorf("executing %s: %w", o, err)
		}

		if err := e.deps.Ledger.RecordOrder(ctx, domain.OrderRowFromFill(util.NewID(), *fill)); err != nil {
			return fmt.Errorf("recording order: %w", err)
		}
		res.Executed++
	}
	return nil
}

func isRejection(err error) bool {
	for _, target := range []error{
		broker.ErrInvalidQuantity,
		broker.ErrUnsupportedPriceType,
		broker.ErrUnsupportedSide,
		broker.ErrNoQuote,
		broker.ErrNotHeld,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

// AnalyzeConfig describes a one-day decision.
type AnalyzeConfig struct {
	Strategy   string
	Args       strategy.Args
	Allocation domain.Allocation
	// Date defaults to the market's today.
	Date time.Time
}

// Analyze builds the portfolio as of cfg.Date (or the trading day before
// it, when the market was closed) and returns the orders the strategy would
// place. Nothing is executed or recorded.
func (e *Engine) Analyze(ctx context.Context, cfg AnalyzeConfig) (time.Time, []domain.Order, error) {
	m, cal := e.deps.Market, e.deps.Calendar
	date := domain.Day(cfg.Date)
	if cfg.Date.IsZero() {
		date = m.Today()
	}
	open, err := cal.IsTradingDay(ctx, date)
	if err != nil {
		return date, nil, err
	}
	if !open {
		if date, err = cal.PrevTradingDay(ctx, date); err != nil {
			return date, nil, err
		}
	}

	pf, err := InitializePortfolio(ctx, m, cfg.Allocation, date)
	if err != nil {
		return date, nil, err
	}
	strat, err := e.deps.Registry.New(ctx, cfg.Strategy, strategy.Params{
		Start:   date,
		End:     date,
		Initial: pf.Clone(),
		Market:  m,
		Args:    cfg.Args,
		Logger:  e.log.With("strategy", cfg.Strategy),
	})
	if err != nil {
		return date, nil, err
	}
	orders, err := strat.Evaluate(ctx, date, pf.Clone(), m)
	if err != nil {
		return date, nil, fmt.Errorf("strategy %s on %s: %w", cfg.Strategy, date.Format(domain.DateLayout), err)
	}
	if _, err := strat.Finalize(ctx); err != nil {
		return date, orders, err
	}
	return date, orders, nil
}
