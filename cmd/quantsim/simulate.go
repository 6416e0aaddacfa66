package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"quantsim/internal/broker"
	"quantsim/internal/domain"
	"quantsim/internal/engine"
	"quantsim/internal/ledger"
	"quantsim/internal/report"
	"quantsim/internal/strategy"
	"quantsim/internal/strategy/builtins"
)

func (a *app) newEngine(ctx context.Context, lg ledger.Ledger, progress engine.Progress) (*engine.Engine, error) {
	m, cal, err := a.openCalendar(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Deps{
		Market:   m,
		Calendar: cal,
		Registry: builtins.NewRegistry(),
		Broker:   broker.NewSimulatorBroker(m, decimal.NewFromFloat(a.cfg.Simulation.TradeCost)),
		Ledger:   lg,
		Risk:     engine.NewRiskManager(a.cfg.Trading.MaxPositionPct),
		Progress: progress,
		Logger:   slog.Default().With("component", "engine"),
	}), nil
}

func (a *app) simulateCmd() *cobra.Command {
	var (
		output     string
		params     string
		showReport bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <strategy> <portfolio> <start> <end>",
		Short: "Run a strategy over a date range",
		Long: `Simulate replays the named portfolio from start through end (YYYY-MM-DD,
end may be "today"). Orders placed on one trading day execute at the next
trading day's prices. Results are written to --output: a path ending in .csv
or a directory produces CSV files, anything else a SQLite database.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sargs, err := strategy.ParseArgs(params)
			if err != nil {
				return err
			}
			alloc, err := a.cfg.Portfolio(args[1])
			if err != nil {
				return err
			}
			start, err := parseDay(args[2])
			if err != nil {
				return err
			}
			end, err := parseDay(args[3])
			if err != nil {
				return err
			}
			if output == "" {
				output = a.cfg.Simulation.Output
			}

			lg, err := ledger.Open(output)
			if err != nil {
				return err
			}
			closed := false
			defer func() {
				if !closed {
					lg.Close()
				}
			}()

			var progress engine.Progress
			if a.cfg.Simulation.Progress {
				progress = progressbar.NewOptions(domain.DaysBetween(start, end)+1,
					progressbar.OptionSetDescription(args[0]),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionClearOnFinish(),
				)
			}

			eng, err := a.newEngine(ctx, lg, progress)
			if err != nil {
				return err
			}
			res, err := eng.Run(ctx, engine.RunConfig{
				Strategy:   args[0],
				Args:       sargs,
				Portfolio:  args[1],
				Allocation: alloc,
				Start:      start,
				End:        end,
				Workers:    a.cfg.Simulation.Workers,
			})
			if err != nil {
				return fmt.Errorf("simulation failed in state %s: %w", eng.State(), err)
			}
			closed = true
			if err := lg.Close(); err != nil {
				return fmt.Errorf("closing ledger: %w", err)
			}

			a.printResult(res, output)
			if showReport {
				return a.printReport(ctx, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "ledger path (default simulation.output)")
	cmd.Flags().StringVarP(&params, "params", "p", "", `strategy parameters as a YAML mapping, e.g. "{short: 10, long: 50}"`)
	cmd.Flags().BoolVar(&showReport, "report", false, "print the performance report when done")
	return cmd
}

func (a *app) printResult(res *engine.Result, output string) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	fmt.Fprintf(w, "Days:\t%s to %s (%s trading days)\n",
		res.First.Format(domain.DateLayout), res.Last.Format(domain.DateLayout), humanize.Comma(int64(res.Days)))
	fmt.Fprintf(w, "Orders:\t%d executed, %d rejected\n", res.Executed, res.Rejected)
	fmt.Fprintf(w, "Final value:\t%s\n", report.Money(res.FinalValue.InexactFloat64()))
	for _, o := range res.FinalOrders {
		fmt.Fprintf(w, "Final order:\t%s (not executed)\n", o)
	}
	fmt.Fprintf(w, "Ledger:\t%s\n", output)
	w.Flush()
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		date   string
		params string
	)
	cmd := &cobra.Command{
		Use:   "analyze <strategy> <portfolio>",
		Short: "Show the orders a strategy would place today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sargs, err := strategy.ParseArgs(params)
			if err != nil {
				return err
			}
			alloc, err := a.cfg.Portfolio(args[1])
			if err != nil {
				return err
			}
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(ctx, nil, nil)
			if err != nil {
				return err
			}
			on, orders, err := eng.Analyze(ctx, engine.AnalyzeConfig{
				Strategy:   args[0],
				Args:       sargs,
				Allocation: alloc,
				Date:       day,
			})
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintf(a.out, "%s: no orders\n", on.Format(domain.DateLayout))
				return nil
			}
			for _, o := range orders {
				fmt.Fprintf(a.out, "%s: %s\n", on.Format(domain.DateLayout), o)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "evaluation date (default today)")
	cmd.Flags().StringVarP(&params, "params", "p", "", "strategy parameters as a YAML mapping")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report [ledger]",
		Short: "Summarize a simulation ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Simulation.Output
			if len(args) == 1 {
				path = args[0]
			}
			return a.printReport(cmd.Context(), path)
		},
	}
}

func (a *app) printReport(ctx context.Context, path string) error {
	r, err := ledger.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	name := filepath.Base(path)
	if run, err := r.Run(ctx); err == nil && run.Strategy != "" {
		name = fmt.Sprintf("%s (%s on %s)", name, run.Strategy, run.Portfolio)
	}
	s, err := report.Compute(ctx, r)
	if err != nil {
		return err
	}
	return report.Print(a.out, name, s)
}

func (a *app) strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the available strategies",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			for _, name := range builtins.NewRegistry().List() {
				fmt.Fprintln(a.out, name)
			}
		},
	}
}
