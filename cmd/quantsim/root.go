package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quantsim/internal/calendar"
	"quantsim/internal/config"
	"quantsim/internal/domain"
	"quantsim/internal/market"
	"quantsim/internal/provider"
	"quantsim/internal/store"
	"quantsim/internal/util"
)

const version = "0.3.0"

// app carries the state shared by every subcommand: the loaded
// configuration and, once opened, the quote cache behind the market.
type app struct {
	cfgPath string
	cfg     *config.Config
	logFile *os.File

	out   io.Writer
	cache store.QuoteCache
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:   "quantsim",
		Short: "Backtest trading strategies on daily quotes",
		Long: `quantsim replays a portfolio day by day over cached historical quotes,
lets a strategy place orders and executes them at the next trading day's
prices. Runs are written to a SQLite or CSV ledger and summarised by the
report command.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			return a.load()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default $QUANTSIM_CONFIG or ~/.quant/quantsim.yaml)")

	root.AddCommand(
		a.simulateCmd(),
		a.analyzeCmd(),
		a.reportCmd(),
		a.fetchCmd(),
		a.updateCmd(),
		a.purgeCmd(),
		a.quoteCmd(),
		a.symbolsCmd(),
		a.portfolioCmd(),
		a.strategiesCmd(),
		versionCmd(),
	)
	return root
}

// load reads the configuration and installs the default logger.
func (a *app) load() error {
	if a.cfgPath == "" {
		a.cfgPath = os.Getenv("QUANTSIM_CONFIG")
	}
	if a.cfgPath == "" {
		a.cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	var w io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}
	util.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))
	return nil
}

func (a *app) close() error {
	var err error
	if a.cache != nil {
		err = a.cache.Close()
		a.cache = nil
	}
	if a.logFile != nil {
		if cerr := a.logFile.Close(); err == nil {
			err = cerr
		}
		a.logFile = nil
	}
	return err
}

// openMarket opens the configured quote cache and provider.
func (a *app) openMarket(ctx context.Context) (*market.Market, error) {
	cache, err := store.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening quote cache: %w", err)
	}
	a.cache = cache

	p, err := provider.New(a.cfg)
	if err != nil {
		return nil, err
	}
	qs := market.NewQuoteStore(cache, p, market.WithLogger(slog.Default().With("component", "quotes")))
	return market.New(qs), nil
}

func (a *app) openCalendar(ctx context.Context) (*market.Market, *calendar.TradingCalendar, error) {
	m, err := a.openMarket(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m, calendar.New(m, a.cfg.Simulation.ReferenceSymbol), nil
}

// parseDay parses a YYYY-MM-DD argument. "today" is the current day and ""
// the zero time.
func parseDay(s string) (time.Time, error) {
	switch s {
	case "":
		return time.Time{}, nil
	case "today":
		return domain.Day(time.Now()), nil
	}
	d, err := domain.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quantsim %s\n", version)
		},
	}
}
