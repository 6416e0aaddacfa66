package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"quantsim/internal/domain"
)

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <symbol> <start> [end]",
		Short: "Discard a symbol's cached quotes and fetch them again",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sym := domain.NormalizeSymbol(args[0])
			start, err := parseDay(args[1])
			if err != nil {
				return err
			}
			m, err := a.openMarket(ctx)
			if err != nil {
				return err
			}
			end := m.Today()
			if len(args) == 3 {
				if end, err = parseDay(args[2]); err != nil {
					return err
				}
			}

			if err := m.Quotes().Refresh(ctx, sym, start, end); err != nil {
				return err
			}
			quotes, err := m.Quotes().Cached(ctx, sym, start, end)
			if err != nil {
				return err
			}
			valid := 0
			for _, q := range quotes {
				if q.Valid {
					valid++
				}
			}
			fmt.Fprintf(a.out, "%s: %s trading days cached from %s to %s\n", sym,
				humanize.Comma(int64(valid)), start.Format(domain.DateLayout), end.Format(domain.DateLayout))
			return nil
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "update <symbol>...",
		Short: "Bring cached quotes up to date",
		Long: `Update fetches whatever is missing from the cache. With --start the whole
range is pre-cached in parallel; otherwise each symbol is extended from its
last cached quote.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openMarket(ctx)
			if err != nil {
				return err
			}
			from, err := parseDay(start)
			if err != nil {
				return err
			}
			to, err := parseDay(end)
			if err != nil {
				return err
			}
			if to.IsZero() {
				to = m.Today()
			}

			symbols := make([]string, len(args))
			for i, s := range args {
				symbols[i] = domain.NormalizeSymbol(s)
			}
			if !from.IsZero() {
				return m.Precache(ctx, symbols, from, to, a.cfg.Simulation.Workers)
			}
			for _, sym := range symbols {
				if err := m.Quotes().Update(ctx, sym, to); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day to cache (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day to cache (default today)")
	return cmd
}

func (a *app) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <symbol>...",
		Short: "Remove symbols from the quote cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openMarket(ctx)
			if err != nil {
				return err
			}
			for _, sym := range args {
				if err := m.Quotes().Purge(ctx, sym); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>...",
		Short: "Show the latest quote from the provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.openMarket(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "Symbol\tDate\tOpen\tHigh\tLow\tClose\tVolume\t")
			for _, sym := range args {
				q, err := m.Ticker(sym).LatestQuote(ctx)
				if err != nil {
					w.Flush()
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t\n", q.Symbol, q.Date.Format(domain.DateLayout),
					q.Open, q.High, q.Low, q.Close, humanize.Comma(q.Volume))
			}
			return w.Flush()
		},
	}
}

func (a *app) symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List the symbols in the quote cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := a.openMarket(ctx)
			if err != nil {
				return err
			}
			symbols, err := m.Quotes().Symbols(ctx)
			if err != nil {
				return err
			}
			for _, sym := range symbols {
				fmt.Fprintln(a.out, sym)
			}
			return nil
		},
	}
}
