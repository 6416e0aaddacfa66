package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"quantsim/internal/config"
	"quantsim/internal/domain"
)

func (a *app) portfolioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Manage named starting portfolios",
	}

	create := &cobra.Command{
		Use:   "create <name> <cash> [SYMBOL=AMOUNT]...",
		Short: "Add a portfolio to the config file",
		Long: `Create stores a new starting portfolio. AMOUNT is a share count ("25") or a
dollar amount to invest at the start date ("$5000").`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if q, err := domain.ParseQuantity(args[1]); err != nil || q.Kind == domain.QuantityAll {
				return fmt.Errorf("cash %q: want an amount such as 10000", args[1])
			}
			holdings, err := parseHoldings(args[2:])
			if err != nil {
				return err
			}
			return a.editConfig(func(cfg *config.Config) error {
				return cfg.CreatePortfolio(args[0], strings.TrimPrefix(args[1], domain.Cash), holdings)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a portfolio from the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.editConfig(func(cfg *config.Config) error {
				if _, err := cfg.Portfolio(args[0]); err != nil {
					return err
				}
				cfg.DeletePortfolio(args[0])
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the configured portfolios",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, name := range a.cfg.PortfolioNames() {
				alloc, err := a.cfg.Portfolio(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s: %s\n", name, formatAllocation(alloc))
			}
			return nil
		},
	}

	cmd.AddCommand(create, del, list)
	return cmd
}

// editConfig applies fn to the config file as written, without environment
// overrides, and saves it.
func (a *app) editConfig(fn func(*config.Config) error) error {
	cfg, err := config.LoadFile(a.cfgPath)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Save(a.cfgPath); err != nil {
		return fmt.Errorf("saving %s: %w", a.cfgPath, err)
	}
	a.cfg.Portfolios = cfg.Portfolios
	return nil
}

// parseHoldings parses SYMBOL=AMOUNT pairs.
func parseHoldings(args []string) (map[string]string, error) {
	holdings := make(map[string]string, len(args))
	for _, arg := range args {
		sym, amt, ok := strings.Cut(arg, "=")
		sym = domain.NormalizeSymbol(sym)
		if !ok || sym == "" || sym == domain.Cash {
			return nil, fmt.Errorf("holding %q: want SYMBOL=AMOUNT", arg)
		}
		q, err := domain.ParseQuantity(amt)
		if err != nil {
			return nil, fmt.Errorf("holding %q: %w", arg, err)
		}
		if q.Kind == domain.QuantityAll {
			return nil, fmt.Errorf("holding %q: ALL is not an amount", arg)
		}
		holdings[sym] = strings.TrimSpace(amt)
	}
	return holdings, nil
}

// formatAllocation renders cash first and then the holdings by symbol.
func formatAllocation(alloc domain.Allocation) string {
	syms := make([]string, 0, len(alloc))
	for sym := range alloc {
		if sym != domain.Cash {
			syms = append(syms, sym)
		}
	}
	sort.Strings(syms)

	parts := make([]string, 0, len(alloc))
	if cash, ok := alloc[domain.Cash]; ok {
		parts = append(parts, "cash "+domain.Cash+strings.TrimPrefix(cash, domain.Cash))
	}
	for _, sym := range syms {
		parts = append(parts, sym+" "+alloc[sym])
	}
	return strings.Join(parts, ", ")
}
