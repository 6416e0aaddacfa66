// Command quantsim backtests trading strategies against cached historical
// daily quotes.
//
// Usage:
//
//	quantsim simulate trending cash 2020-01-01 2023-12-31 --params "{short: 10}"
//	quantsim report
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
