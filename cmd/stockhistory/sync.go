package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"StockHistory/internal/ingest"

	"github.com/google/subcommands"
)

type syncCmd struct{}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "fetch and persist new daily prices for every ticker" }
func (*syncCmd) Usage() string {
	return `stockhistory sync [ticker...]

  Extends the stored history of each ticker from its last persisted date up to
  today. Without arguments the tickers are read from the configured CSV list.
`
}

func (*syncCmd) SetFlags(*flag.FlagSet) {}

func (*syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	list, err := a.loadTickers(f.Args())
	if err != nil {
		a.log.WithError(err).Error("load tickers")
		return subcommands.ExitFailure
	}

	sum, err := a.driver(os.Stdout).Run(ctx, list)
	if err != nil {
		a.log.WithError(err).Error("sync interrupted")
		return subcommands.ExitFailure
	}
	if sum.Count(ingest.OutcomeFailed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
