package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"StockHistory/internal/notifier"
	"StockHistory/internal/scheduler"

	"github.com/google/subcommands"
)

type scheduleCmd struct {
	runOnStart bool
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "run the sync on the configured cron schedule" }
func (*scheduleCmd) Usage() string {
	return `stockhistory schedule [-run-on-start]

  Runs until SIGINT or SIGTERM. When a Telegram bot is configured, run summaries
  are sent to the chat and the bot accepts /sync and /status.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "Run a sync immediately (env RUN_ON_START).")
}

func (c *scheduleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	// Validate the ticker list once so a broken path fails at startup.
	if _, err := a.loadTickers(nil); err != nil {
		a.log.WithError(err).Error("load tickers")
		return subcommands.ExitFailure
	}

	var (
		tn     *notifier.TelegramNotifier
		sender scheduler.Sender
	)
	if a.cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.Provider.Proxy, a.log)
		sender = tn
	}

	sched := scheduler.NewScheduler(a.driver(nil), func() ([]string, error) { return a.loadTickers(nil) }, sender, a.log)
	sched.StateFile = a.cfg.Schedule.StateFile
	if err := sched.Restore(); err != nil {
		a.log.WithError(err).Warn("restore last run summary")
	}
	if err := sched.Register(ctx, a.cfg.Schedule.Cron); err != nil {
		a.log.WithError(err).Error("register cron task")
		return subcommands.ExitFailure
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		a.log.Info("telegram polling started")
	}

	if c.runOnStart {
		a.log.Info("run-on-start enabled, syncing now")
		go sched.RunAndLog(ctx, "run-on-start sync")
	}

	a.log.Infof("scheduled on %q. Press Ctrl+C to stop.", a.cfg.Schedule.Cron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received, stopping...")
	cancel()
	return subcommands.ExitSuccess
}
