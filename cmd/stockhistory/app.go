package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"StockHistory/internal/collector"
	"StockHistory/internal/config"
	"StockHistory/internal/ingest"
	"StockHistory/internal/store"
	"StockHistory/internal/tickers"

	"github.com/sirupsen/logrus"
)

// configPath is the global -config flag shared by all subcommands.
var configPath = flag.String("config", defaultConfigPath(), "Path to the YAML config file (env CONFIG_PATH)")

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// app holds the components shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   store.DocumentStore
	gateway collector.Gateway
	closers []io.Closer
}

// openApp loads and validates the config, then opens the store and, if withGateway is set,
// the provider gateway. Every error is returned before any ticker is touched.
func openApp(ctx context.Context, withGateway bool) (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	a.store, err = store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.closers = append(a.closers, a.store)
	log.Infof("store: %s", a.store.Name())

	if withGateway {
		gw, closer, err := collector.New(cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.gateway = gw
		a.closers = append(a.closers, closer)
		log.Infof("data provider: %s", gw.Name())
	}
	return a, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &config.Error{Field: "log_level", Err: err}
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// loadTickers returns args if given, the configured ticker list otherwise.
func (a *app) loadTickers(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return tickers.Load(a.cfg.Tickers.Path, a.cfg.Tickers.Column)
}

func (a *app) driver(console io.Writer) *ingest.Driver {
	return &ingest.Driver{
		Syncer:      ingest.NewOrchestrator(a.cfg, a.store, a.gateway, console, a.log),
		MaxAttempts: a.cfg.Sync.MaxAttempts,
		Backoff:     a.cfg.Sync.RetryBackoff,
		Log:         a.log,
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("close")
		}
	}
}
