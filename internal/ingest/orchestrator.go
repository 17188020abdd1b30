package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"StockHistory/internal/calculator"
	"StockHistory/internal/collector"
	"StockHistory/internal/config"
	"StockHistory/internal/model"
	"StockHistory/internal/store"

	"github.com/sirupsen/logrus"
)

// Result describes one ticker sync.
type Result struct {
	Ticker    string
	Start     string
	End       string
	NewTicker bool
	Bars      int
	Created   int
	Updated   int
}

// Orchestrator extends one ticker's persisted history up to today.
type Orchestrator struct {
	Gateway    collector.Gateway
	Resolver   *Resolver
	Reconciler *Reconciler
	Interval   string
	// Console receives the derived series as JSON before it is persisted. Nil disables it.
	Console io.Writer
	Now     func() time.Time
	Log     logrus.FieldLogger
}

// NewOrchestrator wires an Orchestrator from explicit configuration.
func NewOrchestrator(cfg *config.Config, st store.DocumentStore, gw collector.Gateway, console io.Writer, log logrus.FieldLogger) *Orchestrator {
	if !cfg.PrintSeries() {
		console = nil
	}
	return &Orchestrator{
		Gateway:    gw,
		Resolver:   &Resolver{Store: st, BackfillDate: cfg.Sync.BackfillDate, Log: log},
		Reconciler: &Reconciler{Store: st, Log: log},
		Interval:   cfg.Sync.Interval,
		Console:    console,
		Now:        time.Now,
		Log:        log,
	}
}

// Sync resolves the start date, fetches [start, today], derives metrics and reconciles them.
// Zero fetched bars is a no-op. Provider failures are returned as *FetchError; nothing is
// retried here.
func (o *Orchestrator) Sync(ctx context.Context, ticker string) (Result, error) {
	res := Result{Ticker: ticker}
	log := o.Log.WithFields(logrus.Fields{"ticker": ticker, "provider": o.Gateway.Name()})

	start, err := o.Resolver.Resolve(ctx, ticker)
	if err != nil {
		return res, err
	}
	res.Start, res.NewTicker = start.Date, start.NewTicker
	res.End = o.Now().Format(model.DayLayout)

	from, err := time.Parse(model.DayLayout, res.Start)
	if err != nil {
		return res, fmt.Errorf("%s: start date %q: %w", ticker, res.Start, err)
	}
	to, err := time.Parse(model.DayLayout, res.End)
	if err != nil {
		return res, fmt.Errorf("%s: end date %q: %w", ticker, res.End, err)
	}
	if from.After(to) {
		log.Infof("start %s is after today, nothing to fetch", res.Start)
		return res, nil
	}

	bars, err := o.Gateway.Fetch(ctx, ticker, from, to, o.Interval)
	if err != nil {
		return res, &FetchError{Ticker: ticker, Err: err}
	}
	res.Bars = len(bars)
	if len(bars) == 0 {
		log.Infof("no bars between %s and %s", res.Start, res.End)
		return res, nil
	}

	series, err := calculator.DeriveSeries(ticker, bars)
	if err != nil {
		return res, fmt.Errorf("%s: %w", ticker, err)
	}
	series.StartDate, series.EndDate = res.Start, res.End
	if alignBoundary(series, start.Latest) {
		log.Debugf("boundary day keeps persisted key %q", start.Latest)
	}
	if err := o.print(series); err != nil {
		log.WithError(err).Warn("print series")
	}

	stats, err := o.Reconciler.Reconcile(ctx, series)
	res.Created, res.Updated = stats.Created, stats.Updated
	if err != nil {
		return res, err
	}
	log.Infof("synced %s..%s: %d bars, %d created, %d updated", res.Start, res.End, res.Bars, res.Created, res.Updated)
	return res, nil
}

func (o *Orchestrator) print(series *model.TickerSeries) error {
	if o.Console == nil {
		return nil
	}
	out, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Console, string(out))
	return err
}

// alignBoundary rewrites the date of a first point that falls on the same calendar day as the
// latest persisted document to that document's key. Providers differ in the offset they
// attach to a day, and the refetched boundary day must update the existing document.
func alignBoundary(series *model.TickerSeries, latest string) bool {
	if latest == "" || len(series.Points) == 0 {
		return false
	}
	first := &series.Points[0]
	if first.Date == latest || model.Day(first.Date) != model.Day(latest) {
		return false
	}
	first.Date = latest
	return true
}
