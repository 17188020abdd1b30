package ingest

import (
	"context"
	"errors"
	"time"

	"StockHistory/internal/calculator"
	"StockHistory/internal/store"

	"github.com/sirupsen/logrus"
)

// Outcome classifies a ticker after a batch run.
type Outcome string

const (
	OutcomeSynced   Outcome = "synced"
	OutcomeUpToDate Outcome = "up-to-date"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// TickerReport is the outcome of one ticker.
type TickerReport struct {
	Result
	Outcome  Outcome
	Attempts int
	Err      error
}

// Summary collects the reports of one batch run.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Reports    []TickerReport
}

// Count returns the number of tickers with outcome o.
func (s Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Reports {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Written returns the number of documents created or updated.
func (s Summary) Written() int {
	n := 0
	for _, r := range s.Reports {
		n += r.Created + r.Updated
	}
	return n
}

// Syncer syncs one ticker.
type Syncer interface {
	Sync(ctx context.Context, ticker string) (Result, error)
}

// Driver runs a Syncer over a ticker list, one ticker at a time.
type Driver struct {
	Syncer Syncer
	// MaxAttempts bounds calls per ticker; only provider failures are retried.
	MaxAttempts int
	Backoff     time.Duration
	Log         logrus.FieldLogger
}

// Run syncs every ticker in order. A failing ticker never stops the run; only context
// cancellation does, in which case the partial summary and ctx.Err() are returned.
func (d *Driver) Run(ctx context.Context, tickers []string) (Summary, error) {
	sum := Summary{StartedAt: time.Now()}
	d.Log.Infof("sync run started for %d tickers", len(tickers))

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			sum.FinishedAt = time.Now()
			return sum, err
		}
		rep := d.syncTicker(ctx, ticker)
		sum.Reports = append(sum.Reports, rep)
		if rep.Err != nil && ctx.Err() != nil {
			sum.FinishedAt = time.Now()
			return sum, ctx.Err()
		}
	}

	sum.FinishedAt = time.Now()
	d.Log.Infof("sync run finished in %v: %d synced, %d up to date, %d skipped, %d failed",
		sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
		sum.Count(OutcomeSynced), sum.Count(OutcomeUpToDate), sum.Count(OutcomeSkipped), sum.Count(OutcomeFailed))
	return sum, nil
}

func (d *Driver) syncTicker(ctx context.Context, ticker string) TickerReport {
	log := d.Log.WithField("ticker", ticker)
	maxAttempts := max(d.MaxAttempts, 1)

	var rep TickerReport
	for attempt := 1; ; attempt++ {
		res, err := d.Syncer.Sync(ctx, ticker)
		rep = TickerReport{Result: res, Attempts: attempt, Err: err}

		var fe *FetchError
		if err == nil || !errors.As(err, &fe) || attempt >= maxAttempts {
			break
		}
		backoff := time.Duration(1<<uint(attempt-1)) * d.Backoff
		log.WithError(err).Warnf("fetch failed (attempt %d/%d), retrying in %v", attempt, maxAttempts, backoff)
		select {
		case <-ctx.Done():
			rep.Err = ctx.Err()
			rep.Outcome = OutcomeFailed
			return rep
		case <-time.After(backoff):
		}
	}

	var (
		fe *FetchError
		de *calculator.DerivationError
		se *store.OpError
	)
	switch err := rep.Err; {
	case err == nil && rep.Created+rep.Updated > 0:
		rep.Outcome = OutcomeSynced
	case err == nil:
		rep.Outcome = OutcomeUpToDate
	case errors.As(err, &fe), errors.As(err, &de), errors.Is(err, ErrNoStartDate):
		rep.Outcome = OutcomeSkipped
		log.WithError(err).Warn("ticker skipped")
	case errors.As(err, &se):
		rep.Outcome = OutcomeFailed
		log.WithError(err).Error("store write failed")
	default:
		rep.Outcome = OutcomeFailed
		log.WithError(err).Error("ticker failed")
	}
	return rep
}
