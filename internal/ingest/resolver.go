package ingest

import (
	"context"
	"fmt"

	"StockHistory/internal/model"
	"StockHistory/internal/store"

	"github.com/sirupsen/logrus"
)

// StartDate is the lower bound of the next fetch for a ticker.
type StartDate struct {
	Date string // YYYY-MM-DD
	// NewTicker is set when no collection exists yet; the reconciler creates it on first write.
	NewTicker bool
	// Latest is the full date key of the most recent persisted document, empty for a new ticker.
	Latest string
}

// Resolver derives the next fetch start from persisted state.
type Resolver struct {
	Store        store.DocumentStore
	BackfillDate string
	Log          logrus.FieldLogger
}

// Resolve returns BackfillDate for a ticker without a collection, the most recent persisted
// date otherwise. The latest date is returned as-is: the next fetch includes it again and the
// reconciler refreshes that document.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (StartDate, error) {
	exists, err := r.Store.CollectionExists(ctx, ticker)
	if err != nil {
		return StartDate{}, err
	}
	if !exists {
		r.Log.WithField("ticker", ticker).Infof("new ticker, backfilling from %s", r.BackfillDate)
		return StartDate{Date: r.BackfillDate, NewTicker: true}, nil
	}

	latest, err := r.Store.QueryLatest(ctx, ticker, model.FieldDate)
	if err != nil {
		return StartDate{}, err
	}
	if latest == nil {
		return StartDate{}, fmt.Errorf("%s: empty collection: %w", ticker, ErrNoStartDate)
	}
	date, ok := latest.Fields[model.FieldDate].(string)
	if !ok || len(date) < len(model.DayLayout) {
		return StartDate{}, fmt.Errorf("%s: latest document %s has date %v: %w", ticker, latest.Ref.ID, latest.Fields[model.FieldDate], ErrNoStartDate)
	}
	return StartDate{Date: model.Day(date), Latest: date}, nil
}
