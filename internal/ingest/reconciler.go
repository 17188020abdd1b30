package ingest

import (
	"context"
	"fmt"

	"StockHistory/internal/model"
	"StockHistory/internal/store"

	"github.com/sirupsen/logrus"
)

// ReconcileStats counts the documents written by one Reconcile call.
type ReconcileStats struct {
	Created int
	Updated int
}

// Reconciler writes a ticker series into the store, one document per date.
//
// Each point is a read followed by a create or update, with no transaction spanning the
// series. Concurrent writers to the same ticker must be serialized by the caller; a lost
// race surfaces as store.ErrExists from the conditional create.
type Reconciler struct {
	Store store.DocumentStore
	Log   logrus.FieldLogger
}

// Reconcile creates or updates every point of series. Running it twice with the same
// series leaves the store as running it once.
func (r *Reconciler) Reconcile(ctx context.Context, series *model.TickerSeries) (ReconcileStats, error) {
	var stats ReconcileStats
	if err := validateSeries(series); err != nil {
		return stats, err
	}
	log := r.Log.WithField("ticker", series.Ticker)

	exists, err := r.Store.CollectionExists(ctx, series.Ticker)
	if err != nil {
		return stats, err
	}
	if !exists {
		if err := r.Store.CreateCollection(ctx, series.Ticker); err != nil {
			return stats, err
		}
		log.Info("created collection")
	}

	for _, p := range series.Points {
		fields := p.Fields()
		doc, err := r.Store.GetDocument(ctx, series.Ticker, p.Date)
		if err != nil {
			return stats, err
		}
		if doc != nil {
			if err := r.Store.UpdateDocument(ctx, doc.Ref, fields); err != nil {
				return stats, err
			}
			stats.Updated++
			log.WithField("date", p.Date).Debug("updated")
			continue
		}
		if err := r.Store.CreateDocument(ctx, series.Ticker, p.Date, fields); err != nil {
			return stats, err
		}
		stats.Created++
		log.WithField("date", p.Date).Debug("created")
	}
	return stats, nil
}

func validateSeries(series *model.TickerSeries) error {
	if series.Ticker == "" {
		return fmt.Errorf("reconcile: empty ticker")
	}
	for i := 1; i < len(series.Points); i++ {
		if series.Points[i].Date <= series.Points[i-1].Date {
			return fmt.Errorf("reconcile %s: dates not strictly increasing at %q", series.Ticker, series.Points[i].Date)
		}
	}
	return nil
}
