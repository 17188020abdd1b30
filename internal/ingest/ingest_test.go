package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"StockHistory/internal/calculator"
	"StockHistory/internal/collector"
	"StockHistory/internal/model"
	"StockHistory/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newOrchestrator(st store.DocumentStore, gw collector.Gateway, now time.Time) *Orchestrator {
	log, _ := test.NewNullLogger()
	return &Orchestrator{
		Gateway:    gw,
		Resolver:   &Resolver{Store: st, BackfillDate: "2024-03-01", Log: log},
		Reconciler: &Reconciler{Store: st, Log: log},
		Interval:   "1d",
		Now:        func() time.Time { return now },
		Log:        log,
	}
}

func seed(t *testing.T, st store.DocumentStore, ticker string, dates ...string) {
	t.Helper()
	for _, d := range dates {
		if err := st.CreateDocument(context.Background(), ticker, d, map[string]any{model.FieldDate: d, model.FieldClosingPrice: 1.0}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	r := &Resolver{Store: st, BackfillDate: "2024-02-01", Log: log}

	got, err := r.Resolve(ctx, "NEW")
	if err != nil {
		t.Fatal(err)
	}
	if got.Date != "2024-02-01" || !got.NewTicker {
		t.Errorf("new ticker: got %+v", got)
	}

	seed(t, st, "AAPL", "2024-03-01 00:00:00-0500", "2024-03-05 00:00:00-0500", "2024-03-04 00:00:00-0500")
	got, err = r.Resolve(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if got.Date != "2024-03-05" || got.NewTicker || got.Latest != "2024-03-05 00:00:00-0500" {
		t.Errorf("existing ticker: got %+v, want 2024-03-05", got)
	}

	if err := st.CreateCollection(ctx, "EMPTY"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(ctx, "EMPTY"); !errors.Is(err, ErrNoStartDate) {
		t.Errorf("empty collection: got %v, want ErrNoStartDate", err)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	r := &Reconciler{Store: st, Log: log}

	series, err := calculator.DeriveSeries("AAPL", collector.DailyBars(march1, 100, 110, 99))
	if err != nil {
		t.Fatal(err)
	}
	first, err := r.Reconcile(ctx, series)
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 3 || first.Updated != 0 {
		t.Errorf("first run: %+v", first)
	}
	before, _ := st.ListDocuments(ctx, "AAPL")

	second, err := r.Reconcile(ctx, series)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Updated != 3 {
		t.Errorf("second run: %+v", second)
	}
	after, _ := st.ListDocuments(ctx, "AAPL")

	if len(before) != len(after) {
		t.Fatalf("document count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Ref != after[i].Ref || len(before[i].Fields) != len(after[i].Fields) {
			t.Errorf("doc %d changed: %+v -> %+v", i, before[i], after[i])
		}
		for k, v := range before[i].Fields {
			if after[i].Fields[k] != v {
				t.Errorf("doc %s field %s: %v -> %v", before[i].Ref, k, v, after[i].Fields[k])
			}
		}
	}
}

func TestReconcileRejectsUnorderedSeries(t *testing.T) {
	log, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	r := &Reconciler{Store: st, Log: log}
	series := &model.TickerSeries{Ticker: "AAPL", Points: []model.PricePoint{
		{Date: "2024-03-02 00:00:00+0000"},
		{Date: "2024-03-01 00:00:00+0000"},
	}}
	if _, err := r.Reconcile(context.Background(), series); err == nil {
		t.Fatal("expected error")
	}
	if st.Writes != 0 {
		t.Errorf("writes = %d, want 0", st.Writes)
	}
}

func TestSyncNewTickerThenIncrement(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	gw := &collector.MockFetcher{Bars: map[string][]model.PriceBar{
		"AAPL": collector.DailyBars(march1, 100, 110, 99, 108.9, 120, 121, 122),
	}}

	o := newOrchestrator(st, gw, march1.AddDate(0, 0, 4))
	res, err := o.Sync(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !res.NewTicker || res.Start != "2024-03-01" || res.End != "2024-03-05" || res.Created != 5 {
		t.Errorf("first sync: %+v", res)
	}

	o.Now = func() time.Time { return march1.AddDate(0, 0, 6) }
	res, err = o.Sync(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if res.Start != "2024-03-05" || res.Bars != 3 || res.Updated != 1 || res.Created != 2 {
		t.Errorf("second sync: %+v", res)
	}

	// The boundary day keeps its metrics from the first run and gets the refetched close.
	doc, err := st.GetDocument(ctx, "AAPL", "2024-03-05 00:00:00+0000")
	if err != nil || doc == nil {
		t.Fatalf("boundary doc: %v %v", doc, err)
	}
	if _, ok := doc.Fields[model.FieldReturns]; !ok {
		t.Errorf("boundary doc lost returns: %v", doc.Fields)
	}
	if got := doc.Fields[model.FieldClosingPrice]; got != 120.0 {
		t.Errorf("boundary close = %v, want 120", got)
	}

	// The first point of an incremental batch starts a new chain.
	doc, _ = st.GetDocument(ctx, "AAPL", "2024-03-06 00:00:00+0000")
	if got := doc.Fields[model.FieldPortfolioOf1000]; got == nil {
		t.Errorf("missing portfolio on 03-06: %v", doc.Fields)
	}
	docs, _ := st.ListDocuments(ctx, "AAPL")
	if len(docs) != 7 {
		t.Errorf("documents = %d, want 7", len(docs))
	}
}

func TestSyncNoBars(t *testing.T) {
	st := store.NewMemoryStore()
	o := newOrchestrator(st, &collector.MockFetcher{}, march1)
	res, err := o.Sync(context.Background(), "DELISTED")
	if err != nil {
		t.Fatal(err)
	}
	if res.Bars != 0 || st.Writes != 0 {
		t.Errorf("got %+v with %d writes", res, st.Writes)
	}
	if ok, _ := st.CollectionExists(context.Background(), "DELISTED"); ok {
		t.Error("collection created for ticker without data")
	}
}

func TestSyncFetchError(t *testing.T) {
	st := store.NewMemoryStore()
	o := newOrchestrator(st, &collector.MockFetcher{Err: errors.New("boom")}, march1)
	_, err := o.Sync(context.Background(), "AAPL")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Ticker != "AAPL" {
		t.Fatalf("got %v, want FetchError for AAPL", err)
	}
	var pe *collector.ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("provider error not wrapped: %v", err)
	}
}

func TestSyncDerivationErrorWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	gw := &collector.MockFetcher{Bars: map[string][]model.PriceBar{"BAD": collector.DailyBars(march1, 0, 5)}}
	o := newOrchestrator(st, gw, march1.AddDate(0, 0, 1))
	_, err := o.Sync(context.Background(), "BAD")
	var de *calculator.DerivationError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DerivationError", err)
	}
	if st.Writes != 0 {
		t.Errorf("writes = %d, want 0", st.Writes)
	}
}

func TestSyncPrintsSeries(t *testing.T) {
	var buf bytes.Buffer
	gw := &collector.MockFetcher{Bars: map[string][]model.PriceBar{"AAPL": collector.DailyBars(march1, 100, 110)}}
	o := newOrchestrator(store.NewMemoryStore(), gw, march1.AddDate(0, 0, 1))
	o.Console = &buf
	if _, err := o.Sync(context.Background(), "AAPL"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"ticker": "AAPL"`, `"start_date": "2024-03-01"`, `"end_date": "2024-03-02"`, `"stock_price_data"`, `"2024-03-02 00:00:00+0000"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %s:\n%s", want, buf.String())
		}
	}
}

type scriptedSyncer struct {
	errs  map[string][]error
	calls map[string]int
}

func (s *scriptedSyncer) Sync(_ context.Context, ticker string) (Result, error) {
	n := s.calls[ticker]
	s.calls[ticker]++
	if n < len(s.errs[ticker]) && s.errs[ticker][n] != nil {
		return Result{Ticker: ticker}, s.errs[ticker][n]
	}
	return Result{Ticker: ticker, Created: 1}, nil
}

func TestDriverRun(t *testing.T) {
	fetchErr := &FetchError{Ticker: "X", Err: errors.New("timeout")}
	syncer := &scriptedSyncer{
		errs: map[string][]error{
			"FLAKY":  {fetchErr},
			"DOWN":   {fetchErr, fetchErr, fetchErr},
			"EMPTY":  {ErrNoStartDate},
			"BROKEN": {&calculator.DerivationError{Index: 1, Reason: "zero previous close"}},
			"DB":     {&store.OpError{Op: "create", Collection: "DB", Err: errors.New("disk full")}},
		},
		calls: map[string]int{},
	}
	log, hook := test.NewNullLogger()
	d := &Driver{Syncer: syncer, MaxAttempts: 3, Backoff: time.Millisecond, Log: log}

	sum, err := d.Run(context.Background(), []string{"AAPL", "FLAKY", "DOWN", "EMPTY", "BROKEN", "DB"})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]struct {
		outcome  Outcome
		attempts int
	}{
		"AAPL":   {OutcomeSynced, 1},
		"FLAKY":  {OutcomeSynced, 2},
		"DOWN":   {OutcomeSkipped, 3},
		"EMPTY":  {OutcomeSkipped, 1},
		"BROKEN": {OutcomeSkipped, 1},
		"DB":     {OutcomeFailed, 1},
	}
	if len(sum.Reports) != len(want) {
		t.Fatalf("reports = %d, want %d", len(sum.Reports), len(want))
	}
	for _, rep := range sum.Reports {
		w := want[rep.Ticker]
		if rep.Outcome != w.outcome || rep.Attempts != w.attempts {
			t.Errorf("%s: outcome %s after %d attempts, want %s after %d", rep.Ticker, rep.Outcome, rep.Attempts, w.outcome, w.attempts)
		}
	}
	if sum.Count(OutcomeSkipped) != 3 || sum.Count(OutcomeFailed) != 1 {
		t.Errorf("counts: skipped %d failed %d", sum.Count(OutcomeSkipped), sum.Count(OutcomeFailed))
	}

	var errorsLogged int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	if errorsLogged != 1 {
		t.Errorf("error entries = %d, want 1", errorsLogged)
	}
}

func TestDriverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log, _ := test.NewNullLogger()
	d := &Driver{Syncer: &scriptedSyncer{calls: map[string]int{}}, Log: log}
	sum, err := d.Run(ctx, []string{"AAPL", "MSFT"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(sum.Reports) != 0 {
		t.Errorf("reports = %d, want 0", len(sum.Reports))
	}
}

func TestDriverCancelDuringBackoff(t *testing.T) {
	syncer := &scriptedSyncer{
		errs:  map[string][]error{"AAPL": {&FetchError{Ticker: "AAPL", Err: errors.New("timeout")}}},
		calls: map[string]int{},
	}
	log, _ := test.NewNullLogger()
	d := &Driver{Syncer: syncer, MaxAttempts: 3, Backoff: time.Hour, Log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sum, err := d.Run(ctx, []string{"AAPL", "MSFT"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	if len(sum.Reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(sum.Reports))
	}
	if rep := sum.Reports[0]; rep.Outcome != OutcomeFailed || rep.Attempts != 1 {
		t.Errorf("report = %+v, want failed after 1 attempt", rep)
	}
	if sum.Count(OutcomeFailed) != len(sum.Reports) {
		t.Errorf("report without outcome: %+v", sum.Reports)
	}
}

func TestSyncProviderSwitchKeepsOneDocumentPerDay(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemoryStore()

	exchange := &collector.MockFetcher{Bars: map[string][]model.PriceBar{
		"AAPL": collector.DailyBars(time.Date(2024, 3, 1, 0, 0, 0, 0, ny), 100, 110, 99, 108.9, 120),
	}}
	o := newOrchestrator(st, exchange, march1.AddDate(0, 0, 4))
	if _, err := o.Sync(ctx, "AAPL"); err != nil {
		t.Fatal(err)
	}

	utc := &collector.MockFetcher{Bars: map[string][]model.PriceBar{
		"AAPL": collector.DailyBars(march1, 100, 110, 99, 108.9, 125, 126, 127),
	}}
	o.Gateway = utc
	o.Now = func() time.Time { return march1.AddDate(0, 0, 6) }
	res, err := o.Sync(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || res.Created != 2 {
		t.Errorf("second sync: %+v", res)
	}

	docs, err := st.ListDocuments(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	days := map[string]int{}
	for _, d := range docs {
		days[model.Day(d.Ref.ID)]++
	}
	if len(docs) != 7 || len(days) != 7 {
		t.Errorf("documents = %d over %d days, want 7 and 7", len(docs), len(days))
	}

	boundary, _ := st.GetDocument(ctx, "AAPL", "2024-03-05 00:00:00-0500")
	if boundary == nil {
		t.Fatal("boundary document missing")
	}
	if got := boundary.Fields[model.FieldClosingPrice]; got != 125.0 {
		t.Errorf("boundary close = %v, want 125", got)
	}
	if got := boundary.Fields[model.FieldDate]; got != "2024-03-05 00:00:00-0500" {
		t.Errorf("boundary date field = %v", got)
	}
}
