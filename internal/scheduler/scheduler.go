package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StockHistory/internal/ingest"
	"StockHistory/internal/notifier"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrRunning is returned when a sync is requested while another one is in progress.
var ErrRunning = errors.New("sync already running")

// Sender delivers run summaries. *notifier.TelegramNotifier implements it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int, backoff time.Duration) error
}

// Scheduler runs the batch sync on a cron schedule and on demand.
type Scheduler struct {
	Cron      *cron.Cron
	Driver    *ingest.Driver
	// Tickers is called at the start of every run so list edits apply without a restart.
	Tickers   func() ([]string, error)
	Notifier  Sender
	// StateFile, if set, keeps the last run summary across restarts.
	StateFile string
	Log       logrus.FieldLogger

	mu      sync.Mutex
	running bool
	last    *ingest.Summary
}

// NewScheduler creates a Scheduler. sender may be nil.
func NewScheduler(driver *ingest.Driver, tickers func() ([]string, error), sender Sender, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cron.PrintfLogger(log))),
		Driver:   driver,
		Tickers:  tickers,
		Notifier: sender,
		Log:      log,
	}
}

// Register schedules the sync on spec, a 6-field cron expression with seconds.
func (s *Scheduler) Register(ctx context.Context, spec string) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.RunAndLog(ctx, "scheduled sync") }); err != nil {
		return fmt.Errorf("register sync task %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunNow runs one batch sync over the current ticker list and notifies the summary.
// It returns ErrRunning instead of starting a second concurrent run.
func (s *Scheduler) RunNow(ctx context.Context) (ingest.Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Log.Warn("sync requested while another run is in progress")
		return ingest.Summary{}, ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	tickers, err := s.Tickers()
	if err != nil {
		s.trySend(ctx, fmt.Sprintf("❌ ticker list: %v", err))
		return ingest.Summary{}, err
	}

	sum, err := s.Driver.Run(ctx, tickers)
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
	if s.StateFile != "" {
		if err := SaveSummary(s.StateFile, sum); err != nil {
			s.Log.WithError(err).Warn("save run summary")
		}
	}
	if err != nil {
		return sum, err
	}
	s.trySend(ctx, notifier.FormatRunSummary(sum))
	return sum, nil
}

// Restore loads the last run summary from StateFile.
func (s *Scheduler) Restore() error {
	if s.StateFile == "" {
		return nil
	}
	sum, ok, err := LoadSummary(s.StateFile)
	if err != nil || !ok {
		return err
	}
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()
	return nil
}

// RunAndLog runs RunNow and logs its error under label. An overlapping run is not an error.
func (s *Scheduler) RunAndLog(ctx context.Context, label string) {
	if _, err := s.RunNow(ctx); err != nil && !errors.Is(err, ErrRunning) {
		s.Log.WithError(err).Error(label)
	}
}

// LastSummary returns the summary of the last finished run.
func (s *Scheduler) LastSummary() (ingest.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return ingest.Summary{}, false
	}
	return *s.last, true
}

// HandleCommand processes a bot command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/sync":
		if _, err := s.RunNow(ctx); err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		// The summary has already been sent.
		return ""
	case "/status":
		sum, ok := s.LastSummary()
		if !ok {
			return "No sync has run yet."
		}
		return notifier.FormatRunSummary(sum)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3, time.Second); err != nil {
		s.Log.WithError(err).Error("send notification")
	}
}
