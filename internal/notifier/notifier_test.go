package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"StockHistory/internal/ingest"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestFormatRunSummary(t *testing.T) {
	start := time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC)
	sum := ingest.Summary{
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Reports: []ingest.TickerReport{
			{Result: ingest.Result{Ticker: "AAPL", Created: 3, Updated: 1}, Outcome: ingest.OutcomeSynced},
			{Result: ingest.Result{Ticker: "MSFT"}, Outcome: ingest.OutcomeUpToDate},
			{Result: ingest.Result{Ticker: "X<Y"}, Outcome: ingest.OutcomeSkipped, Err: errors.New("fetch X<Y: 404")},
		},
	}
	got := FormatRunSummary(sum)
	for _, want := range []string{
		"2024-03-05 22:00",
		"Tickers: 3 (42s)",
		"synced: 1",
		"up-to-date: 1",
		"skipped: 1",
		"failed: 0",
		"Documents written: 4",
		"<code>X&lt;Y</code>: fetch X&lt;Y: 404",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "AAPL") {
		t.Errorf("synced tickers should not be listed:\n%s", got)
	}
}

func newTestNotifier(url string) *TelegramNotifier {
	log, _ := test.NewNullLogger()
	n := NewTelegramNotifier("TOKEN", "42", "", log)
	n.APIBase = url
	return n
}

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).Send(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatal(err)
	}
	if got["chat_id"] != "42" || got["text"] != "<b>hi</b>" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
}

func TestSendWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	if err := n.SendWithRetry(context.Background(), "hi", 3, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}

	calls.Store(-100)
	err := n.SendWithRetry(context.Background(), "hi", 1, time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "all 2 retries exhausted") {
		t.Errorf("got %v", err)
	}
}

func TestPollingDispatchesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls atomic.Int32
	replies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if polls.Add(1) == 1 {
				w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /status "}}]}`))
				return
			}
			if r.URL.Query().Get("offset") != "8" {
				t.Errorf("offset = %s, want 8", r.URL.Query().Get("offset"))
			}
			<-ctx.Done()
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			replies <- body["text"]
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	n := newTestNotifier(srv.URL)
	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(_ context.Context, cmd string) string { return "reply to " + cmd })
		close(done)
	}()

	select {
	case got := <-replies:
		if got != "reply to /status" {
			t.Errorf("reply = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
}
