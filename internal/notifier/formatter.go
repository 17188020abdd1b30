package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"StockHistory/internal/ingest"
)

var outcomeIcons = map[ingest.Outcome]string{
	ingest.OutcomeSynced:   "✅",
	ingest.OutcomeUpToDate: "➖",
	ingest.OutcomeSkipped:  "⚠️",
	ingest.OutcomeFailed:   "❌",
}

// FormatRunSummary renders a batch summary as a Telegram HTML message.
// Synced and up-to-date tickers are only counted; skipped and failed ones are listed.
func FormatRunSummary(sum ingest.Summary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📈 <b>Stock history sync</b> | %s\n\n", sum.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Tickers: %d (%v)\n", len(sum.Reports), sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second)))
	for _, o := range []ingest.Outcome{ingest.OutcomeSynced, ingest.OutcomeUpToDate, ingest.OutcomeSkipped, ingest.OutcomeFailed} {
		b.WriteString(fmt.Sprintf("%s %s: %d\n", outcomeIcons[o], o, sum.Count(o)))
	}
	b.WriteString(fmt.Sprintf("Documents written: %d\n", sum.Written()))

	var problems []ingest.TickerReport
	for _, r := range sum.Reports {
		if r.Outcome == ingest.OutcomeSkipped || r.Outcome == ingest.OutcomeFailed {
			problems = append(problems, r)
		}
	}
	if len(problems) > 0 {
		b.WriteString("\n<b>Problems:</b>\n")
		for _, r := range problems {
			b.WriteString(fmt.Sprintf("  %s <code>%s</code>: %s\n", outcomeIcons[r.Outcome], html.EscapeString(r.Ticker), html.EscapeString(r.Err.Error())))
		}
	}
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "Commands:\n• /sync: run a sync now\n• /status: last run summary"
}
