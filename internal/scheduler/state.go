package scheduler

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"StockHistory/internal/ingest"
)

// runRecord is the persisted form of the last run summary.
type runRecord struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Reports    []reportRecord `json:"reports"`
}

type reportRecord struct {
	Ticker   string         `json:"ticker"`
	Outcome  ingest.Outcome `json:"outcome"`
	Attempts int            `json:"attempts"`
	Start    string         `json:"start,omitempty"`
	End      string         `json:"end,omitempty"`
	Bars     int            `json:"bars"`
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Error    string         `json:"error,omitempty"`
}

// LoadSummary reads the last run summary. ok is false if the file doesn't exist.
func LoadSummary(filePath string) (sum ingest.Summary, ok bool, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return sum, false, nil
		}
		return sum, false, err
	}
	var rec runRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return sum, false, err
	}
	sum = ingest.Summary{StartedAt: rec.StartedAt, FinishedAt: rec.FinishedAt}
	for _, r := range rec.Reports {
		rep := ingest.TickerReport{
			Result: ingest.Result{
				Ticker: r.Ticker, Start: r.Start, End: r.End,
				Bars: r.Bars, Created: r.Created, Updated: r.Updated,
			},
			Outcome:  r.Outcome,
			Attempts: r.Attempts,
		}
		if r.Error != "" {
			rep.Err = errors.New(r.Error)
		}
		sum.Reports = append(sum.Reports, rep)
	}
	return sum, true, nil
}

// SaveSummary writes sum to a JSON file, replacing it atomically.
func SaveSummary(filePath string, sum ingest.Summary) error {
	rec := runRecord{StartedAt: sum.StartedAt, FinishedAt: sum.FinishedAt, Reports: make([]reportRecord, 0, len(sum.Reports))}
	for _, r := range sum.Reports {
		rr := reportRecord{
			Ticker: r.Ticker, Outcome: r.Outcome, Attempts: r.Attempts,
			Start: r.Start, End: r.End, Bars: r.Bars, Created: r.Created, Updated: r.Updated,
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		rec.Reports = append(rec.Reports, rr)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
