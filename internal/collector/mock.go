package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"StockHistory/internal/model"

	"github.com/shopspring/decimal"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	// Bars are the full histories per symbol; Fetch returns the part inside the range.
	Bars map[string][]model.PriceBar
	// Err, if set, fails every call.
	Err error
	// Failures makes the first n calls for a symbol fail with a ProviderError.
	Failures map[string]int

	mu    sync.Mutex
	Calls []MockCall
}

// MockCall records one Fetch invocation.
type MockCall struct {
	Symbol     string
	Start, End time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(_ context.Context, symbol string, start, end time.Time, _ string) ([]model.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Symbol: symbol, Start: start, End: end})
	if m.Err != nil {
		return nil, &ProviderError{Provider: m.Name(), Symbol: symbol, Err: m.Err}
	}
	if m.Failures[symbol] > 0 {
		m.Failures[symbol]--
		return nil, &ProviderError{Provider: m.Name(), Symbol: symbol, StatusCode: 429, Err: errTooManyRequests}
	}
	bars := append([]model.PriceBar(nil), m.Bars[symbol]...)
	return normalizeBars(bars, start, end), nil
}

var errTooManyRequests = errors.New("too many requests")

// DailyBars builds consecutive calendar-day bars starting at first, one per close.
func DailyBars(first time.Time, closes ...float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{Time: first.AddDate(0, 0, i), Close: decimal.NewFromFloat(c)}
	}
	return bars
}
