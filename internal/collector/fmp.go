package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"StockHistory/internal/model"

	"github.com/shopspring/decimal"
)

// FMPFetcher implements Gateway using the Financial Modeling Prep REST API.
type FMPFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewFMPFetcher(baseURL, apiKey string, client *http.Client) *FMPFetcher {
	if baseURL == "" {
		baseURL = "https://financialmodelingprep.com/api/v3"
	}
	return &FMPFetcher{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

func (f *FMPFetcher) Name() string { return "fmp" }

type fmpHistory struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	} `json:"historical"`
}

func (f *FMPFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time, _ string) ([]model.PriceBar, error) {
	q := url.Values{}
	q.Set("from", start.Format(model.DayLayout))
	q.Set("to", end.Format(model.DayLayout))
	q.Set("apikey", f.APIKey)
	endpoint := fmt.Sprintf("%s/historical-price-full/%s?%s", f.BaseURL, url.PathEscape(symbol), q.Encode())

	var hist fmpHistory
	if err := getJSON(ctx, f.Client, f.Name(), symbol, endpoint, &hist); err != nil {
		return nil, err
	}

	bars := make([]model.PriceBar, 0, len(hist.Historical))
	for _, h := range hist.Historical {
		t, err := time.ParseInLocation(model.DayLayout, h.Date, time.UTC)
		if err != nil {
			return nil, &ProviderError{Provider: f.Name(), Symbol: symbol, Err: fmt.Errorf("parse date %q: %w", h.Date, err)}
		}
		bars = append(bars, model.PriceBar{Time: t, Close: decimal.NewFromFloat(h.Close)})
	}
	// FMP returns newest first.
	return normalizeBars(bars, start, end), nil
}
