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

// YahooFetcher implements Gateway using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a Yahoo Finance fetcher on client.
func NewYahooFetcher(baseURL string, client *http.Client) *YahooFetcher {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooFetcher{
		BaseURL: baseURL,
		Client:  client,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"BRK.B":  "BRK-B",
			"BF.B":   "BF-B",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yfinance" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *YahooFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.PriceBar, error) {
	// Widen by a day on both sides; normalizeBars trims to exchange-local dates.
	q := url.Values{}
	q.Set("period1", fmt.Sprint(start.AddDate(0, 0, -1).Unix()))
	q.Set("period2", fmt.Sprint(end.AddDate(0, 0, 1).Unix()))
	q.Set("interval", interval)
	q.Set("events", "history")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), q.Encode())

	var chart yahooChart
	if err := getJSON(ctx, f.Client, f.Name(), symbol, u, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, &ProviderError{Provider: f.Name(), Symbol: symbol, Err: fmt.Errorf("api error: %s", chart.Chart.Error.Description)}
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	loc := time.UTC
	if tz := result.Meta.ExchangeTimezoneName; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	closes := result.Indicators.Quote[0].Close

	bars := make([]model.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // null bars (holidays, halted sessions)
		}
		bars = append(bars, model.PriceBar{
			Time:  midnight(time.Unix(ts, 0), loc),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}
	return normalizeBars(bars, start, end), nil
}
