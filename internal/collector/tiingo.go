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

// TiingoFetcher implements Gateway using the Tiingo end-of-day API.
type TiingoFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewTiingoFetcher(baseURL, token string, client *http.Client) *TiingoFetcher {
	if baseURL == "" {
		baseURL = "https://api.tiingo.com"
	}
	return &TiingoFetcher{BaseURL: baseURL, Token: token, Client: client}
}

func (f *TiingoFetcher) Name() string { return "tiingo" }

type tiingoPrice struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

func (f *TiingoFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time, _ string) ([]model.PriceBar, error) {
	q := url.Values{}
	q.Set("startDate", start.Format(model.DayLayout))
	q.Set("endDate", end.Format(model.DayLayout))
	q.Set("resampleFreq", "daily")
	q.Set("token", f.Token)
	endpoint := fmt.Sprintf("%s/tiingo/daily/%s/prices?%s", f.BaseURL, url.PathEscape(symbol), q.Encode())

	var prices []tiingoPrice
	if err := getJSON(ctx, f.Client, f.Name(), symbol, endpoint, &prices); err != nil {
		return nil, err
	}

	bars := make([]model.PriceBar, 0, len(prices))
	for _, p := range prices {
		t, err := time.Parse(time.RFC3339, p.Date)
		if err != nil {
			return nil, &ProviderError{Provider: f.Name(), Symbol: symbol, Err: fmt.Errorf("parse date %q: %w", p.Date, err)}
		}
		bars = append(bars, model.PriceBar{Time: midnight(t, time.UTC), Close: decimal.NewFromFloat(p.Close)})
	}
	return normalizeBars(bars, start, end), nil
}
