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

// PolygonFetcher implements Gateway using Polygon aggregate bars.
type PolygonFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	// Location is the exchange timezone daily bars are stamped in.
	Location *time.Location
}

func NewPolygonFetcher(baseURL, apiKey string, client *http.Client) *PolygonFetcher {
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &PolygonFetcher{BaseURL: baseURL, APIKey: apiKey, Client: client, Location: loc}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

type polygonAggs struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Results []struct {
		Close     float64 `json:"c"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

func (f *PolygonFetcher) Fetch(ctx context.Context, symbol string, start, end time.Time, _ string) ([]model.PriceBar, error) {
	q := url.Values{}
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	q.Set("apiKey", f.APIKey)
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?%s", f.BaseURL, url.PathEscape(symbol),
		start.Format(model.DayLayout), end.Format(model.DayLayout), q.Encode())

	var aggs polygonAggs
	if err := getJSON(ctx, f.Client, f.Name(), symbol, endpoint, &aggs); err != nil {
		return nil, err
	}
	if aggs.Status == "ERROR" {
		return nil, &ProviderError{Provider: f.Name(), Symbol: symbol, Err: fmt.Errorf("api error: %s", aggs.Error)}
	}

	bars := make([]model.PriceBar, 0, len(aggs.Results))
	for _, r := range aggs.Results {
		bars = append(bars, model.PriceBar{
			Time:  midnight(time.UnixMilli(r.Timestamp), f.Location),
			Close: decimal.NewFromFloat(r.Close),
		})
	}
	return normalizeBars(bars, start, end), nil
}
