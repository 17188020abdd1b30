package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
	_ "time/tzdata" // exchange timezones in minimal containers

	"StockHistory/internal/model"
)

// Gateway fetches daily bars for one symbol over an inclusive calendar-date range.
// An empty result is not an error.
type Gateway interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.PriceBar, error)
	Name() string
}

// ProviderError reports a failed provider call: network, unknown symbol, auth or rate-limit rejection.
type ProviderError struct {
	Provider   string
	Symbol     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// newHTTPClient builds a client with optional proxy support. wrap, if set, decorates the
// transport (rate limiter and response cache).
func newHTTPClient(proxyURL string, timeout time.Duration, wrap func(http.RoundTripper) http.RoundTripper) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	var rt http.RoundTripper = transport
	if wrap != nil {
		rt = wrap(rt)
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

// getJSON performs a GET and decodes a 200 response into out.
func getJSON(ctx context.Context, client *http.Client, provider, symbol, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProviderError{Provider: provider, Symbol: symbol, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: provider, Symbol: symbol, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: provider, Symbol: symbol, StatusCode: resp.StatusCode, Err: fmt.Errorf("body: %.200s", string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Symbol: symbol, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// normalizeBars sorts bars ascending, keeps the last bar of each calendar date and drops
// bars outside [start, end].
func normalizeBars(bars []model.PriceBar, start, end time.Time) []model.PriceBar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	first := start.Format(model.DayLayout)
	last := end.Format(model.DayLayout)
	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		day := b.Time.Format(model.DayLayout)
		if day < first || day > last {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Format(model.DayLayout) == day {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// midnight returns the start of t's calendar day in loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
