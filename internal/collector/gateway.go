package collector

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"StockHistory/internal/config"

	"github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the gateway for the configured provider. Requests go through the response
// cache, if any, then the rate limiter. The returned closer releases the cache.
func New(cfg *config.Config, log logrus.FieldLogger) (Gateway, io.Closer, error) {
	var closer io.Closer = nopCloser{}
	var cache *CacheTransport
	if path := cfg.Provider.CachePath; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("create cache dir: %w", err)
			}
		}
		ct, err := NewCacheTransport(path, nil, log)
		if err != nil {
			log.WithError(err).Warn("response cache disabled")
		} else {
			cache, closer = ct, ct
		}
	}
	client := newHTTPClient(cfg.Provider.Proxy, cfg.Provider.Timeout, func(base http.RoundTripper) http.RoundTripper {
		limited := NewLimitTransport(base, cfg.Provider.RateLimit.Requests, cfg.Provider.RateLimit.Window)
		if cache == nil {
			return limited
		}
		cache.Base = limited
		return cache
	})

	var g Gateway
	switch cfg.Provider.Name {
	case config.ProviderYFinance:
		g = NewYahooFetcher(cfg.Provider.BaseURL, client)
	case config.ProviderFMP:
		g = NewFMPFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, client)
	case config.ProviderTiingo:
		g = NewTiingoFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, client)
	case config.ProviderPolygon:
		g = NewPolygonFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, client)
	default:
		closer.Close()
		return nil, nil, &config.Error{Field: "provider.name", Err: fmt.Errorf("provider %q has no adapter", cfg.Provider.Name)}
	}
	return g, closer, nil
}
