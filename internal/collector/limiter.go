package collector

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// LimitTransport throttles outgoing requests to a fixed number per window. It sits below
// the response cache, so cache hits don't consume tokens.
type LimitTransport struct {
	Base    http.RoundTripper
	limiter *rate.Limiter
}

// NewLimitTransport allows at most requests round trips per window, with bursts up to
// requests. A non-positive requests or window disables throttling.
func NewLimitTransport(base http.RoundTripper, requests int, window time.Duration) *LimitTransport {
	if requests <= 0 || window <= 0 {
		return &LimitTransport{Base: base, limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	every := window / time.Duration(requests)
	return &LimitTransport{Base: base, limiter: rate.NewLimiter(rate.Every(every), requests)}
}

func (l *LimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := l.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return l.Base.RoundTrip(req)
}
