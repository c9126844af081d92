package request

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Doer sends a request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ThrottledTransport delays requests so that a shared remote service sees at
// most rps requests per second from one suite run.
type ThrottledTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// NewThrottledTransport wraps base. rps <= 0 disables throttling.
func NewThrottledTransport(base http.RoundTripper, rps float64, burst int) *ThrottledTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &ThrottledTransport{base: base, limiter: rate.NewLimiter(limit, burst)}
}

func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
