package fetcher

import (
	"errors"
	"net/http"
	"time"
)

const defaultMaxRedirects = 10

// ErrTooManyRedirects is returned when the redirect hop limit is exceeded.
var ErrTooManyRedirects = errors.New("too many redirects")

// RedirectPolicy returns a CheckRedirect function that follows redirects until
// the number of redirects reaches maxHops, then returns ErrTooManyRedirects.
// When maxHops is <= 0 the default hop limit applies.
func RedirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	if maxHops <= 0 {
		maxHops = defaultMaxRedirects
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// NewClient builds the HTTP client used for feeds and seed pages. Every request
// is bounded by timeout so one unresponsive source cannot stall a run.
func NewClient(timeout time.Duration, maxRedirects int) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: RedirectPolicy(maxRedirects),
	}
}
