// Package fetch implements the HTTP client every probe shares: one GET/HEAD
// with recorded redirect hops, plus a retrying decorator for rate-limited APIs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Request describes a single fetch.
type Request struct {
	URL         string
	Method      string
	NoRedirects bool
	Headers     http.Header
	Query       url.Values
}

// Hop is one redirect response observed while following a chain.
type Hop struct {
	Status   int    `json:"status"`
	Location string `json:"location"`
}

// Outcome is the immutable result of a fetch. Non-2xx statuses are outcomes,
// not errors.
type Outcome struct {
	StatusCode int
	URL        string
	Redirects  []Hop
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the final status is 2xx.
func (o Outcome) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Text returns the body as a string.
func (o Outcome) Text() string {
	return string(o.Body)
}

// Fetcher performs HTTP requests.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Outcome, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (Outcome, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}

// TransportError wraps connection, TLS, and timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsTimeout reports whether err is a TransportError caused by a timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout()
}

// Pacer delays a request until its host may be contacted.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Paced returns a Fetcher that waits on p before delegating to inner.
func Paced(inner Fetcher, p Pacer) Fetcher {
	if p == nil {
		return inner
	}
	return FetcherFunc(func(ctx context.Context, req Request) (Outcome, error) {
		if err := p.Wait(ctx, req.URL); err != nil {
			return Outcome{}, fmt.Errorf("pace %s: %w", req.URL, err)
		}
		return inner.Fetch(ctx, req)
	})
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r Request) target() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url: %q is not absolute", r.URL)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for key, values := range r.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
