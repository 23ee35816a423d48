package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/siteaudit/internal/metrics"
)

// DefaultUserAgent identifies the auditor to the sites it probes.
const DefaultUserAgent = "siteaudit/0.1 (+https://github.com/JakeFAU/siteaudit)"

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxRedirects = 10
	defaultMaxBodySize  = 10 * 1024 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodySize  int
	MaxRedirects int
	Headers      http.Header
}

// Client implements Fetcher using the Colly collector. It never retries and
// never caches.
type Client struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	return &Client{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// redirectTrail collects hops and the last URL the client was sent to.
type redirectTrail struct {
	hops     []Hop
	finalURL string
}

// Fetch executes a single request using Colly.
func (c *Client) Fetch(ctx context.Context, req Request) (Outcome, error) {
	method := req.method()
	target, err := req.target()
	if err != nil {
		return Outcome{}, &TransportError{URL: req.URL, Err: err}
	}

	var (
		result   Outcome
		fetchErr error
		trail    = &redirectTrail{finalURL: target}
	)
	start := time.Now()
	collector := c.buildCollector(req, trail)
	c.configureCollectorHooks(collector, req, start, trail, &result, &fetchErr)

	if err := c.runCollector(ctx, collector, method, target, &fetchErr); err != nil {
		metrics.ObserveFetch(method, 0, time.Since(start))
		return Outcome{}, &TransportError{URL: target, Err: err}
	}
	metrics.ObserveFetch(method, result.StatusCode, result.Duration)
	return result, nil
}

func (c *Client) buildCollector(req Request, trail *redirectTrail) *colly.Collector {
	collector := colly.NewCollector(colly.Async(false))
	collector.UserAgent = c.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = c.cfg.MaxBodySize
	collector.WithTransport(c.transport)
	collector.SetRequestTimeout(c.cfg.Timeout)

	maxRedirects := c.cfg.MaxRedirects
	// A stopped redirect surfaces as the final outcome, so only followed
	// redirects become hops.
	collector.SetRedirectHandler(func(next *http.Request, via []*http.Request) error {
		if req.NoRedirects || len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		if prior := next.Response; prior != nil {
			trail.hops = append(trail.hops, Hop{
				Status:   prior.StatusCode,
				Location: prior.Header.Get("Location"),
			})
		}
		trail.finalURL = next.URL.String()
		return nil
	})
	return collector
}

func (c *Client) configureCollectorHooks(
	hooks collectorHooks,
	req Request,
	start time.Time,
	trail *redirectTrail,
	result *Outcome,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		c.copyHeaders(req, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = Outcome{
			StatusCode: r.StatusCode,
			URL:        trail.finalURL,
			Redirects:  append([]Hop(nil), trail.hops...),
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (c *Client) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method, target string,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, target, nil, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return visitError(err)
	}
}

// visitError drops colly's revisit report; every fetch uses a fresh
// collector, so a revisit is never a failure.
func visitError(err error) error {
	var visited *colly.AlreadyVisitedError
	if err == nil || errors.As(err, &visited) {
		return nil
	}
	return fmt.Errorf("colly visit failed: %w", err)
}

// copyHeaders applies configured defaults first, then per-request overrides.
func (c *Client) copyHeaders(req Request, r *colly.Request) {
	if r.Headers == nil {
		return
	}
	for key, values := range c.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
	for key, values := range req.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
