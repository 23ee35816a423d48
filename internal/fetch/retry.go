package fetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/logging"
	"github.com/JakeFAU/siteaudit/internal/metrics"
)

// DefaultRetryStatuses are the transient statuses worth another attempt.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryConfig controls exponential backoff. The wait before retry n (1-based)
// is BaseDelay * Multiplier^(n-1).
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	Multiplier    float64
	RetryStatuses []int
}

// DefaultRetryConfig returns 3 retries starting at 1s and doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		Multiplier:    2.0,
		RetryStatuses: DefaultRetryStatuses,
	}
}

type sleeper func(ctx context.Context, d time.Duration) error

// Retrying decorates a Fetcher with retry on transient statuses and timeouts.
type Retrying struct {
	inner    Fetcher
	cfg      RetryConfig
	logger   *zap.Logger
	retrySet map[int]struct{}
	sleep    sleeper
}

// NewRetrying wraps inner. Zero-valued fields of cfg fall back to defaults;
// a negative MaxRetries disables retries.
func NewRetrying(inner Fetcher, cfg RetryConfig, logger *zap.Logger) *Retrying {
	defaults := DefaultRetryConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if len(cfg.RetryStatuses) == 0 {
		cfg.RetryStatuses = defaults.RetryStatuses
	}
	set := make(map[int]struct{}, len(cfg.RetryStatuses))
	for _, code := range cfg.RetryStatuses {
		set[code] = struct{}{}
	}
	return &Retrying{
		inner:    inner,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("fetch.retry"),
		retrySet: set,
		sleep:    sleepWithContext,
	}
}

// Backoff returns the wait before retry n (1-based).
func (r *Retrying) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(n-1)))
}

// Fetch runs the request, retrying up to MaxRetries times. When retries are
// exhausted the last outcome or the last timeout error is returned as is.
func (r *Retrying) Fetch(ctx context.Context, req Request) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, err := r.inner.Fetch(ctx, req)
		reason, retry := r.retryReason(outcome, err)
		if !retry || attempt >= r.cfg.MaxRetries {
			return outcome, err
		}

		delay := r.Backoff(attempt + 1)
		metrics.ObserveRetry(reason)
		r.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.String("reason", reason),
			zap.Int("retry", attempt+1),
			zap.Duration("delay", delay),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return Outcome{}, fmt.Errorf("retry backoff canceled: %w", err)
		}
	}
}

func (r *Retrying) retryReason(outcome Outcome, err error) (string, bool) {
	if err != nil {
		if IsTimeout(err) {
			return "timeout", true
		}
		return "", false
	}
	if _, ok := r.retrySet[outcome.StatusCode]; ok {
		return "status_" + strconv.Itoa(outcome.StatusCode), true
	}
	return "", false
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
