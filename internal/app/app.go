// Package app builds the long-lived services an audit run needs from the
// loaded configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/checks"
	"github.com/JakeFAU/siteaudit/internal/clock/system"
	"github.com/JakeFAU/siteaudit/internal/config"
	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/hash/sha256"
	"github.com/JakeFAU/siteaudit/internal/id/uuid"
	"github.com/JakeFAU/siteaudit/internal/logging"
	"github.com/JakeFAU/siteaudit/internal/metrics"
	"github.com/JakeFAU/siteaudit/internal/policy/ratelimit"
	"github.com/JakeFAU/siteaudit/internal/report"
	"github.com/JakeFAU/siteaudit/internal/sitemap"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// App holds the services shared by one CLI invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    audit.Clock
	ids      IDGenerator
	registry audit.Registry
	sinks    report.Multi
	closers  []func() error
}

// services lets tests replace the network-facing collaborators.
type services struct {
	pages   fetch.Fetcher
	scoring fetch.Fetcher
	clock   audit.Clock
	ids     IDGenerator
	sinks   report.Multi
}

// New creates an App from cfg. It fails fast when a configured sink cannot be
// initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	return build(ctx, cfg, logger, services{})
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, svc services) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{cfg: cfg, logger: logger, clock: svc.clock, ids: svc.ids}
	if a.clock == nil {
		a.clock = system.New()
	}
	if a.ids == nil {
		a.ids = uuid.New()
	}

	pages, pause := a.pageFetcher(svc.pages)
	scoring := svc.scoring
	if scoring == nil {
		scoring = a.scoringFetcher()
	}

	env := checks.NewEnv(checks.Deps{
		Pages:   pages,
		Scoring: scoring,
		URLs: sitemap.New(pages, sitemap.Config{
			Sitemaps: cfg.Crawl.Sitemaps,
			Extra:    cfg.Crawl.ExtraURLs,
			MaxDepth: cfg.Crawl.MaxSitemapDepth,
		}, logger),
		Pause: pause,
		Now:   a.clock.Now,
	}, checks.SettingsFromConfig(cfg), logger)

	a.registry = env.Registry().Without(cfg.Checks.Disabled...)
	if err := a.registry.Validate(); err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	if svc.sinks != nil {
		a.sinks = svc.sinks
	} else if err := a.openSinks(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("audit services initialized",
		zap.Int("checks", len(a.registry)),
		zap.Int("sinks", len(a.sinks)),
		zap.Int("parallelism", cfg.Orchestrator.Parallelism),
	)
	return a, nil
}

// pageFetcher returns the page client and the pause used between crawl
// fetches. With parallel checks a per-host limiter replaces the pause so
// concurrent probes share one budget per site.
func (a *App) pageFetcher(override fetch.Fetcher) (fetch.Fetcher, checks.PauseFunc) {
	pages := override
	if pages == nil {
		pages = fetch.New(fetch.Config{
			UserAgent:    a.cfg.Fetch.UserAgent,
			Timeout:      a.cfg.Fetch.Timeout,
			MaxBodySize:  a.cfg.Fetch.MaxBodyBytes,
			MaxRedirects: a.cfg.Fetch.MaxRedirects,
			Headers:      headerOf(a.cfg.Fetch.Headers),
		})
	}
	if a.cfg.Orchestrator.Parallelism > 1 {
		limiter := ratelimit.New(ratelimit.Config{Interval: a.cfg.Crawl.Throttle})
		return fetch.Paced(pages, limiter), nil
	}
	return pages, ratelimit.Pause
}

func (a *App) scoringFetcher() fetch.Fetcher {
	retries := a.cfg.Scoring.MaxRetries
	if retries == 0 {
		retries = -1
	}
	client := fetch.New(fetch.Config{
		UserAgent:    a.cfg.Fetch.UserAgent,
		Timeout:      a.cfg.Scoring.Timeout,
		MaxBodySize:  a.cfg.Fetch.MaxBodyBytes,
		MaxRedirects: a.cfg.Fetch.MaxRedirects,
	})
	return fetch.NewRetrying(client, fetch.RetryConfig{
		MaxRetries:    retries,
		BaseDelay:     a.cfg.Scoring.BaseDelay,
		Multiplier:    a.cfg.Scoring.Multiplier,
		RetryStatuses: fetch.DefaultRetryStatuses,
	}, a.logger)
}

// openSinks wires the local sink plus every configured remote sink. Pub/Sub
// goes last so its summary carries the other locations.
func (a *App) openSinks(ctx context.Context) error {
	r := a.cfg.Report
	local, err := report.NewLocalSink(r.Dir)
	if err != nil {
		return fmt.Errorf("init local sink: %w", err)
	}
	a.sinks = append(a.sinks, local)

	if r.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		sink, err := report.NewGCSSink(client, r.GCSBucket, r.GCSPrefix)
		if err != nil {
			return fmt.Errorf("init gcs sink: %w", err)
		}
		a.logger.Info("using gcs sink", zap.String("bucket", r.GCSBucket))
		a.sinks = append(a.sinks, sink)
	}

	if r.PostgresDSN != "" {
		sink, err := report.NewPostgresSink(ctx, report.PostgresConfig{
			DSN:          r.PostgresDSN,
			RunsTable:    r.PostgresRuns,
			ResultsTable: r.PostgresTable,
			MaxConns:     4,
		})
		if err != nil {
			return fmt.Errorf("init postgres sink: %w", err)
		}
		a.closers = append(a.closers, func() error { sink.Close(); return nil })
		a.logger.Info("using postgres sink", zap.String("table", r.PostgresTable))
		a.sinks = append(a.sinks, sink)
	}

	if r.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, r.PubSubProject)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		topic := client.Topic(r.PubSubTopic)
		a.closers = append(a.closers, func() error { topic.Stop(); return nil })
		sink, err := report.NewPubSubSink(topic, sha256.New())
		if err != nil {
			return fmt.Errorf("init pubsub sink: %w", err)
		}
		a.logger.Info("using pubsub sink", zap.String("topic", r.PubSubTopic))
		a.sinks = append(a.sinks, sink)
	}
	return nil
}

// Registry returns the enabled checks in run order.
func (a *App) Registry() audit.Registry {
	return a.registry
}

// Run audits input and persists the report. Sink and metrics failures are
// logged and do not fail the run; the returned Run lists the locations that
// were written.
func (a *App) Run(ctx context.Context, input string, observer audit.Observer, pretty bool) (report.Run, error) {
	root, err := urlnorm.EnsureRoot(input)
	if err != nil {
		return report.Run{}, fmt.Errorf("invalid target: %w", err)
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return report.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	started := a.clock.Now()
	logger := a.logger.With(zap.String("run_id", runID), zap.String("root", root))
	logger.Info("audit started", zap.Int("checks", len(a.registry)))

	orch := audit.NewOrchestrator(audit.Options{
		Parallelism: a.cfg.Orchestrator.Parallelism,
		Observer:    observer,
		Clock:       a.clock,
	}, logger)
	results := orch.RunAll(ctx, a.registry, audit.Target{Root: root, Raw: input})

	run, err := report.NewRun(runID, root, started, results, pretty)
	if err != nil {
		return report.Run{}, err
	}

	locations, err := a.sinks.SaveAll(ctx, run)
	if err != nil {
		logger.Warn("report sink failed", zap.Error(err))
	}
	run.Locations = locations

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logger.Warn("metrics textfile export failed", zap.String("path", path), zap.Error(err))
		}
	}

	logger.Info("audit finished",
		zap.String("overall", string(run.Overall)),
		zap.Int("exit_code", run.ExitCode),
		zap.Duration("elapsed", a.clock.Now().Sub(started)),
		zap.Strings("locations", run.Locations),
	)
	return run, nil
}

// Close releases remote clients in reverse order of creation and flushes the
// logger.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func headerOf(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
