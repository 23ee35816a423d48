// Package checks implements the site probes and their registry.
package checks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/config"
	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/logging"
)

// URLSource yields the candidate URL set for a root.
type URLSource interface {
	Discover(ctx context.Context, root string, limit int) []string
}

// PauseFunc blocks between page fetches.
type PauseFunc func(ctx context.Context, d time.Duration)

// Settings are the knobs the probes read.
type Settings struct {
	Limit          int
	Throttle       time.Duration
	ImageThrottle  time.Duration
	MaxImageHead   int
	Pages          config.PagesConfig
	Scoring        config.ScoringConfig
	Checks         config.ChecksConfig
	SampleLimit    int
	LargeImageSize int64
}

// SettingsFromConfig derives probe settings from the loaded configuration.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Limit:          cfg.Crawl.Limit,
		Throttle:       cfg.Crawl.Throttle,
		ImageThrottle:  cfg.Crawl.ImageThrottle,
		MaxImageHead:   cfg.Crawl.MaxImageHead,
		Pages:          cfg.Pages,
		Scoring:        cfg.Scoring,
		Checks:         cfg.Checks,
		SampleLimit:    10,
		LargeImageSize: cfg.Checks.LargeImageBytes,
	}
}

// Deps are the collaborators shared by every probe.
type Deps struct {
	// Pages fetches site pages. It never retries.
	Pages fetch.Fetcher
	// Scoring fetches from the PageSpeed Insights API and is expected to retry.
	Scoring fetch.Fetcher
	URLs    URLSource
	// Pause runs between crawl page fetches. Nil disables pausing.
	Pause PauseFunc
	Now   func() time.Time
}

// Env binds settings and collaborators for one run.
type Env struct {
	deps     Deps
	settings Settings
	logger   *zap.Logger

	mu        sync.Mutex
	discovery map[string][]string
}

// NewEnv builds an Env.
func NewEnv(deps Deps, settings Settings, logger *zap.Logger) *Env {
	if deps.Pause == nil {
		deps.Pause = func(context.Context, time.Duration) {}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Scoring == nil {
		deps.Scoring = deps.Pages
	}
	if settings.SampleLimit <= 0 {
		settings.SampleLimit = 10
	}
	if settings.LargeImageSize <= 0 {
		settings.LargeImageSize = 500_000
	}
	return &Env{
		deps:      deps,
		settings:  settings,
		logger:    logging.OrNop(logger).Named("checks"),
		discovery: make(map[string][]string),
	}
}

// candidates returns the discovered URL set for root. Discovery runs once per
// root and the result is shared by the crawl probes.
func (e *Env) candidates(ctx context.Context, root string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if urls, ok := e.discovery[root]; ok {
		return urls
	}
	var urls []string
	if e.deps.URLs != nil {
		urls = e.deps.URLs.Discover(ctx, root, e.settings.Limit)
	}
	if len(urls) == 0 {
		urls = []string{root}
	}
	e.logger.Debug("candidate urls", zap.String("root", root), zap.Int("count", len(urls)))
	if ctx.Err() == nil {
		e.discovery[root] = urls
	}
	return urls
}

// Registry returns every probe in its fixed order.
func (e *Env) Registry() audit.Registry {
	return audit.Registry{
		{Name: "meta_tags_coverage", Check: audit.CheckFunc(e.metaTags)},
		{Name: "headings_h1", Check: audit.CheckFunc(e.headingsH1)},
		{Name: "canonical_self_reference", Check: audit.CheckFunc(e.canonicalSelfReference)},
		{Name: "redirects_core", Check: audit.CheckFunc(e.redirectsCore), Input: audit.InputRaw},
		{Name: "trailing_slash_consistency", Check: audit.CheckFunc(e.trailingSlash)},
		{Name: "breadcrumbs_presence", Check: audit.CheckFunc(e.breadcrumbs)},
		{Name: "images_weight_webp", Check: audit.CheckFunc(e.imagesWeight)},
		{Name: "schema_pages", Check: audit.CheckFunc(e.schemaPages)},
		{Name: "blogpost_headings", Check: audit.CheckFunc(e.blogpostHeadings)},
		{Name: "home_paragraphs", Check: audit.CheckFunc(e.homeParagraphs)},
		{Name: "clickable_elements", Check: audit.CheckFunc(e.clickableElements)},
		{Name: "nofollow_links_check", Check: audit.CheckFunc(e.nofollowLinks)},
		{Name: "blog_author", Check: audit.CheckFunc(e.blogAuthor)},
		{Name: "alt_tags", Check: audit.CheckFunc(e.altTags)},
		{Name: "pagination_title", Check: audit.CheckFunc(e.paginationTitle)},
		{Name: "lang_dir_in_url", Check: audit.CheckFunc(e.langDirInURL)},
		{Name: "blogpost_rating", Check: audit.CheckFunc(e.blogpostRating)},
		{Name: "psi", Check: audit.CheckFunc(e.pageSpeed)},
		{Name: "webp_images", Check: audit.CheckFunc(e.webpImages)},
		{Name: "faq", Check: audit.CheckFunc(e.faq)},
		{Name: "contact_form_under_post", Check: audit.CheckFunc(e.contactFormUnderPost)},
		{Name: "cache_headers", Check: audit.CheckFunc(e.cacheHeaders)},
		{Name: "blog_exists", Check: audit.CheckFunc(e.blogExists)},
		{Name: "error_page_404", Check: audit.CheckFunc(e.errorPage404)},
		{Name: "footer_year", Check: audit.CheckFunc(e.footerYear)},
	}
}
