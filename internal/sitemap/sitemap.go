// Package sitemap discovers candidate page URLs from XML sitemaps.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/logging"
	"github.com/JakeFAU/siteaudit/internal/metrics"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

const defaultMaxDepth = 5

// Location paths match on local names so prefixed documents such as
// <sm:urlset xmlns:sm="..."> resolve like unprefixed ones.
const (
	indexLocs  = "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']"
	urlsetLocs = "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']"
)

// Well-known sitemap locations probed when none are configured.
var wellKnownPaths = []string{"/sitemap.xml", "/sitemap_index.xml"}

// Config controls discovery.
type Config struct {
	// Sitemaps replaces auto-discovery when non-empty. Relative entries are
	// resolved against the root.
	Sitemaps []string
	// Extra URLs are appended after sitemap URLs.
	Extra []string
	// MaxDepth bounds sitemap index recursion.
	MaxDepth int
}

// Crawler expands sitemaps into a bounded, ordered URL list.
type Crawler struct {
	fetcher fetch.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Crawler.
func New(fetcher fetch.Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("sitemap"),
	}
}

// collector accumulates unique URLs up to a limit.
type collector struct {
	limit   int
	seen    map[string]struct{}
	urls    []string
	visited map[string]struct{}
}

func newCollector(limit int) *collector {
	return &collector{
		limit:   limit,
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

func (c *collector) full() bool {
	return len(c.urls) >= c.limit
}

func (c *collector) add(u string) {
	if u == "" || c.full() {
		return
	}
	if _, ok := c.seen[u]; ok {
		return
	}
	c.seen[u] = struct{}{}
	c.urls = append(c.urls, u)
}

// Discover returns at most limit unique URLs and never an empty list: when
// nothing is found the root itself is returned.
func (c *Crawler) Discover(ctx context.Context, root string, limit int) []string {
	if limit <= 0 {
		return []string{root}
	}
	acc := newCollector(limit)

	for _, entry := range c.entryPoints(ctx, root) {
		if acc.full() || ctx.Err() != nil {
			break
		}
		c.walk(ctx, entry, 0, acc)
	}
	for _, extra := range c.cfg.Extra {
		acc.add(urlnorm.Resolve(root, extra))
	}

	if len(acc.urls) == 0 {
		return []string{root}
	}
	c.logger.Debug("sitemap discovery complete",
		zap.String("root", root),
		zap.Int("urls", len(acc.urls)),
	)
	return acc.urls
}

// EntryPoints returns the sitemap documents discovery starts from.
func (c *Crawler) EntryPoints(ctx context.Context, root string) []string {
	return c.entryPoints(ctx, root)
}

func (c *Crawler) entryPoints(ctx context.Context, root string) []string {
	if len(c.cfg.Sitemaps) > 0 {
		out := make([]string, 0, len(c.cfg.Sitemaps))
		for _, sm := range c.cfg.Sitemaps {
			out = append(out, urlnorm.Resolve(root, sm))
		}
		return dedupe(out)
	}

	var found []string
	for _, path := range wellKnownPaths {
		candidate := urlnorm.Resolve(root, path)
		out, err := c.fetcher.Fetch(ctx, fetch.Request{URL: candidate})
		if err != nil {
			c.logger.Debug("sitemap probe failed", zap.String("url", candidate), zap.Error(err))
			continue
		}
		if out.StatusCode == http.StatusOK && looksLikeSitemap(out.Body) {
			found = append(found, candidate)
		}
	}
	found = append(found, c.robotsSitemaps(ctx, root)...)
	return dedupe(found)
}

func (c *Crawler) robotsSitemaps(ctx context.Context, root string) []string {
	robotsURL := urlnorm.Resolve(root, "/robots.txt")
	out, err := c.fetcher.Fetch(ctx, fetch.Request{URL: robotsURL})
	if err != nil {
		c.logger.Debug("robots.txt fetch failed", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	if out.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(out.StatusCode, out.Body)
	if err != nil {
		c.logger.Debug("robots.txt parse failed", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	hints := make([]string, 0, len(data.Sitemaps))
	for _, sm := range data.Sitemaps {
		if sm = strings.TrimSpace(sm); sm != "" {
			hints = append(hints, sm)
		}
	}
	return hints
}

func (c *Crawler) walk(ctx context.Context, docURL string, depth int, acc *collector) {
	if acc.full() || ctx.Err() != nil {
		return
	}
	if depth > c.cfg.MaxDepth {
		c.logger.Debug("sitemap depth exceeded", zap.String("url", docURL), zap.Int("depth", depth))
		return
	}
	if _, ok := acc.visited[docURL]; ok {
		return
	}
	acc.visited[docURL] = struct{}{}

	doc, err := c.load(ctx, docURL)
	if err != nil {
		metrics.ObserveSitemapDocument("error")
		c.logger.Debug("sitemap skipped", zap.String("url", docURL), zap.Error(err))
		return
	}

	switch rootElement(doc) {
	case "sitemapindex":
		metrics.ObserveSitemapDocument("index")
		for _, child := range locs(doc, indexLocs) {
			if acc.full() {
				return
			}
			c.walk(ctx, child, depth+1, acc)
		}
	case "urlset":
		metrics.ObserveSitemapDocument("urlset")
		for _, loc := range locs(doc, urlsetLocs) {
			if acc.full() {
				return
			}
			acc.add(loc)
		}
	default:
		metrics.ObserveSitemapDocument("unknown")
	}
}

func (c *Crawler) load(ctx context.Context, docURL string) (*xmlquery.Node, error) {
	out, err := c.fetcher.Fetch(ctx, fetch.Request{URL: docURL})
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}
	if out.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap: status %d", out.StatusCode)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	return doc, nil
}

func rootElement(doc *xmlquery.Node) string {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return strings.ToLower(n.Data)
		}
	}
	return ""
}

func locs(doc *xmlquery.Node, expr string) []string {
	nodes, err := xmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := strings.TrimSpace(n.InnerText()); text != "" {
			out = append(out, text)
		}
	}
	return out
}

var sitemapRoot = regexp.MustCompile(`<([A-Za-z_][\w.-]*:)?(urlset|sitemapindex)[\s>]`)

func looksLikeSitemap(body []byte) bool {
	return sitemapRoot.Match(body)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
