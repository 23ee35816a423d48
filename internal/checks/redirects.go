package checks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

type redirectChain struct {
	Start     string      `json:"start"`
	Final     string      `json:"final,omitempty"`
	Hops      int         `json:"hops"`
	History   []fetch.Hop `json:"history,omitempty"`
	FinalCode int         `json:"final_code,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// bareHost reduces user input to its lower-cased host.
func bareHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(raw)
}

// redirectCandidates lists the scheme and www variants every site should
// collapse onto.
func redirectCandidates(raw string) []string {
	host := bareHost(raw)
	alt := "www." + host
	if strings.HasPrefix(host, "www.") {
		alt = strings.TrimPrefix(host, "www.")
	}
	return []string{"https://" + host, "http://" + host, "https://" + alt}
}

func (e *Env) redirectsCore(ctx context.Context, raw string) (audit.Result, error) {
	if bareHost(raw) == "" {
		return audit.Result{}, fmt.Errorf("redirects: %w", urlnorm.ErrEmptyInput)
	}
	candidates := redirectCandidates(raw)

	chains := make([]redirectChain, 0, len(candidates))
	errCount, longChains, badFinal := 0, 0, 0
	for _, u := range candidates {
		out, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: u})
		if err != nil {
			errCount++
			chains = append(chains, redirectChain{Start: u, Error: err.Error()})
			continue
		}
		chain := redirectChain{
			Start:     u,
			Final:     out.URL,
			Hops:      len(out.Redirects),
			History:   out.Redirects,
			FinalCode: out.StatusCode,
		}
		if chain.Hops > 1 {
			longChains++
		}
		if out.StatusCode != http.StatusOK && out.StatusCode != http.StatusNoContent {
			badFinal++
		}
		chains = append(chains, chain)
	}

	res := audit.NewResult("redirects_core", audit.StatusPass)
	switch {
	case errCount > 0:
		res.Status = audit.StatusFail
	case longChains > 0 || badFinal > 0:
		res.Status = audit.StatusWarn
	}
	res.Metrics["checked"] = len(candidates)
	res.Metrics["errors"] = errCount
	res.Metrics["chains_gt1"] = longChains
	res.Metrics["non_200_final"] = badFinal
	res.Samples["details"] = chains
	res.FixHint = "Avoid chains longer than one hop; go 301 -> 200 in a single step and make key pages end on 200."
	return res, nil
}

func (e *Env) trailingSlash(ctx context.Context, root string) (audit.Result, error) {
	const name = "trailing_slash_consistency"
	contact := strings.TrimSpace(e.settings.Pages.ContactPage)
	if contact == "" {
		return audit.Skip(name, "pages.contact_page"), nil
	}
	noSlash := strings.TrimRight(target(root, contact), "/")
	withSlash := noSlash + "/"

	first, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: noSlash})
	if err != nil {
		return audit.Result{}, err
	}
	second, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: withSlash})
	if err != nil {
		return audit.Result{}, err
	}

	res := audit.NewResult(name, audit.StatusPass)
	if first.URL != second.URL {
		res.Status = audit.StatusFail
	}
	res.Metrics["no_slash"] = noSlash
	res.Metrics["no_slash_final"] = first.URL
	res.Metrics["slash_final"] = second.URL
	res.FixHint = "Enforce one variant (301) between the URL with and without a trailing slash to avoid duplicates."
	return res, nil
}

var cacheHeaderNames = []string{
	"x-cache",
	"x-cache-status",
	"cf-cache-status",
	"age",
	"x-litespeed-cache",
	"x-varnish",
}

func (e *Env) cacheHeaders(ctx context.Context, root string) (audit.Result, error) {
	out, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: root})
	if err != nil {
		return audit.Result{}, err
	}

	res := audit.NewResult("cache_headers", audit.StatusFail)
	found := make([]string, 0, len(cacheHeaderNames))
	for _, h := range cacheHeaderNames {
		if v, ok := out.Headers[http.CanonicalHeaderKey(h)]; ok {
			found = append(found, h)
			res.Samples[h] = strings.Join(v, ", ")
		}
	}
	if len(found) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["headers_checked"] = cacheHeaderNames
	res.Metrics["headers_found"] = found
	res.FixHint = "No cache headers suggests the site is not cached on the server or CDN. Enable caching (LiteSpeed Cache, WP Rocket, Cloudflare)."
	return res, nil
}

var notFoundHints = []string{"404", "nie znaleziono", "page not found", "not found", "oops", "błąd", "error"}

func (e *Env) errorPage404(ctx context.Context, root string) (audit.Result, error) {
	const name = "error_page_404"
	probe := strings.TrimRight(root, "/") + "/" + strings.TrimLeft(e.settings.Checks.NotFoundPath, "/")

	out, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: probe})
	if err != nil {
		return audit.Result{}, err
	}

	res := audit.NewResult(name, audit.StatusFail)
	res.Metrics["http_status"] = out.StatusCode
	res.Samples["url_tested"] = probe
	if out.StatusCode != http.StatusNotFound {
		res.FixHint = fmt.Sprintf("The server does not return HTTP 404 for missing pages (got %d). Configure a proper 404 error page.", out.StatusCode)
		return res, nil
	}

	text := strings.ToLower(out.Text())
	var hint any
	for _, h := range notFoundHints {
		if strings.Contains(text, h) {
			hint = h
			break
		}
	}
	tooShort := utf8.RuneCountInString(strings.TrimSpace(text)) < 100

	res.Status = audit.StatusWarn
	if hint != nil && !tooShort {
		res.Status = audit.StatusPass
	}
	res.Metrics["found_hint"] = hint
	res.Metrics["content_length"] = utf8.RuneCountInString(text)

	var pageTitle any
	if doc := parseHTML(out.Body); doc.Find("title").Length() > 0 {
		pageTitle = title(doc)
	}
	res.Samples["title"] = pageTitle
	res.FixHint = "Give the 404 page its own layout, content and a clear message for the user (e.g. 'Page not found')."
	return res, nil
}
