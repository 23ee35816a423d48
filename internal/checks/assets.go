package checks

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

type imageInfo struct {
	URL         string `json:"url"`
	Bytes       int64  `json:"bytes"`
	ContentType string `json:"content_type"`
}

// listImages collects img[src] and the first srcset candidate of every
// <source>, resolved against base, deduplicated and capped at limit.
func listImages(doc *goquery.Document, base string, limit int) []string {
	var raw []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, urlnorm.Resolve(base, attr(s, "src")))
	})
	doc.Find("source[srcset]").Each(func(_ int, s *goquery.Selection) {
		first := strings.TrimSpace(strings.Split(attr(s, "srcset"), ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			raw = append(raw, urlnorm.Resolve(base, fields[0]))
		}
	})

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		if len(out) >= limit {
			break
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (e *Env) imagesWeight(ctx context.Context, root string) (audit.Result, error) {
	out, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	imgs := listImages(doc, out.URL, e.settings.MaxImageHead)

	hasWebP := false
	infos := make([]imageInfo, 0, len(imgs))
	for _, u := range imgs {
		head, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: u, Method: http.MethodHead})
		if err != nil {
			e.logger.Debug("image head failed", zap.String("url", u), zap.Error(err))
			continue
		}
		ctype := strings.ToLower(head.Headers.Get("Content-Type"))
		size, _ := strconv.ParseInt(head.Headers.Get("Content-Length"), 10, 64)
		if strings.Contains(ctype, "image/webp") || strings.HasSuffix(strings.ToLower(u), ".webp") {
			hasWebP = true
		}
		infos = append(infos, imageInfo{URL: u, Bytes: size, ContentType: ctype})
		e.deps.Pause(ctx, e.settings.ImageThrottle)
	}

	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Bytes > infos[j].Bytes })
	largest := firstN(infos, 5)
	tooBig := []imageInfo{}
	for _, info := range largest {
		if info.Bytes > e.settings.LargeImageSize {
			tooBig = append(tooBig, info)
		}
	}

	res := audit.NewResult("images_weight_webp", audit.StatusFail)
	switch {
	case hasWebP && len(tooBig) == 0:
		res.Status = audit.StatusPass
	case hasWebP:
		res.Status = audit.StatusWarn
	}
	res.Metrics["checked_imgs"] = len(imgs)
	res.Metrics["has_webp"] = hasWebP
	res.Metrics["largest_bytes"] = largest
	res.Samples["too_big_top"] = tooBig
	res.FixHint = "Convert images to WebP/AVIF and shrink the largest ones (>500KB)."
	return res, nil
}

type pageTypes struct {
	Error *string  `json:"error"`
	Types []string `json:"types"`
}

// schemaTypes lists the structured data types declared on a page through
// JSON-LD, microdata and RDFa.
func schemaTypes(doc *goquery.Document) []string {
	set := map[string]struct{}{}
	for _, node := range jsonLD(doc) {
		for _, t := range ldTypes(node) {
			if t != "" {
				set[t] = struct{}{}
			}
		}
	}
	doc.Find("[itemscope]").Each(func(_ int, s *goquery.Selection) {
		if t := attr(s, "itemtype"); t != "" {
			set[t] = struct{}{}
		}
	})
	doc.Find("[typeof]").Each(func(_ int, s *goquery.Selection) {
		if t := attr(s, "typeof"); t != "" {
			set[t] = struct{}{}
		}
	})
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (e *Env) schemaPages(ctx context.Context, root string) (audit.Result, error) {
	targets := []string{root}
	for _, p := range e.settings.Pages.SchemaPaths {
		if u := target(root, p); u != "" && !slices.Contains(targets, u) {
			targets = append(targets, u)
		}
	}

	perPage := make(map[string]pageTypes, len(targets))
	withSchema := []string{}
	errCount := 0
	for _, u := range targets {
		_, doc, err := e.page(ctx, u)
		if err != nil {
			msg := err.Error()
			perPage[u] = pageTypes{Error: &msg, Types: []string{}}
			errCount++
			continue
		}
		types := schemaTypes(doc)
		perPage[u] = pageTypes{Types: types}
		if len(types) > 0 {
			withSchema = append(withSchema, u)
		}
	}

	homeHas := len(perPage[root].Types) > 0
	res := audit.NewResult("schema_pages", audit.StatusFail)
	switch {
	case homeHas:
		res.Status = audit.StatusPass
	case len(withSchema) > 0:
		res.Status = audit.StatusWarn
	}
	res.Metrics["checked_pages"] = len(targets)
	res.Metrics["home_has_schema"] = homeHas
	res.Metrics["pages_with_schema"] = len(withSchema)
	res.Metrics["errors"] = errCount
	res.Samples["pages_with_schema"] = firstN(withSchema, e.settings.SampleLimit)
	res.Samples["per_page_types"] = perPage
	res.FixHint = "Add structured data to the home page (Organization, WebSite). On subpages consider BreadcrumbList, Article/BlogPosting, Product or FAQPage."
	return res, nil
}

type faqHit struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

func (e *Env) faq(ctx context.Context, root string) (audit.Result, error) {
	urls := []string{root}
	if contact := target(root, e.settings.Pages.ContactPage); contact != "" {
		urls = append(urls, contact)
	}

	checked := make([]string, 0, len(urls))
	hits := []faqHit{}
	for _, u := range urls {
		_, doc, err := e.page(ctx, u)
		if err != nil {
			return audit.Result{}, err
		}
		checked = append(checked, u)
		for _, node := range jsonLD(doc) {
			if hasLDType(node, "FAQPage") {
				hits = append(hits, faqHit{URL: u, Type: "ld+json"})
			}
		}
		if doc.Find(`[id*="faq"], [class*="faq"]`).Length() > 0 {
			hits = append(hits, faqHit{URL: u, Type: "dom"})
		}
	}

	res := audit.NewResult("faq", audit.StatusFail)
	if len(hits) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["checked_urls"] = checked
	res.Metrics["faq_found"] = len(hits)
	res.Samples["faq_locations"] = firstN(hits, e.settings.SampleLimit)
	res.FixHint = "Add an FAQ to the home or contact page, ideally with FAQPage JSON-LD."
	return res, nil
}
