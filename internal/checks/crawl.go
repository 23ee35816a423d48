package checks

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

// crawlPages fetches every candidate URL in order, pausing after each
// successful fetch. Fetch failures are logged and skipped.
func (e *Env) crawlPages(ctx context.Context, root, check string, visit func(u, final string, doc *goquery.Document)) []string {
	urls := e.candidates(ctx, root)
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		out, doc, err := e.page(ctx, u)
		if err != nil {
			e.logger.Debug("page skipped", zap.String("check", check), zap.String("url", u), zap.Error(err))
			continue
		}
		visit(u, out.URL, doc)
		e.deps.Pause(ctx, e.settings.Throttle)
	}
	return urls
}

func (e *Env) metaTags(ctx context.Context, root string) (audit.Result, error) {
	var missingTitle, missingDesc []string
	urls := e.crawlPages(ctx, root, "meta_tags_coverage", func(u, _ string, doc *goquery.Document) {
		t, desc, _ := basicMeta(doc)
		if t == "" {
			missingTitle = append(missingTitle, u)
		}
		if desc == "" {
			missingDesc = append(missingDesc, u)
		}
	})

	res := audit.NewResult("meta_tags_coverage", audit.StatusPass)
	if len(missingTitle) > 0 || len(missingDesc) > 0 {
		res.Status = audit.StatusFail
	}
	res.Metrics["pages_scanned"] = len(urls)
	res.Metrics["missing_title"] = len(missingTitle)
	res.Metrics["missing_description"] = len(missingDesc)
	res.Samples["missing_title"] = firstN(missingTitle, e.settings.SampleLimit)
	res.Samples["missing_description"] = firstN(missingDesc, e.settings.SampleLimit)
	res.FixHint = "Fill in missing titles and meta descriptions; on shops use SEO plugin templates."
	return res, nil
}

func (e *Env) headingsH1(ctx context.Context, root string) (audit.Result, error) {
	var tooMany, hidden []string
	urls := e.crawlPages(ctx, root, "headings_h1", func(u, _ string, doc *goquery.Document) {
		h1s := doc.Find("h1")
		if h1s.Length() > 1 {
			tooMany = append(tooMany, u)
		}
		h1s.EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if hiddenHeading(h) {
				hidden = append(hidden, u)
				return false
			}
			return true
		})
	})

	res := audit.NewResult("headings_h1", audit.StatusPass)
	if len(tooMany) > 0 || len(hidden) > 0 {
		res.Status = audit.StatusFail
	}
	res.Metrics["checked_pages"] = len(urls)
	res.Metrics["too_many_h1"] = len(tooMany)
	res.Metrics["hidden_h1_pages"] = len(hidden)
	res.Samples["too_many_h1"] = firstN(tooMany, e.settings.SampleLimit)
	res.Samples["hidden_h1_pages"] = firstN(hidden, e.settings.SampleLimit)
	res.FixHint = "Every page should have exactly one visible H1."
	return res, nil
}

func hiddenHeading(h *goquery.Selection) bool {
	style := strings.ReplaceAll(strings.ToLower(attr(h, "style")), " ", "")
	classes := strings.ToLower(attr(h, "class"))
	return strings.Contains(style, "display:none") ||
		strings.Contains(classes, "sr-only") ||
		strings.Contains(classes, "visually-hidden")
}

type canonicalMismatch struct {
	URL       string `json:"url"`
	Final     string `json:"final"`
	Canonical string `json:"canonical"`
}

func (e *Env) canonicalSelfReference(ctx context.Context, root string) (audit.Result, error) {
	var missing []string
	var mismatched []canonicalMismatch
	urls := e.crawlPages(ctx, root, "canonical_self_reference", func(u, final string, doc *goquery.Document) {
		_, _, canonical := basicMeta(doc)
		if canonical == "" {
			missing = append(missing, u)
			return
		}
		resolved := urlnorm.Resolve(final, canonical)
		if !urlnorm.CanonicalEquivalent(final, resolved) {
			mismatched = append(mismatched, canonicalMismatch{URL: u, Final: final, Canonical: canonical})
		}
	})

	res := audit.NewResult("canonical_self_reference", audit.StatusPass)
	if len(missing) > 0 || len(mismatched) > 0 {
		res.Status = audit.StatusFail
	}
	res.Metrics["checked_pages"] = len(urls)
	res.Metrics["missing"] = len(missing)
	res.Metrics["mismatch"] = len(mismatched)
	res.Samples["missing"] = firstN(missing, e.settings.SampleLimit)
	res.Samples["mismatch"] = firstN(mismatched, e.settings.SampleLimit)
	res.FixHint = "Set a self-referencing canonical on every unique page. Avoid canonicals pointing at another URL variant."
	return res, nil
}
