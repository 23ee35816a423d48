package checks

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

func (e *Env) breadcrumbs(ctx context.Context, root string) (audit.Result, error) {
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	hasHTML := attrContainsFold(doc, "aria-label", "breadcrumb").Length() > 0 ||
		doc.Find("nav.breadcrumb, .breadcrumb").Length() > 0
	hasLD := false
	for _, node := range jsonLD(doc) {
		if hasLDType(node, "BreadcrumbList") {
			hasLD = true
			break
		}
	}

	res := audit.NewResult("breadcrumbs_presence", audit.StatusFail)
	if hasHTML || hasLD {
		res.Status = audit.StatusPass
	}
	res.Metrics["html"] = hasHTML
	res.Metrics["jsonld"] = hasLD
	res.FixHint = "Add breadcrumbs (HTML and/or JSON-LD BreadcrumbList) for better navigation and rich results."
	return res, nil
}

type paragraph struct {
	words int
	text  string
}

func (e *Env) homeParagraphs(ctx context.Context, root string) (audit.Result, error) {
	const name = "home_paragraphs"
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	scope := doc.Find("main").First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	var paras []paragraph
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := textOf(p)
		if text == "" {
			return
		}
		paras = append(paras, paragraph{words: len(strings.Fields(text)), text: text})
	})

	if len(paras) == 0 {
		res := audit.NewResult(name, audit.StatusWarn)
		res.Metrics["paragraphs"] = 0
		res.Metrics["total_words"] = 0
		res.Samples["note"] = "No <p> elements found on the home page."
		res.FixHint = "Add text content in <p> paragraphs on the home page."
		return res, nil
	}

	shortT := e.settings.Checks.ParagraphShort
	longT := e.settings.Checks.ParagraphLong
	counts := make([]int, len(paras))
	total, shortCount, longCount := 0, 0, 0
	for i, p := range paras {
		counts[i] = p.words
		total += p.words
		if p.words < shortT {
			shortCount++
		}
		if p.words >= longT {
			longCount++
		}
	}
	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)

	shortest := append([]paragraph(nil), paras...)
	sort.SliceStable(shortest, func(i, j int) bool { return shortest[i].words < shortest[j].words })
	longest := append([]paragraph(nil), paras...)
	sort.SliceStable(longest, func(i, j int) bool { return longest[i].words > longest[j].words })

	res := audit.NewResult(name, audit.StatusPass)
	res.Metrics["paragraphs"] = len(paras)
	res.Metrics["total_words"] = total
	res.Metrics["avg_words_per_paragraph"] = math.Round(float64(total)/float64(len(paras))*100) / 100
	res.Metrics["median_words_per_paragraph"] = median(sorted)
	res.Metrics["min_words"] = sorted[0]
	res.Metrics["max_words"] = sorted[len(sorted)-1]
	res.Metrics["short_paragraphs_lt_threshold"] = shortCount
	res.Metrics["long_paragraphs_ge_threshold"] = longCount
	res.Metrics["short_threshold"] = shortT
	res.Metrics["long_threshold"] = longT
	res.Samples["shortest"] = paragraphSamples(firstN(shortest, 5))
	res.Samples["longest"] = paragraphSamples(firstN(longest, 5))
	res.FixHint = "Paragraph length statistics for the home page only. Use them to decide whether to add or trim copy."
	return res, nil
}

// median of sorted values, truncated to an int.
func median(sorted []int) int {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func paragraphSamples(paras []paragraph) []string {
	out := make([]string, len(paras))
	for i, p := range paras {
		out[i] = fmt.Sprintf("%dw: %s", p.words, shorten(p.text, 90))
	}
	return out
}

type pageLink struct {
	URL  string `json:"url"`
	Href string `json:"href"`
}

type pageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (e *Env) clickableElements(ctx context.Context, root string) (audit.Result, error) {
	targets := []string{root}
	if len(e.settings.Pages.ClickablePaths) > 0 {
		targets = targets[:0]
		for _, p := range e.settings.Pages.ClickablePaths {
			targets = append(targets, target(root, p))
		}
	}

	var tel, mail []pageLink
	var errs []pageError
	for _, u := range targets {
		_, doc, err := e.page(ctx, u)
		if err != nil {
			errs = append(errs, pageError{URL: u, Error: err.Error()})
			continue
		}
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := strings.ToLower(attr(a, "href"))
			switch {
			case strings.HasPrefix(href, "tel:"):
				tel = append(tel, pageLink{URL: u, Href: href})
			case strings.HasPrefix(href, "mailto:"):
				mail = append(mail, pageLink{URL: u, Href: href})
			}
		})
	}

	res := audit.NewResult("clickable_elements", audit.StatusFail)
	if len(tel) > 0 || len(mail) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["checked_pages"] = len(targets)
	res.Metrics["tel_links"] = len(tel)
	res.Metrics["mailto_links"] = len(mail)
	res.Metrics["errors"] = len(errs)
	res.Samples["tel"] = firstN(tel, e.settings.SampleLimit)
	res.Samples["mailto"] = firstN(mail, e.settings.SampleLimit)
	res.Samples["errors"] = firstN(errs, 5)
	res.FixHint = "Make sure the phone number and e-mail address are clickable links (tel: / mailto:)."
	return res, nil
}

type nofollowLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
	Rel  string `json:"rel"`
}

var (
	spaceRun       = regexp.MustCompile(`\s+`)
	keywordJoiners = strings.NewReplacer("-", " ", "_", " ")
)

func normalizeKeyword(s string) string {
	s = keywordJoiners.Replace(strings.ToLower(s))
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func relTokens(a *goquery.Selection) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range strings.Fields(strings.ToLower(attr(a, "rel"))) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func matchesKeyword(bundle string, keywords []string) bool {
	for _, kw := range keywords {
		if k := normalizeKeyword(kw); k != "" && strings.Contains(bundle, k) {
			return true
		}
	}
	return false
}

func (e *Env) nofollowLinks(ctx context.Context, root string) (audit.Result, error) {
	keywords := append(append([]string(nil), e.settings.Checks.NofollowKeywords...), e.settings.Checks.NofollowSocialKeywords...)
	var candidates, compliant, noncompliant []nofollowLink
	var errs []pageError

	_, doc, err := e.page(ctx, root)
	if err != nil {
		errs = append(errs, pageError{URL: root, Error: err.Error()})
	} else {
		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			parts := []string{textOf(a), attr(a, "title"), attr(a, "aria-label"), attr(a, "href")}
			bundle := normalizeKeyword(strings.Join(parts, " "))
			if bundle == "" || !matchesKeyword(bundle, keywords) {
				return
			}
			rels := relTokens(a)
			link := nofollowLink{
				Href: attr(a, "href"),
				Text: clip(textOf(a), 120),
				Rel:  strings.Join(rels, " "),
			}
			candidates = append(candidates, link)
			if slices.Contains(rels, "nofollow") {
				compliant = append(compliant, link)
			} else {
				noncompliant = append(noncompliant, link)
			}
		})
	}

	res := audit.NewResult("nofollow_links_check", audit.StatusWarn)
	switch {
	case len(noncompliant) > 0:
		res.Status = audit.StatusFail
	case len(candidates) > 0:
		res.Status = audit.StatusPass
	}
	res.Metrics["candidates"] = len(candidates)
	res.Metrics["compliant"] = len(compliant)
	res.Metrics["noncompliant"] = len(noncompliant)
	res.Metrics["errors"] = len(errs)
	res.Samples["noncompliant"] = firstN(noncompliant, e.settings.SampleLimit)
	res.Samples["compliant"] = firstN(compliant, e.settings.SampleLimit)
	res.Samples["preview"] = firstN(candidates, e.settings.SampleLimit)
	res.Samples["errors"] = firstN(errs, 5)
	res.FixHint = `Add rel="nofollow" to links containing: ` + strings.Join(keywords, ", ")
	return res, nil
}

var langCodes = []string{
	"pl", "en", "de", "fr", "es", "it", "pt", "ru", "uk", "cs", "sk", "ro", "hu",
	"nl", "sv", "no", "da", "fi", "tr", "el", "bg", "hr", "sr", "sl", "lt", "lv", "et",
}

var langDirPattern = regexp.MustCompile(`(?i)/(` + strings.Join(langCodes, "|") + `)(/|$)`)

func (e *Env) langDirInURL(ctx context.Context, root string) (audit.Result, error) {
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	var links, flagged []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		links = append(links, urlnorm.Resolve(root, attr(a, "href")))
	})
	for _, href := range links {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if langDirPattern.MatchString(u.Path) {
			flagged = append(flagged, href)
		}
	}

	res := audit.NewResult("lang_dir_in_url", audit.StatusPass)
	if len(flagged) > 0 {
		res.Status = audit.StatusFail
	}
	res.Metrics["links_checked"] = len(links)
	res.Metrics["with_lang_dir"] = len(flagged)
	res.Samples["with_lang_dir"] = firstN(flagged, e.settings.SampleLimit)
	res.FixHint = "Remove language directories from URLs (/pl/, /en/). Use subdomains (pl.example.com) or hreflang in the head instead."
	return res, nil
}

func imgSource(img *goquery.Selection) string {
	for _, name := range []string{"src", "data-src", "data-lazy"} {
		if v := attr(img, name); v != "" {
			return v
		}
	}
	return ""
}

func (e *Env) webpImages(ctx context.Context, root string) (audit.Result, error) {
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	imgs := doc.Find("img")
	var modern, legacy []string
	imgs.Each(func(_ int, img *goquery.Selection) {
		src := imgSource(img)
		low := strings.ToLower(src)
		switch {
		case strings.HasSuffix(low, ".webp") || strings.HasSuffix(low, ".avif"):
			modern = append(modern, clip(src, 140))
		case low != "":
			legacy = append(legacy, clip(src, 140))
		}
	})

	res := audit.NewResult("webp_images", audit.StatusSkip)
	switch {
	case len(modern) > 0 && len(modern) > len(legacy):
		res.Status = audit.StatusPass
	case len(legacy) > 0:
		res.Status = audit.StatusWarn
	}
	res.Metrics["images_total"] = imgs.Length()
	res.Metrics["webp_count"] = len(modern)
	res.Metrics["non_webp_count"] = len(legacy)
	res.Samples["webp_imgs"] = firstN(modern, e.settings.SampleLimit)
	res.Samples["non_webp_imgs"] = firstN(legacy, e.settings.SampleLimit)
	res.FixHint = "Serve WebP/AVIF on the home page. Enable conversion with a plugin or on the server (mod_pagespeed, nginx)."
	return res, nil
}

type hintLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

func (e *Env) blogExists(ctx context.Context, root string) (audit.Result, error) {
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}
	var found []hintLink
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.ToLower(attr(a, "href"))
		text := strings.ToLower(a.Text())
		for _, hint := range e.settings.Checks.BlogHints {
			hint = strings.ToLower(hint)
			if strings.Contains(href, hint) || strings.Contains(text, hint) {
				found = append(found, hintLink{Href: href, Text: strings.TrimSpace(text)})
				break
			}
		}
	})

	res := audit.NewResult("blog_exists", audit.StatusFail)
	if len(found) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["found_links"] = len(found)
	res.Samples["links"] = firstN(found, e.settings.SampleLimit)
	res.FixHint = "No blog section found. Consider adding one (e.g. /blog/) to publish content supporting your keywords."
	return res, nil
}

var (
	yearPattern  = regexp.MustCompile(`(19|20)\d{2}`)
	rangePattern = regexp.MustCompile(`((?:19|20)\d{2})\s*[-–—]\s*((?:19|20)\d{2})`)
)

type yearRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (e *Env) footerYear(ctx context.Context, root string) (audit.Result, error) {
	_, doc, err := e.page(ctx, root)
	if err != nil {
		return audit.Result{}, err
	}

	var chunks []string
	doc.Find("footer, .footer, #footer").Each(func(_ int, s *goquery.Selection) {
		if t := textOf(s); t != "" {
			chunks = append(chunks, t)
		}
	})
	if len(chunks) == 0 {
		chunks = append(chunks, textOf(doc.Selection))
	}
	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts.WriteString(s.Text())
		scripts.WriteByte(' ')
	})

	now := e.deps.Now().Year()
	years := map[int]struct{}{}
	ranges := []yearRange{}
	var contexts []string
	for _, txt := range chunks {
		for _, m := range rangePattern.FindAllStringSubmatchIndex(txt, -1) {
			r := yearRange{Start: atoi(txt[m[2]:m[3]]), End: atoi(txt[m[4]:m[5]])}
			ranges = append(ranges, r)
			years[r.Start] = struct{}{}
			years[r.End] = struct{}{}
			contexts = append(contexts, around(txt, m[0], m[1], 40))
		}
		for _, y := range yearPattern.FindAllString(txt, -1) {
			years[atoi(y)] = struct{}{}
		}
	}

	status, reason := audit.StatusFail, "no year found in footer or page"
	if len(years) > 0 {
		status, reason = audit.StatusWarn, "current year missing; other years found"
		_, hasNow := years[now]
		for _, r := range ranges {
			hasNow = hasNow || r.End == now
		}
		if hasNow {
			status, reason = audit.StatusPass, "current year found"
		}
	}
	unique := make([]int, 0, len(years))
	for y := range years {
		unique = append(unique, y)
	}
	sort.Ints(unique)

	res := audit.NewResult("footer_year", status)
	res.Metrics["now_year"] = now
	res.Metrics["unique_years_found"] = unique
	res.Metrics["ranges_found"] = ranges
	res.Metrics["has_js_getFullYear"] = strings.Contains(strings.ToLower(scripts.String()), "getfullyear")
	res.Metrics["reason"] = reason
	res.Samples["contexts"] = firstN(contexts, 5)
	res.FixHint = "Show the current year in the footer (e.g. © 2016-YYYY), rendered server side or with new Date().getFullYear()."
	return res, nil
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// around returns txt[start-pad:end+pad] clamped to rune boundaries.
func around(txt string, start, end, pad int) string {
	from := max(start-pad, 0)
	to := min(end+pad, len(txt))
	for from > 0 && !isRuneStart(txt[from]) {
		from--
	}
	for to < len(txt) && !isRuneStart(txt[to]) {
		to++
	}
	return txt[from:to]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
