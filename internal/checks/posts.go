package checks

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/siteaudit/internal/audit"
)

func (e *Env) blogpostHeadings(ctx context.Context, root string) (audit.Result, error) {
	const name = "blogpost_headings"
	u := target(root, e.settings.Pages.BlogPost)
	if u == "" {
		return audit.Skip(name, "pages.blog_post"), nil
	}
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	var headings []string
	problems := []string{}
	prev := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		level := int(goquery.NodeName(h)[1] - '0')
		text := clip(collapseSpace(h.Text()), 80)
		headings = append(headings, fmt.Sprintf("H%d: %s", level, text))
		switch {
		case prev == 0 && level != 1:
			problems = append(problems, fmt.Sprintf("first heading is not H1 (H%d: %q)", level, text))
		case prev != 0 && level > prev+1:
			problems = append(problems, fmt.Sprintf("skips from H%d to H%d (heading: %q)", prev, level, text))
		}
		prev = level
	})

	res := audit.NewResult(name, audit.StatusPass)
	if len(problems) > 0 {
		res.Status = audit.StatusFail
	}
	res.Metrics["checked_url"] = u
	res.Metrics["headings_found"] = len(headings)
	res.Metrics["errors_count"] = len(problems)
	res.Samples["headings"] = firstN(headings, 20)
	res.Samples["errors"] = problems
	res.FixHint = "Keep a logical heading outline (H1 then H2 then H3) without skipping levels."
	return res, nil
}

type nameSet map[string]struct{}

func (s nameSet) add(v string) {
	if v = strings.TrimSpace(v); v != "" {
		s[v] = struct{}{}
	}
}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// addLDAuthor records the names carried by a JSON-LD author value, which may
// be a string, a Person object or a list of either.
func (s nameSet) addLDAuthor(author any) {
	switch a := author.(type) {
	case nil:
	case []any:
		for _, item := range a {
			s.addLDAuthor(item)
		}
	case map[string]any:
		if n, ok := a["name"]; ok && n != nil {
			s.add(fmt.Sprint(n))
		}
	default:
		s.add(fmt.Sprint(a))
	}
}

func (e *Env) blogAuthor(ctx context.Context, root string) (audit.Result, error) {
	const name = "blog_author"
	u := target(root, e.settings.Pages.BlogPost)
	if u == "" {
		return audit.Skip(name, "pages.blog_post"), nil
	}
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	authors := nameSet{}
	doc.Find("meta").Each(func(_ int, m *goquery.Selection) {
		if strings.EqualFold(attr(m, "name"), "author") {
			authors.add(attr(m, "content"))
		}
	})
	doc.Find("a[rel]").Each(func(_ int, a *goquery.Selection) {
		if hasToken(attr(a, "rel"), "author") {
			authors.add(textOf(a))
		}
	})
	doc.Find(`.author, .post-author, .byline, .entry-author, [itemprop="author"]`).Each(func(_ int, el *goquery.Selection) {
		if n := el.Find(`[itemprop="name"]`).First(); n.Length() > 0 {
			authors.add(textOf(n))
			return
		}
		authors.add(textOf(el))
	})
	doc.Find(`meta[itemprop="author"]`).Each(func(_ int, m *goquery.Selection) {
		authors.add(attr(m, "content"))
	})
	for _, node := range jsonLD(doc) {
		authors.addLDAuthor(node["author"])
		if main, ok := node["mainEntityOfPage"].(map[string]any); ok {
			authors.addLDAuthor(main["author"])
		}
	}

	found := authors.sorted()
	res := audit.NewResult(name, audit.StatusFail)
	if len(found) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["authors_found"] = len(found)
	res.Samples["authors"] = firstN(found, e.settings.SampleLimit)
	res.Samples["checked_url"] = u
	res.FixHint = "Show the author: meta[name=author], a visible byline and/or JSON-LD Article/BlogPosting with author.name."
	return res, nil
}

var (
	autoAltPatterns = regexp.MustCompile(`(?i)^(?:img\d*|image\d*|zdj(?:ę|e)cie\d*|photo\d*|picture\d*|dsc[_-]?\d+|img[_-]?\d+|\d{6,}|[a-f0-9]{8,})$`)
	imageExt        = regexp.MustCompile(`(?i)\.(?:jpg|jpeg|png|webp|gif|avif|svg)$`)
	noiseSrc        = regexp.MustCompile(`(?i)^data:image/|\.svg(?:$|\?)|loading(?:\.|\b)|spinner|/wp-postratings/|/flags?/|\bflags?\b|\bstar(?:\.|\b)|\brating\b|\bchevron\b|\barrow\b|\bhamburger\b|\bcaret\b|\bfavicon\b|\bemoji\b|\bsprite\b|(?:^|/)(?:pixel|tracker|1x1)(?:\.|/)`)
	noiseClass      = regexp.MustCompile(`(?i)\bicons?\b|\bflag\b|\brating\b|\bstar\b|\bspinner\b|\bloading\b|\bchevron\b|\barrow\b`)
	altSeparators   = strings.NewReplacer("_", " ", "-", " ")
)

func decorative(img *goquery.Selection) bool {
	role := strings.ToLower(attr(img, "role"))
	hidden := strings.ToLower(attr(img, "aria-hidden"))
	return role == "presentation" || role == "none" || hidden == "true" || hidden == "1"
}

// autoAlt reports alt text that is a placeholder, a hash or the file name.
func autoAlt(alt, src string) bool {
	a := strings.ToLower(strings.TrimSpace(alt))
	if a == "" {
		return false
	}
	if autoAltPatterns.MatchString(a) {
		return true
	}
	base := src
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSpace(altSeparators.Replace(strings.ToLower(imageExt.ReplaceAllString(base, ""))))
	return base != "" && (strings.TrimSpace(altSeparators.Replace(a)) == base || imageExt.MatchString(alt))
}

// noiseImage reports icons, trackers, loaders and inline data that carry no
// content and need no alt text.
func noiseImage(img *goquery.Selection, src string) bool {
	if src == "" {
		return false
	}
	if noiseSrc.MatchString(src) {
		return true
	}
	for _, dim := range []string{"width", "height"} {
		if n, err := strconv.Atoi(attr(img, dim)); err == nil && n > 0 && n <= 2 {
			return true
		}
	}
	return noiseClass.MatchString(attr(img, "class"))
}

type imgRef struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

func (e *Env) altTags(ctx context.Context, root string) (audit.Result, error) {
	const name = "alt_tags"
	u, pageType := target(root, e.settings.Pages.ProductPage), "product"
	if u == "" {
		u, pageType = target(root, e.settings.Pages.BlogPost), "blogpost"
	}
	if u == "" {
		return audit.Skip(name, "pages.product_page or pages.blog_post"), nil
	}
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	imgs := doc.Find("img")
	missing, empty, auto := []imgRef{}, []imgRef{}, []imgRef{}
	skipped := 0
	imgs.Each(func(_ int, img *goquery.Selection) {
		src := imgSource(img)
		low := strings.ToLower(src)
		if noiseImage(img, low) {
			skipped++
			return
		}
		alt, ok := img.Attr("alt")
		switch alt = strings.TrimSpace(alt); {
		case !ok:
			missing = append(missing, imgRef{Src: clip(src, 140)})
		case alt == "":
			if !decorative(img) {
				empty = append(empty, imgRef{Src: clip(src, 140)})
			}
		case autoAlt(alt, low):
			auto = append(auto, imgRef{Src: clip(src, 140), Alt: clip(alt, 140)})
		}
	})

	res := audit.NewResult(name, audit.StatusPass)
	switch {
	case len(missing) > 0 || len(empty) > 0:
		res.Status = audit.StatusFail
	case len(auto) > 0:
		res.Status = audit.StatusWarn
	}
	res.Metrics["checked_url"] = u
	res.Metrics["page_type"] = pageType
	res.Metrics["images_found"] = imgs.Length()
	res.Metrics["skipped_noise"] = skipped
	res.Metrics["missing_alt"] = len(missing)
	res.Metrics["empty_alt_non_decorative"] = len(empty)
	res.Metrics["auto_alt_like"] = len(auto)
	res.Samples["missing_alt"] = firstN(missing, e.settings.SampleLimit)
	res.Samples["empty_alt_non_decorative"] = firstN(empty, e.settings.SampleLimit)
	res.Samples["auto_alt_like"] = firstN(auto, e.settings.SampleLimit)
	res.FixHint = `Give content images a descriptive alt. Use alt="" only for decorative images (role=presentation/none, aria-hidden=true). Avoid file names or IMG_1234 as alt text.`
	return res, nil
}

var paginationWords = []string{"page", "strona", "página", "seite"}

func (e *Env) paginationTitle(ctx context.Context, root string) (audit.Result, error) {
	const name = "pagination_title"
	base, pageType := target(root, e.settings.Pages.ShopPage), "shop"
	if base == "" {
		base, pageType = target(root, e.settings.Pages.BlogPage), "blog"
	}
	if base == "" {
		return audit.Skip(name, "pages.shop_page or pages.blog_page"), nil
	}
	u := strings.TrimRight(base, "/") + "/page/2/"
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	t := title(doc)
	low := strings.ToLower(t)
	numbered := strings.ContainsAny(t, "0123456789")
	for _, w := range paginationWords {
		numbered = numbered || strings.Contains(low, w)
	}

	res := audit.NewResult(name, audit.StatusFail)
	if numbered {
		res.Status = audit.StatusPass
	}
	res.Metrics["checked_url"] = u
	res.Metrics["page_type"] = pageType
	res.Metrics["title_found"] = t
	res.Metrics["has_number"] = numbered
	res.Samples["title"] = t
	res.FixHint = "Include the page number in the <title> of paginated pages (e.g. 'Page 2 of 10')."
	return res, nil
}

var (
	ratingWidgetHints = []string{
		"wp-postratings", "post-ratings", "rating", "ratings", "star-rating",
		"rating-stars", "stars", "score", "vote", "votes",
	}
	ratingText = regexp.MustCompile(`(?i)(ocen[ay]?\s*[:\-]?\s*)?(\d+[.,]?\d*)\s*/\s*5\b|(\b\d+[.,]?\d*\s*z\s*5\b)`)
)

type rating struct {
	Type  string `json:"type"`
	Value any    `json:"ratingValue"`
	Count any    `json:"ratingCount"`
}

type widgetHint struct {
	Hint string `json:"hint"`
	Text string `json:"text"`
}

func firstPresent(node map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := node[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func ldRating(node map[string]any) rating {
	return rating{
		Type:  "AggregateRating",
		Value: node["ratingValue"],
		Count: firstPresent(node, "ratingCount", "reviewCount"),
	}
}

func jsonLDRatings(doc *goquery.Document) []rating {
	found := []rating{}
	for _, node := range jsonLD(doc) {
		if hasLDType(node, "AggregateRating") {
			found = append(found, ldRating(node))
		}
		if hasLDType(node, "Article") || hasLDType(node, "BlogPosting") || hasLDType(node, "CreativeWork") {
			if agg, ok := node["aggregateRating"].(map[string]any); ok && hasLDType(agg, "AggregateRating") {
				found = append(found, ldRating(agg))
			}
		}
	}
	return found
}

// markupRatings reads AggregateRating scopes declared with microdata
// (itemprop) or RDFa (property).
func markupRatings(doc *goquery.Document) []rating {
	found := []rating{}
	read := func(scope *goquery.Selection, key, prop string) any {
		el := scope.Find("[" + key + `="` + prop + `"]`).First()
		if el.Length() == 0 {
			return nil
		}
		if v, ok := el.Attr("content"); ok && v != "" {
			return v
		}
		return strings.TrimSpace(el.Text())
	}
	collect := func(scope *goquery.Selection, key string) {
		count := read(scope, key, "ratingCount")
		if count == nil {
			count = read(scope, key, "reviewCount")
		}
		found = append(found, rating{Type: "AggregateRating", Value: read(scope, key, "ratingValue"), Count: count})
	}
	attrContainsFold(doc, "itemtype", "aggregaterating").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("itemscope"); ok {
			collect(s, "itemprop")
		}
	})
	attrContainsFold(doc, "typeof", "aggregaterating").Each(func(_ int, s *goquery.Selection) {
		collect(s, "property")
	})
	return found
}

func ratingWidgets(doc *goquery.Document) []widgetHint {
	var hints []widgetHint
	for _, cls := range ratingWidgetHints {
		doc.Find(fmt.Sprintf(`.%s, [class*="%s"], #%s`, cls, cls, cls)).Each(func(_ int, el *goquery.Selection) {
			hints = append(hints, widgetHint{Hint: cls, Text: shorten(textOf(el), 120)})
		})
	}
	for _, needle := range []string{"rating", "ocena"} {
		attrContainsFold(doc, "aria-label", needle).Each(func(_ int, el *goquery.Selection) {
			hints = append(hints, widgetHint{Hint: "aria-label", Text: shorten(attr(el, "aria-label"), 120)})
		})
	}
	for _, m := range ratingText.FindAllString(textOf(doc.Selection), -1) {
		hints = append(hints, widgetHint{Hint: "text-pattern", Text: shorten(m, 120)})
	}

	seen := map[widgetHint]struct{}{}
	unique := []widgetHint{}
	for _, h := range hints {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			unique = append(unique, h)
		}
	}
	return unique
}

func (e *Env) blogpostRating(ctx context.Context, root string) (audit.Result, error) {
	const name = "blogpost_rating"
	u := target(root, e.settings.Pages.BlogPost)
	if u == "" {
		return audit.Skip(name, "pages.blog_post"), nil
	}
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	ld := jsonLDRatings(doc)
	markup := markupRatings(doc)
	ui := ratingWidgets(doc)
	hasSchema := len(ld) > 0 || len(markup) > 0
	hasUI := len(ui) > 0

	res := audit.NewResult(name, audit.StatusFail)
	switch {
	case hasSchema && !hasUI:
		res.Status = audit.StatusWarn
	case hasSchema || hasUI:
		res.Status = audit.StatusPass
	}
	res.Metrics["has_schema"] = hasSchema
	res.Metrics["has_ui"] = hasUI
	res.Metrics["jsonld_count"] = len(ld)
	res.Metrics["microdata_rdfa_count"] = len(markup)
	res.Metrics["ui_hints"] = len(ui)
	res.Metrics["checked_url"] = u
	res.Samples["jsonld"] = firstN(ld, 5)
	res.Samples["microdata_rdfa"] = firstN(markup, 5)
	res.Samples["ui"] = firstN(ui, e.settings.SampleLimit)
	res.FixHint = "Add a rating system: a star widget plus AggregateRating structured data (Article/BlogPosting with aggregateRating { ratingValue, ratingCount })."
	return res, nil
}

var contactFormWords = []string{"email", "wiadomość", "message", "kontakt", "contact"}

type formSample struct {
	HTML string `json:"form_html"`
}

func (e *Env) contactFormUnderPost(ctx context.Context, root string) (audit.Result, error) {
	const name = "contact_form_under_post"
	u := target(root, e.settings.Pages.BlogPost)
	if u == "" {
		return audit.Skip(name, "pages.blog_post"), nil
	}
	_, doc, err := e.page(ctx, u)
	if err != nil {
		return audit.Result{}, err
	}

	forms := doc.Find("form")
	contact := []formSample{}
	forms.Each(func(_ int, f *goquery.Selection) {
		txt := strings.ToLower(textOf(f))
		for _, w := range contactFormWords {
			if strings.Contains(txt, w) {
				html, _ := goquery.OuterHtml(f)
				contact = append(contact, formSample{HTML: clip(html, 180)})
				return
			}
		}
	})

	res := audit.NewResult(name, audit.StatusFail)
	if len(contact) > 0 {
		res.Status = audit.StatusPass
	}
	res.Metrics["checked_url"] = u
	res.Metrics["total_forms_found"] = forms.Length()
	res.Metrics["contact_forms_detected"] = len(contact)
	res.Samples["contact_forms"] = firstN(contact, 5)
	res.FixHint = "Add a contact form under the blog post, labelled with fields such as Email and Message."
	return res, nil
}
