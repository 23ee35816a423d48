package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/siteaudit/internal/fetch"
	"github.com/JakeFAU/siteaudit/internal/urlnorm"
)

// page fetches rawURL and parses the body. Unparseable markup yields an
// empty document rather than an error.
func (e *Env) page(ctx context.Context, rawURL string) (fetch.Outcome, *goquery.Document, error) {
	out, err := e.deps.Pages.Fetch(ctx, fetch.Request{URL: rawURL})
	if err != nil {
		return fetch.Outcome{}, nil, err
	}
	return out, parseHTML(out.Body), nil
}

func parseHTML(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return doc
}

// target resolves a configured page against root. Empty stays empty.
func target(root, configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return ""
	}
	return urlnorm.Resolve(root, configured)
}

// textOf joins the trimmed text nodes under sel with single spaces,
// skipping script and style content.
func textOf(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "template", "noscript":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// shorten truncates s to n runes, appending an ellipsis when cut.
func shorten(s string, n int) string {
	s = collapseSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// clip truncates s to n runes without decoration.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstN[T any](items []T, n int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func title(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// basicMeta extracts the title, meta description and canonical href.
func basicMeta(doc *goquery.Document) (titleText, description, canonical string) {
	titleText = title(doc)
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(attr(s, "name"), "description") {
			description = attr(s, "content")
			return description == ""
		}
		return true
	})
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasToken(attr(s, "rel"), "canonical") {
			canonical = attr(s, "href")
			return canonical == ""
		}
		return true
	})
	return titleText, description, canonical
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(list)) {
		if t == token {
			return true
		}
	}
	return false
}

// jsonLD decodes every ld+json block, skipping malformed ones. Top-level
// arrays and @graph members are flattened into the returned list.
func jsonLD(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		out = append(out, flattenLD(data)...)
	})
	return out
}

func flattenLD(data any) []map[string]any {
	switch v := data.(type) {
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		return out
	default:
		return nil
	}
}

// ldTypes returns the @type values of a JSON-LD node.
func ldTypes(node map[string]any) []string {
	switch t := node["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	default:
		return nil
	}
}

func hasLDType(node map[string]any, want string) bool {
	for _, t := range ldTypes(node) {
		if t == want {
			return true
		}
	}
	return false
}

// attrContainsFold selects elements whose attribute contains needle,
// ignoring case.
func attrContainsFold(doc *goquery.Document, attrName, needle string) *goquery.Selection {
	needle = strings.ToLower(needle)
	return doc.Find("[" + attrName + "]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(attr(s, attrName)), needle)
	})
}
