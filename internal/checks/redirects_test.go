package checks

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/fetch"
)

func TestRedirectCandidates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"example.com", []string{"https://example.com", "http://example.com", "https://www.example.com"}},
		{"https://Example.com/path?q=1", []string{"https://example.com", "http://example.com", "https://www.example.com"}},
		{"www.example.com", []string{"https://www.example.com", "http://www.example.com", "https://example.com"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redirectCandidates(tt.in), tt.in)
	}
}

func redirected(final string, hops int) fetch.Outcome {
	out := fetch.Outcome{StatusCode: http.StatusOK, URL: final}
	for range hops {
		out.Redirects = append(out.Redirects, fetch.Hop{Status: http.StatusMovedPermanently, Location: final})
	}
	return out
}

func TestRedirectsCore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		site *fakeSite
		want audit.Status
	}{
		{
			name: "single hops",
			site: newFakeSite().
				set("https://example.com", redirected("https://example.com/", 0)).
				set("http://example.com", redirected("https://example.com/", 1)).
				set("https://www.example.com", redirected("https://example.com/", 1)),
			want: audit.StatusPass,
		},
		{
			name: "long chain",
			site: newFakeSite().
				set("https://example.com", redirected("https://example.com/", 0)).
				set("http://example.com", redirected("https://example.com/", 2)).
				set("https://www.example.com", redirected("https://example.com/", 1)),
			want: audit.StatusWarn,
		},
		{
			name: "bad final status",
			site: newFakeSite().
				set("https://example.com", redirected("https://example.com/", 0)).
				set("http://example.com", redirected("https://example.com/", 1)).
				set("https://www.example.com", fetch.Outcome{StatusCode: http.StatusForbidden}),
			want: audit.StatusWarn,
		},
		{
			name: "unreachable variant",
			site: newFakeSite().
				set("https://example.com", redirected("https://example.com/", 0)).
				set("http://example.com", redirected("https://example.com/", 1)).
				fail("https://www.example.com"),
			want: audit.StatusFail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := newTestEnv(tt.site, nil).redirectsCore(context.Background(), "example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestRedirectsCoreRejectsEmptyInput(t *testing.T) {
	t.Parallel()
	_, err := newTestEnv(newFakeSite(), nil).redirectsCore(context.Background(), "  ")
	require.Error(t, err)
}

func TestTrailingSlash(t *testing.T) {
	t.Parallel()

	t.Run("skips without contact page", func(t *testing.T) {
		t.Parallel()
		res, err := newTestEnv(newFakeSite(), nil).trailingSlash(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusSkip, res.Status)
	})

	t.Run("passes when both variants converge", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().
			set(root+"contact", redirected(root+"contact/", 1)).
			set(root+"contact/", redirected(root+"contact/", 0))
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.ContactPage = "/contact" })
		res, err := env.trailingSlash(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusPass, res.Status)
		assert.Equal(t, root+"contact/", res.Metrics["slash_final"])
	})

	t.Run("fails when variants differ", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root+"contact", "a").html(root+"contact/", "b")
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.ContactPage = "/contact/" })
		res, err := env.trailingSlash(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusFail, res.Status)
	})

	t.Run("returns fetch errors", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().fail(root + "contact")
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.ContactPage = "/contact" })
		_, err := env.trailingSlash(context.Background(), root)
		require.Error(t, err)
	})
}

func TestCacheHeaders(t *testing.T) {
	t.Parallel()
	site := newFakeSite().set(root, fetch.Outcome{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Cf-Cache-Status": []string{"HIT"}, "Age": []string{"12"}},
	})
	res, err := newTestEnv(site, nil).cacheHeaders(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusPass, res.Status)
	assert.Equal(t, []string{"cf-cache-status", "age"}, res.Metrics["headers_found"])
	assert.Equal(t, "HIT", res.Samples["cf-cache-status"])

	res, err = newTestEnv(newFakeSite().html(root, ""), nil).cacheHeaders(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusFail, res.Status)
}

func TestErrorPage404(t *testing.T) {
	t.Parallel()
	probe := root + "nonexistent-seo-audit-check-404-page"
	long := "<html><head><title>Not here</title></head><body>" + strings.Repeat("Sorry, page not found. ", 10) + "</body></html>"

	tests := []struct {
		name string
		out  fetch.Outcome
		want audit.Status
	}{
		{"soft 404", fetch.Outcome{StatusCode: http.StatusOK, Body: []byte(long)}, audit.StatusFail},
		{"real 404", fetch.Outcome{StatusCode: http.StatusNotFound, Body: []byte(long)}, audit.StatusPass},
		{"bare 404", fetch.Outcome{StatusCode: http.StatusNotFound, Body: []byte("404")}, audit.StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := newTestEnv(newFakeSite().set(probe, tt.out), nil).errorPage404(context.Background(), root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, probe, res.Samples["url_tested"])
		})
	}
}
