package checks

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/fetch"
)

func image(ctype, length string) fetch.Outcome {
	return fetch.Outcome{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{ctype}, "Content-Length": []string{length}},
	}
}

func TestListImages(t *testing.T) {
	t.Parallel()
	doc := parseHTML([]byte(`
		<img src="/a.jpg"><img src="/a.jpg"><img src="b.png">
		<picture><source srcset="/c.webp 1x, /c2.webp 2x"></picture>`))

	assert.Equal(t, []string{root + "a.jpg", root + "blog/b.png", root + "c.webp"}, listImages(doc, root+"blog/", 10))
	assert.Len(t, listImages(doc, root, 2), 2)
}

func TestImagesWeight(t *testing.T) {
	t.Parallel()
	body := `<img src="/big.jpg"><img src="/small.webp"><img src="/broken.png">`

	t.Run("webp with oversized image warns", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root, body).
			set("HEAD "+root+"big.jpg", image("image/jpeg", "900000")).
			set("HEAD "+root+"small.webp", image("image/webp", "1000")).
			fail("HEAD " + root + "broken.png")
		res, err := newTestEnv(site, nil).imagesWeight(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusWarn, res.Status)
		assert.Equal(t, 3, res.Metrics["checked_imgs"])
		assert.Equal(t, true, res.Metrics["has_webp"])
		largest := res.Metrics["largest_bytes"].([]imageInfo)
		require.Len(t, largest, 2)
		assert.Equal(t, root+"big.jpg", largest[0].URL)
		assert.Len(t, res.Samples["too_big_top"], 1)
	})

	t.Run("no webp fails", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root, `<img src="/a.jpg">`).set("HEAD "+root+"a.jpg", image("image/jpeg", "100"))
		res, err := newTestEnv(site, nil).imagesWeight(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusFail, res.Status)
	})

	t.Run("light webp passes and heads use HEAD", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root, `<img src="/a.webp">`).set("HEAD "+root+"a.webp", image("image/webp", "100"))
		res, err := newTestEnv(site, nil).imagesWeight(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusPass, res.Status)
		assert.Equal(t, http.MethodHead, site.requests[1].Method)
	})
}

func TestSchemaPages(t *testing.T) {
	t.Parallel()
	ld := `<script type="application/ld+json">[{"@type":"Organization"},{"@type":["WebSite","Thing"]}]</script>`

	t.Run("home schema passes", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root, ld+`<div itemscope itemtype="https://schema.org/Product"></div><div typeof="Person"></div>`)
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.SchemaPaths = []string{"/", "/blog/"} })
		res, err := env.schemaPages(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusPass, res.Status)
		assert.Equal(t, 2, res.Metrics["checked_pages"])
		perPage := res.Samples["per_page_types"].(map[string]pageTypes)
		assert.Equal(t, []string{"Organization", "Person", "Thing", "WebSite", "https://schema.org/Product"}, perPage[root].Types)
		assert.Nil(t, perPage[root].Error)
	})

	t.Run("subpage only warns", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().html(root, `<p>plain</p>`).html(root+"blog/", ld)
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.SchemaPaths = []string{"/blog/"} })
		res, err := env.schemaPages(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusWarn, res.Status)
	})

	t.Run("errors are recorded per page", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().fail(root)
		res, err := newTestEnv(site, nil).schemaPages(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusFail, res.Status)
		assert.Equal(t, 1, res.Metrics["errors"])
		perPage := res.Samples["per_page_types"].(map[string]pageTypes)
		require.NotNil(t, perPage[root].Error)
		assert.Empty(t, perPage[root].Types)
	})
}

func TestFAQ(t *testing.T) {
	t.Parallel()

	t.Run("json-ld on contact page", func(t *testing.T) {
		t.Parallel()
		site := newFakeSite().
			html(root, `<p>home</p>`).
			html(root+"contact", `<script type="application/ld+json">{"@type":"FAQPage"}</script><section id="faq-list"></section>`)
		env := newTestEnv(site, func(s *Settings, _ *Deps) { s.Pages.ContactPage = "/contact" })
		res, err := env.faq(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusPass, res.Status)
		assert.Equal(t, 2, res.Metrics["faq_found"])
		assert.Equal(t, []string{root, root + "contact"}, res.Metrics["checked_urls"])
	})

	t.Run("missing faq fails", func(t *testing.T) {
		t.Parallel()
		res, err := newTestEnv(newFakeSite().html(root, `<p>home</p>`), nil).faq(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusFail, res.Status)
	})

	t.Run("fetch error aborts", func(t *testing.T) {
		t.Parallel()
		_, err := newTestEnv(newFakeSite().fail(root), nil).faq(context.Background(), root)
		require.Error(t, err)
	})
}
