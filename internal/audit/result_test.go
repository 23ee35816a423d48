package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultMarshalJSONAlwaysHasMaps(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Result{Name: "cache_headers", Status: StatusWarn})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"name":"cache_headers","status":"WARN","metrics":{},"samples":{},"fix_hint":""}`,
		string(data),
	)
}

func TestResultMarshalJSONIncludesErrorWhenSet(t *testing.T) {
	t.Parallel()

	r := Failed("psi", errors.New("quota"))
	r.Metrics["strategies_checked"] = []string{"mobile"}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "quota", back.Error)
	assert.Equal(t, StatusError, back.Status)
	assert.Equal(t, []any{"mobile"}, back.Metrics["strategies_checked"])
}

func TestResultMarshalJSONKeepsHTMLCharacters(t *testing.T) {
	t.Parallel()

	res := NewResult("nofollow_links_check", StatusFail)
	res.Samples["links"] = []string{"https://example.com/?a=1&b=<2>"}

	data, err := res.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `https://example.com/?a=1&b=<2>`)
	assert.NotContains(t, string(data), `\u0026`)
	assert.False(t, bytes.HasSuffix(data, []byte("\n")))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode([]Result{res}))
	assert.Contains(t, buf.String(), `?a=1&b=<2>`)
}

func TestFailedWithoutMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown error", Failed("x", nil).Error)
}

func TestSkipExplainsSetting(t *testing.T) {
	t.Parallel()

	r := Skip("blog_author", "pages.blog_post")
	assert.Equal(t, StatusSkip, r.Status)
	assert.Contains(t, r.Metrics["reason"], "pages.blog_post")
	assert.Contains(t, r.FixHint, "pages.blog_post")
}
