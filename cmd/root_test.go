package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/config"
	"github.com/JakeFAU/siteaudit/internal/report"
)

type fakeAuditor struct {
	run     report.Run
	err     error
	input   string
	pretty  bool
	results []audit.Result
	closed  bool
}

func (f *fakeAuditor) Registry() audit.Registry { return nil }

func (f *fakeAuditor) Run(_ context.Context, input string, observer audit.Observer, pretty bool) (report.Run, error) {
	f.input = input
	f.pretty = pretty
	for i, res := range f.results {
		observer.CheckStarted(i, len(f.results), res.Name)
		observer.CheckFinished(i, len(f.results), res, 1230*time.Millisecond)
	}
	return f.run, f.err
}

func (f *fakeAuditor) Close() { f.closed = true }

func quietConfig(path string) (config.Config, error) {
	cfg, err := config.LoadWithEnvFile(path, "")
	if err != nil {
		return config.Config{}, err
	}
	cfg.Logging.Development = false
	cfg.Logging.Level = "error"
	return cfg, nil
}

// stub replaces the factories for one test.
func stub(t *testing.T, load func(string) (config.Config, error), auditor Auditor, buildErr error) {
	t.Helper()
	origLoad, origNew := loadConfig, newAuditor
	t.Cleanup(func() {
		loadConfig, newAuditor = origLoad, origNew
	})
	loadConfig = load
	newAuditor = func(context.Context, config.Config, *zap.Logger) (Auditor, error) {
		if buildErr != nil {
			return nil, buildErr
		}
		return auditor, nil
	}
}

func run(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestExecuteWritesReportAndExitCode(t *testing.T) {
	results := []audit.Result{
		audit.NewResult("headings_h1", audit.StatusFail),
		audit.Skip("alt_tags", "pages.product_page or pages.blog_post"),
	}
	payload, err := report.Encode(results, false)
	require.NoError(t, err)
	fake := &fakeAuditor{
		results: results,
		run: report.Run{
			Results:   results,
			Payload:   payload,
			Overall:   audit.StatusFail,
			ExitCode:  2,
			Locations: []string{"reports/example.com/example.com_2026-10-18_09-05.json"},
		},
	}
	stub(t, quietConfig, fake, nil)

	code, stdout, stderr := run("example.com")

	assert.Equal(t, 2, code)
	assert.Equal(t, string(payload), stdout)
	assert.Contains(t, stderr, "[1/2] RUN headings_h1 -> FAIL (1.23s)")
	assert.Contains(t, stderr, "[2/2] RUN alt_tags -> SKIP (1.23s)")
	assert.Contains(t, stderr, "Summary: PASS=0 WARN=0 FAIL=1 ERROR=0 SKIP=1 -> overall FAIL (exit 2)")
	assert.Contains(t, stderr, "Report saved: reports/example.com/example.com_2026-10-18_09-05.json")
	assert.Equal(t, "example.com", fake.input)
	assert.False(t, fake.pretty)
	assert.True(t, fake.closed)
}

func TestExecutePrettyFlag(t *testing.T) {
	fake := &fakeAuditor{run: report.Run{Payload: []byte("[]\n"), Overall: audit.StatusPass}}
	stub(t, quietConfig, fake, nil)

	code, stdout, _ := run("--pretty", "https://example.com/blog")

	assert.Equal(t, 0, code)
	assert.Equal(t, "[]\n", stdout)
	assert.True(t, fake.pretty)
	assert.Equal(t, "https://example.com/blog", fake.input)
}

func TestExecuteFailuresExitThree(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		load     func(string) (config.Config, error)
		buildErr error
		runErr   error
		wantErr  string
	}{
		{
			name:    "missing argument",
			args:    nil,
			load:    quietConfig,
			wantErr: "accepts 1 arg(s)",
		},
		{
			name: "config error",
			args: []string{"example.com"},
			load: func(string) (config.Config, error) {
				return config.Config{}, errors.New("crawl.limit must be > 0")
			},
			wantErr: "load config: crawl.limit must be > 0",
		},
		{
			name:     "services fail",
			args:     []string{"example.com"},
			load:     quietConfig,
			buildErr: errors.New("connect postgres: refused"),
			wantErr:  "initialize audit services",
		},
		{
			name:    "bad target",
			args:    []string{" "},
			load:    quietConfig,
			runErr:  errors.New("invalid target: empty domain or url"),
			wantErr: "invalid target",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAuditor{err: tt.runErr}
			stub(t, tt.load, fake, tt.buildErr)

			code, stdout, stderr := run(tt.args...)

			assert.Equal(t, exitNoResults, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestChecksCommandListsRegistry(t *testing.T) {
	load := func(path string) (config.Config, error) {
		cfg, err := quietConfig(path)
		cfg.Checks.Disabled = []string{"psi"}
		return cfg, err
	}
	stub(t, load, nil, errors.New("checks must not build services"))

	code, stdout, _ := run("checks")

	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 25)
	assert.Contains(t, lines[0], "meta_tags_coverage")
	assert.Contains(t, lines[0], "enabled")
	assert.Contains(t, lines[3], "redirects_core")
	assert.Contains(t, lines[3], "raw")
	assert.Contains(t, lines[17], "psi")
	assert.Contains(t, lines[17], "disabled")
	assert.Contains(t, lines[24], "footer_year")
}

func TestProgressIsSerialized(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			p.CheckFinished(i, 8, audit.NewResult("faq", audit.StatusPass), time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 8)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "["), l)
		assert.True(t, strings.HasSuffix(l, "-> PASS (1.00s)"), l)
	}
}
