package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
fetch:
  user_agent: audit-agent
  timeout: 5s
  headers:
    accept-language: pl-PL
crawl:
  limit: 10
  throttle: 0s
  sitemaps: ["/page-sitemap.xml"]
  extra_urls: ["/reklamy/", "/blog/post/"]
scoring:
  strategies: ["mobile"]
  api_key: from-file
pages:
  blog_post: /blog/post/
  contact_page: /kontakt
checks:
  disabled: ["psi", "faq"]
orchestrator:
  parallelism: 4
report:
  dir: out
  postgres_dsn: postgres://localhost/audit
logging:
  development: false
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "audit-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "pl-PL", cfg.Fetch.Headers["accept-language"])
	assert.Equal(t, 10, cfg.Crawl.Limit)
	assert.Equal(t, time.Duration(0), cfg.Crawl.Throttle)
	assert.Equal(t, []string{"/page-sitemap.xml"}, cfg.Crawl.Sitemaps)
	assert.Equal(t, []string{"/reklamy/", "/blog/post/"}, cfg.Crawl.ExtraURLs)
	assert.Equal(t, []string{"mobile"}, cfg.Scoring.Strategies)
	assert.Equal(t, "/blog/post/", cfg.Pages.BlogPost)
	assert.Equal(t, "/kontakt", cfg.Pages.ContactPage)
	assert.Equal(t, []string{"psi", "faq"}, cfg.Checks.Disabled)
	assert.Equal(t, 4, cfg.Orchestrator.Parallelism)
	assert.Equal(t, "out", cfg.Report.Dir)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithEnvFile("", "")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 50, cfg.Crawl.Limit)
	assert.Equal(t, 200*time.Millisecond, cfg.Crawl.Throttle)
	assert.Equal(t, 50*time.Millisecond, cfg.Crawl.ImageThrottle)
	assert.Equal(t, 30, cfg.Crawl.MaxImageHead)
	assert.Equal(t, 5, cfg.Crawl.MaxSitemapDepth)
	assert.Equal(t, []string{"mobile", "desktop"}, cfg.Scoring.Strategies)
	assert.Equal(t, 60*time.Second, cfg.Scoring.Timeout)
	assert.Equal(t, 3, cfg.Scoring.MaxRetries)
	assert.Equal(t, time.Second, cfg.Scoring.BaseDelay)
	assert.InDelta(t, 2.0, cfg.Scoring.Multiplier, 0.0001)
	assert.Empty(t, cfg.Pages.BlogPost)
	assert.Equal(t, "/blog/", cfg.Pages.BlogPage)
	assert.Contains(t, cfg.Checks.NofollowKeywords, "regulamin")
	assert.Contains(t, cfg.Checks.NofollowSocialKeywords, "facebook")
	assert.Equal(t, 1, cfg.Orchestrator.Parallelism)
	assert.Equal(t, "reports", cfg.Report.Dir)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SITEAUDIT_CRAWL_LIMIT", "7")
	t.Setenv("SITEAUDIT_CRAWL_THROTTLE", "1s")
	t.Setenv("SITEAUDIT_CHECKS_DISABLED", "psi, faq")
	t.Setenv("SITEAUDIT_PAGES_BLOG_POST", "/post/")

	cfg, err := LoadWithEnvFile("", "")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Crawl.Limit)
	assert.Equal(t, time.Second, cfg.Crawl.Throttle)
	assert.Equal(t, []string{"psi", "faq"}, cfg.Checks.Disabled)
	assert.Equal(t, "/post/", cfg.Pages.BlogPost)
}

func TestLoadReadsDotEnvAndPSIKey(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PSI_API_KEY=dotenv-key\n"), 0o600))
	t.Setenv("PSI_API_KEY", "")
	require.NoError(t, os.Unsetenv("PSI_API_KEY"))

	cfg, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Scoring.APIKey)
}

func TestLoadMissingDotEnvIgnored(t *testing.T) {
	_, err := LoadWithEnvFile("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "read config:"), err.Error())
}

func TestValidate(t *testing.T) {
	base, err := LoadWithEnvFile("", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero limit", func(c *Config) { c.Crawl.Limit = 0 }, "crawl.limit"},
		{"zero timeout", func(c *Config) { c.Fetch.Timeout = 0 }, "fetch.timeout"},
		{"negative throttle", func(c *Config) { c.Crawl.Throttle = -time.Second }, "throttles"},
		{"bad strategy", func(c *Config) { c.Scoring.Strategies = []string{"tablet"} }, "tablet"},
		{"zero parallelism", func(c *Config) { c.Orchestrator.Parallelism = 0 }, "parallelism"},
		{"topic without project", func(c *Config) { c.Report.PubSubTopic = "runs" }, "pubsub_project"},
		{"shrinking multiplier", func(c *Config) { c.Scoring.Multiplier = 0.5 }, "multiplier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
