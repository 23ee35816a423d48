// Package config loads and validates auditor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. SITEAUDIT_CRAWL_LIMIT.
const EnvPrefix = "SITEAUDIT"

// DefaultEnvFile is read before the environment is consulted. Missing files
// are ignored.
const DefaultEnvFile = ".env"

// Config captures all auditor configuration knobs loaded via Viper.
type Config struct {
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Crawl        CrawlConfig        `mapstructure:"crawl"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Pages        PagesConfig        `mapstructure:"pages"`
	Checks       ChecksConfig       `mapstructure:"checks"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Report       ReportConfig       `mapstructure:"report"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// FetchConfig controls the shared HTTP client.
type FetchConfig struct {
	UserAgent    string            `mapstructure:"user_agent"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxBodyBytes int               `mapstructure:"max_body_bytes"`
	MaxRedirects int               `mapstructure:"max_redirects"`
	Headers      map[string]string `mapstructure:"headers"`
}

// CrawlConfig governs URL discovery and page pacing.
type CrawlConfig struct {
	Limit           int           `mapstructure:"limit"`
	Throttle        time.Duration `mapstructure:"throttle"`
	ImageThrottle   time.Duration `mapstructure:"image_throttle"`
	MaxImageHead    int           `mapstructure:"max_image_head"`
	MaxSitemapDepth int           `mapstructure:"max_sitemap_depth"`
	Sitemaps        []string      `mapstructure:"sitemaps"`
	ExtraURLs       []string      `mapstructure:"extra_urls"`
}

// ScoringConfig configures the PageSpeed Insights client.
type ScoringConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Strategies []string      `mapstructure:"strategies"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// PagesConfig names site-specific pages. Paths may be relative to the root
// or absolute URLs; empty values make dependent checks SKIP.
type PagesConfig struct {
	BlogPost       string   `mapstructure:"blog_post"`
	BlogPage       string   `mapstructure:"blog_page"`
	ShopPage       string   `mapstructure:"shop_page"`
	ProductPage    string   `mapstructure:"product_page"`
	ContactPage    string   `mapstructure:"contact_page"`
	SchemaPaths    []string `mapstructure:"schema_paths"`
	ClickablePaths []string `mapstructure:"clickable_paths"`
}

// ChecksConfig tunes individual checks.
type ChecksConfig struct {
	Disabled               []string `mapstructure:"disabled"`
	NofollowKeywords       []string `mapstructure:"nofollow_keywords"`
	NofollowSocialKeywords []string `mapstructure:"nofollow_social_keywords"`
	BlogHints              []string `mapstructure:"blog_hints"`
	ParagraphShort         int      `mapstructure:"paragraph_short_threshold"`
	ParagraphLong          int      `mapstructure:"paragraph_long_threshold"`
	LargeImageBytes        int64    `mapstructure:"large_image_bytes"`
	NotFoundPath           string   `mapstructure:"not_found_path"`
}

// OrchestratorConfig controls check execution.
type OrchestratorConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// ReportConfig selects where run reports are persisted.
type ReportConfig struct {
	Dir           string `mapstructure:"dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	PostgresRuns  string `mapstructure:"postgres_runs_table"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	return LoadWithEnvFile(path, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv file.
func LoadWithEnvFile(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.BindEnv("scoring.api_key", EnvPrefix+"_SCORING_API_KEY", "PSI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Checks.Disabled = splitList(cfg.Checks.Disabled)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", "siteaudit/0.1 (+https://github.com/JakeFAU/siteaudit)")
	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.headers", map[string]string{})

	v.SetDefault("crawl.limit", 50)
	v.SetDefault("crawl.throttle", 200*time.Millisecond)
	v.SetDefault("crawl.image_throttle", 50*time.Millisecond)
	v.SetDefault("crawl.max_image_head", 30)
	v.SetDefault("crawl.max_sitemap_depth", 5)
	v.SetDefault("crawl.sitemaps", []string{})
	v.SetDefault("crawl.extra_urls", []string{})

	v.SetDefault("scoring.endpoint", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed")
	v.SetDefault("scoring.api_key", "")
	v.SetDefault("scoring.strategies", []string{"mobile", "desktop"})
	v.SetDefault("scoring.timeout", 60*time.Second)
	v.SetDefault("scoring.max_retries", 3)
	v.SetDefault("scoring.base_delay", time.Second)
	v.SetDefault("scoring.multiplier", 2.0)

	v.SetDefault("pages.blog_post", "")
	v.SetDefault("pages.blog_page", "/blog/")
	v.SetDefault("pages.shop_page", "")
	v.SetDefault("pages.product_page", "")
	v.SetDefault("pages.contact_page", "/contact")
	v.SetDefault("pages.schema_paths", []string{"/contact/", "/blog/"})
	v.SetDefault("pages.clickable_paths", []string{"/", "/contact"})

	v.SetDefault("checks.disabled", []string{})
	v.SetDefault("checks.nofollow_keywords", []string{
		"regulamin", "polityka",
		"moje konto", "moje-konto", "konto",
		"koszyk", "cart",
		"logowanie", "zaloguj", "rejestracja",
		"Privacy Policy", "Terms of Service", "Terms and Conditions",
		"Ochrona danych", "Polityka prywatności", "Polityka cookies",
		"Zwroty i reklamacje", "Dostawa i płatności",
	})
	v.SetDefault("checks.nofollow_social_keywords", []string{
		"facebook", "instagram", "linkedin", "twitter", "youtube", "tiktok", "pinterest",
	})
	v.SetDefault("checks.blog_hints", []string{"/blog", "blog", "aktualności", "wpisy", "artykuły"})
	v.SetDefault("checks.paragraph_short_threshold", 20)
	v.SetDefault("checks.paragraph_long_threshold", 120)
	v.SetDefault("checks.large_image_bytes", 500_000)
	v.SetDefault("checks.not_found_path", "nonexistent-seo-audit-check-404-page")

	v.SetDefault("orchestrator.parallelism", 1)

	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.gcs_prefix", "reports")
	v.SetDefault("report.postgres_dsn", "")
	v.SetDefault("report.postgres_table", "audit_results")
	v.SetDefault("report.postgres_runs_table", "audit_runs")
	v.SetDefault("report.pubsub_project", "")
	v.SetDefault("report.pubsub_topic", "")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRedirects <= 0 {
		return fmt.Errorf("fetch.max_redirects must be > 0")
	}
	if c.Crawl.Limit <= 0 {
		return fmt.Errorf("crawl.limit must be > 0")
	}
	if c.Crawl.Throttle < 0 || c.Crawl.ImageThrottle < 0 {
		return fmt.Errorf("crawl throttles must be >= 0")
	}
	if c.Crawl.MaxSitemapDepth <= 0 {
		return fmt.Errorf("crawl.max_sitemap_depth must be > 0")
	}
	if c.Scoring.Timeout <= 0 {
		return fmt.Errorf("scoring.timeout must be > 0")
	}
	if c.Scoring.MaxRetries < 0 {
		return fmt.Errorf("scoring.max_retries must be >= 0")
	}
	if c.Scoring.Multiplier < 1 {
		return fmt.Errorf("scoring.multiplier must be >= 1")
	}
	for _, s := range c.Scoring.Strategies {
		if s != "mobile" && s != "desktop" {
			return fmt.Errorf("scoring.strategies: unknown strategy %q", s)
		}
	}
	if c.Orchestrator.Parallelism <= 0 {
		return fmt.Errorf("orchestrator.parallelism must be > 0")
	}
	if c.Report.Dir == "" {
		return fmt.Errorf("report.dir must be set")
	}
	if c.Report.PubSubTopic != "" && c.Report.PubSubProject == "" {
		return fmt.Errorf("report.pubsub_project must be set when report.pubsub_topic is set")
	}
	return nil
}

// splitList expands comma separated entries that arrive as one element.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
