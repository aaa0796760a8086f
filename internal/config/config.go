// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// EnvPrefix namespaces every environment override, e.g. OPINION_SCRAPER_MAX_ARTICLES.
const EnvPrefix = "OPINION"

// Browser drivers selectable through grid.driver.
const (
	DriverRemote = "remote"
	DriverLocal  = "local"
	DriverStatic = "static"
)

// Image providers selectable through images.provider.
const (
	ImagesLocal = "local"
	ImagesGCS   = "gcs"
)

// DefaultBuildName groups the default targets on the grid dashboard.
const DefaultBuildName = "ElPais Parallel Build"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig              `mapstructure:"site"`
	Scraper   ScraperConfig           `mapstructure:"scraper"`
	Grid      GridConfig              `mapstructure:"grid"`
	Targets   []crawler.BrowserTarget `mapstructure:"targets"`
	Translate TranslateConfig         `mapstructure:"translate"`
	Images    ImagesConfig            `mapstructure:"images"`
	Reports   ReportsConfig           `mapstructure:"reports"`
	PubSub    PubSubConfig            `mapstructure:"pubsub"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
	Logging   LoggingConfig           `mapstructure:"logging"`
}

// SiteConfig describes the news site being scraped.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	SectionName string `mapstructure:"section_name"`
	SectionPath string `mapstructure:"section_path"`
	ConsentText string `mapstructure:"consent_text"`
}

// ScraperConfig bounds waits and article counts.
type ScraperConfig struct {
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	ConsentTimeout time.Duration `mapstructure:"consent_timeout"`
	MaxArticles    int           `mapstructure:"max_articles"`
}

// GridConfig selects the browser driver and carries grid credentials.
type GridConfig struct {
	Driver            string        `mapstructure:"driver"`
	Endpoint          string        `mapstructure:"endpoint"`
	Username          string        `mapstructure:"username"`
	AccessKey         string        `mapstructure:"access_key"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	ShowWindow        bool          `mapstructure:"show_window"`
}

// TranslateConfig configures the RapidAPI translator and its limiter.
type TranslateConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Endpoint      string        `mapstructure:"endpoint"`
	Host          string        `mapstructure:"host"`
	From          string        `mapstructure:"from"`
	To            string        `mapstructure:"to"`
	Delay         time.Duration `mapstructure:"delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SharedLimiter bool          `mapstructure:"shared_limiter"`
}

// ImagesConfig selects where cover images are written.
type ImagesConfig struct {
	Provider  string        `mapstructure:"provider"`
	Dir       string        `mapstructure:"dir"`
	GCSBucket string        `mapstructure:"gcs_bucket"`
	GCSPrefix string        `mapstructure:"gcs_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReportsConfig enables Postgres persistence when DSN is set.
type ReportsConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables report notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether publishing is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Load reads .env (if present), then defaults, the optional config file and
// the environment, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindCredentials(v); err != nil {
		return Config{}, err
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindCredentials lets the conventional unprefixed variables fill the
// credential keys; the prefixed names still win.
func bindCredentials(v *viper.Viper) error {
	bindings := map[string][]string{
		"grid.username":     {"OPINION_GRID_USERNAME", "BROWSERSTACK_USERNAME"},
		"grid.access_key":   {"OPINION_GRID_ACCESS_KEY", "BROWSERSTACK_ACCESS_KEY"},
		"translate.api_key": {"OPINION_TRANSLATE_API_KEY", "RAPIDAPI_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", crawler.DefaultBaseURL)
	v.SetDefault("site.section_name", crawler.DefaultSectionName)
	v.SetDefault("site.section_path", crawler.DefaultSectionPath)
	v.SetDefault("site.consent_text", crawler.DefaultConsentText)
	v.SetDefault("scraper.wait_timeout", crawler.DefaultWaitTimeout)
	v.SetDefault("scraper.consent_timeout", crawler.DefaultConsentTimeout)
	v.SetDefault("scraper.max_articles", crawler.DefaultMaxArticles)
	v.SetDefault("grid.driver", DriverRemote)
	v.SetDefault("grid.endpoint", "wss://cdp.browserstack.com/puppeteer")
	v.SetDefault("grid.navigation_timeout", 45*time.Second)
	v.SetDefault("grid.max_parallel", 5)
	v.SetDefault("targets", defaultTargets())
	v.SetDefault("translate.from", "es")
	v.SetDefault("translate.to", "en")
	v.SetDefault("translate.delay", 500*time.Millisecond)
	v.SetDefault("translate.timeout", 15*time.Second)
	v.SetDefault("translate.shared_limiter", false)
	v.SetDefault("images.provider", ImagesLocal)
	v.SetDefault("images.dir", "images")
	v.SetDefault("images.timeout", 30*time.Second)
	v.SetDefault("reports.table", "session_reports")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "logs/execution.log")
}

func defaultTargets() []map[string]any {
	target := func(browser, os, osVersion, device, session string) map[string]any {
		return map[string]any{
			"browser_name":    browser,
			"browser_version": "latest",
			"os":              os,
			"os_version":      osVersion,
			"device_name":     device,
			"session_name":    session,
			"build_name":      DefaultBuildName,
		}
	}
	return []map[string]any{
		target("Chrome", "Windows", "11", "", "Chrome - Windows"),
		target("Firefox", "Windows", "11", "", "Firefox - Windows"),
		target("Safari", "OS X", "Monterey", "", "Safari - macOS"),
		target("Chrome", "", "12.0", "Samsung Galaxy S22", "Samsung Galaxy S22"),
		target("Safari", "", "16", "iPhone 14", "iPhone 14"),
	}
}

// Validate enforces required values and reasonable limits. Every missing
// credential is reported at once.
func (c Config) Validate() error {
	var missing []string
	if c.Grid.Driver == DriverRemote {
		if c.Grid.Username == "" {
			missing = append(missing, "BROWSERSTACK_USERNAME")
		}
		if c.Grid.AccessKey == "" {
			missing = append(missing, "BROWSERSTACK_ACCESS_KEY")
		}
	}
	if c.Translate.APIKey == "" {
		missing = append(missing, "RAPIDAPI_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}

	switch c.Grid.Driver {
	case DriverRemote, DriverLocal, DriverStatic:
	default:
		return fmt.Errorf("grid.driver must be one of remote, local, static (got %q)", c.Grid.Driver)
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	if c.Translate.Delay < 0 {
		return errors.New("translate.delay must be >= 0")
	}
	if c.Translate.Timeout <= 0 {
		return errors.New("translate.timeout must be > 0")
	}
	if c.Images.Timeout <= 0 {
		return errors.New("images.timeout must be > 0")
	}
	switch c.Images.Provider {
	case ImagesLocal:
		if c.Images.Dir == "" {
			return errors.New("images.dir must be set for the local provider")
		}
	case ImagesGCS:
		if c.Images.GCSBucket == "" {
			return errors.New("images.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("images.provider must be local or gcs (got %q)", c.Images.Provider)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	return c.Pipeline().Validate()
}

// Pipeline maps the site and scraper sections onto the pipeline layout.
func (c Config) Pipeline() crawler.PipelineConfig {
	p := crawler.DefaultPipelineConfig()
	p.BaseURL = c.Site.BaseURL
	p.SectionName = c.Site.SectionName
	p.SectionPath = c.Site.SectionPath
	p.ConsentText = c.Site.ConsentText
	p.WaitTimeout = c.Scraper.WaitTimeout
	p.ConsentTimeout = c.Scraper.ConsentTimeout
	p.MaxArticles = c.Scraper.MaxArticles
	return p
}

// Credentials returns the grid account.
func (c Config) Credentials() crawler.Credentials {
	return crawler.Credentials{Username: c.Grid.Username, AccessKey: c.Grid.AccessKey}
}
