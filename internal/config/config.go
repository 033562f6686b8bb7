// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Site    SiteConfig    `mapstructure:"site"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SiteConfig describes the target site.
type SiteConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	RedirectURL     string `mapstructure:"redirect_url"`
	UserAgent       string `mapstructure:"user_agent"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	PageDelayMs     int    `mapstructure:"page_delay_ms"`
	EmptyPageStreak int    `mapstructure:"empty_page_streak"`
}

// CrawlConfig governs the processing pool and retry behavior.
type CrawlConfig struct {
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`
	RetryBaseMs      int `mapstructure:"retry_base_ms"`
	RetryMaxMs       int `mapstructure:"retry_max_ms"`
}

// EnrichConfig controls the text-generation provider pool.
type EnrichConfig struct {
	APIKeys         []string `mapstructure:"api_keys"`
	Model           string   `mapstructure:"model"`
	Language        string   `mapstructure:"language"`
	Concurrency     int      `mapstructure:"concurrency"`
	SpacingMs       int      `mapstructure:"spacing_ms"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	CooldownSeconds int      `mapstructure:"cooldown_seconds"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory store for local development.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLIPCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("site.timeout_seconds", 30)
	v.SetDefault("site.page_delay_ms", 500)
	v.SetDefault("site.empty_page_streak", 3)
	v.SetDefault("crawl.fetch_concurrency", 8)
	v.SetDefault("crawl.retry_max_attempts", 3)
	v.SetDefault("crawl.retry_base_ms", 250)
	v.SetDefault("crawl.retry_max_ms", 5000)
	v.SetDefault("enrich.model", "gpt-4o-mini")
	v.SetDefault("enrich.language", "English")
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.spacing_ms", 1000)
	v.SetDefault("enrich.timeout_seconds", 15)
	v.SetDefault("enrich.cooldown_seconds", 60)
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url %q is not an absolute URL", c.Site.BaseURL)
	}
	if c.Site.RedirectURL == "" {
		return fmt.Errorf("site.redirect_url is required")
	}
	if u, err := url.Parse(c.Site.RedirectURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.redirect_url %q is not an absolute URL", c.Site.RedirectURL)
	}
	if c.Crawl.FetchConcurrency <= 0 {
		return fmt.Errorf("crawl.fetch_concurrency must be positive")
	}
	if c.Enrich.Concurrency <= 0 {
		return fmt.Errorf("enrich.concurrency must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}
