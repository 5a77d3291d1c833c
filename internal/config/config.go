// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Answer   AnswerConfig   `mapstructure:"answer"`
	Search   SearchConfig   `mapstructure:"search"`
	Live     LiveConfig     `mapstructure:"live"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs crawl session defaults and limits.
type CrawlerConfig struct {
	MaxPagesDefault int `mapstructure:"max_pages_default"`
	MaxPagesLimit   int `mapstructure:"max_pages_limit"`
	Workers         int `mapstructure:"workers"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs  int    `mapstructure:"settle_delay_ms"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
}

// DBConfig controls access to the relational database. An empty DSN runs the
// service without persistence.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// AnswerConfig configures the LLM answering service.
type AnswerConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// SearchConfig configures the web search provider used for discovery.
type SearchConfig struct {
	UserAgent  string `mapstructure:"user_agent"`
	MaxResults int    `mapstructure:"max_results"`
}

// LiveConfig tunes live session streaming.
type LiveConfig struct {
	HeartbeatMs  int     `mapstructure:"heartbeat_ms"`
	FramesPerSec float64 `mapstructure:"frames_per_sec"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITESCOUT")
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
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.max_pages_limit", 100)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 1500)
	v.SetDefault("headless.viewport_width", 1280)
	v.SetDefault("headless.viewport_height", 800)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("answer.model", "claude-sonnet-4-20250514")
	v.SetDefault("answer.max_tokens", 1024)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("live.heartbeat_ms", 100)
	v.SetDefault("live.frames_per_sec", 5)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.Crawler.MaxPagesLimit < c.Crawler.MaxPagesDefault {
		return fmt.Errorf("crawler.max_pages_limit must be >= crawler.max_pages_default")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
	}
	if c.Live.HeartbeatMs <= 0 {
		return fmt.Errorf("live.heartbeat_ms must be > 0")
	}
	return nil
}

// NavTimeout returns the headless navigation budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// SettleDelay returns the post-navigation hydration delay as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Headless.SettleDelayMs) * time.Millisecond
}

// Heartbeat returns the live session heartbeat interval as a duration.
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.Live.HeartbeatMs) * time.Millisecond
}
