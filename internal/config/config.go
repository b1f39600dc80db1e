// Package config assembles an immutable process configuration from the
// environment once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is built once in main and passed explicitly to every collaborator
// that needs it. Nothing below main reads the environment directly.
type Config struct {
	// Exchange
	KrakenBaseURL string
	KrakenWSURL   string

	// Universe
	MinVolume24hUSDT     float64
	MinOpenInterestUSDT  float64
	MinPriceUSDT         float64
	MaxPriceUSDT         float64
	BlacklistSymbols     map[string]struct{}
	UniverseSymbols      []string // optional static override of the discovered universe

	// Scoring / dispatch
	MinScoreThreshold float64
	CooldownSeconds   int
	MaxAlertsPerHour  int
	EnableBTCContext  bool

	// Notification
	NotifyWebhookURL string

	// Ambient
	LogLevel    string
	MetricsPort int

	// Optional governor store
	RedisAddr string
	RedisDB   int

	// Optional persistence
	PostgresDSN     string
	PostgresEnabled bool
}

// Load reads the process environment and applies defaults, following the
// env-override-after-defaults shape of
// internal/infrastructure/db.LoadAppConfig / applyEnvOverrides.
func Load() (*Config, error) {
	cfg := &Config{
		KrakenBaseURL: "https://futures.kraken.com/derivatives/api/v3",
		KrakenWSURL:   "wss://futures.kraken.com/ws/v1",

		MinVolume24hUSDT:    1_000_000,
		MinOpenInterestUSDT: 500_000,
		MinPriceUSDT:        0.0001,
		MaxPriceUSDT:        100_000,
		BlacklistSymbols:    map[string]struct{}{},

		MinScoreThreshold: 75,
		CooldownSeconds:   300,
		MaxAlertsPerHour:  20,
		EnableBTCContext:  true,

		LogLevel:    "info",
		MetricsPort: 2112,
	}

	if path := os.Getenv("FUNDINGPULSE_CONFIG_FILE"); path != "" {
		if err := applyYAMLOverrides(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("KRAKEN_BASE_URL"); v != "" {
		cfg.KrakenBaseURL = v
	}
	if v := os.Getenv("KRAKEN_WS_URL"); v != "" {
		cfg.KrakenWSURL = v
	}

	if err := overrideFloat(&cfg.MinVolume24hUSDT, "MIN_VOLUME_24H_USDT"); err != nil {
		return nil, err
	}
	if err := overrideFloat(&cfg.MinOpenInterestUSDT, "MIN_OPEN_INTEREST_USDT"); err != nil {
		return nil, err
	}
	if err := overrideFloat(&cfg.MinPriceUSDT, "MIN_PRICE_USDT"); err != nil {
		return nil, err
	}
	if err := overrideFloat(&cfg.MaxPriceUSDT, "MAX_PRICE_USDT"); err != nil {
		return nil, err
	}
	if err := overrideFloat(&cfg.MinScoreThreshold, "MIN_SCORE_THRESHOLD"); err != nil {
		return nil, err
	}

	if v := os.Getenv("BLACKLIST_SYMBOLS"); v != "" {
		for _, sym := range strings.Split(v, ",") {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym != "" {
				cfg.BlacklistSymbols[sym] = struct{}{}
			}
		}
	}

	if v := os.Getenv("UNIVERSE_SYMBOLS"); v != "" {
		for _, sym := range strings.Split(v, ",") {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym != "" {
				cfg.UniverseSymbols = append(cfg.UniverseSymbols, sym)
			}
		}
	}

	if v := os.Getenv("COOLDOWN_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("COOLDOWN_SECONDS: %w", err)
		}
		cfg.CooldownSeconds = n
	}
	if v := os.Getenv("MAX_ALERTS_PER_HOUR"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("MAX_ALERTS_PER_HOUR: %w", err)
		}
		cfg.MaxAlertsPerHour = n
	}
	if v := os.Getenv("ENABLE_BTC_CONTEXT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("ENABLE_BTC_CONTEXT: %w", err)
		}
		cfg.EnableBTCContext = b
	}

	cfg.NotifyWebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = n
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}

	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	if v := os.Getenv("POSTGRES_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("POSTGRES_ENABLED: %w", err)
		}
		cfg.PostgresEnabled = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the required configuration: the notification sink
// needs somewhere to deliver to, and an enabled Postgres layer needs a DSN.
func (c *Config) Validate() error {
	if c.NotifyWebhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required")
	}
	if c.PostgresEnabled && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required when POSTGRES_ENABLED=true")
	}
	if c.MaxPriceUSDT <= c.MinPriceUSDT {
		return fmt.Errorf("MAX_PRICE_USDT must exceed MIN_PRICE_USDT")
	}
	return nil
}

// yamlOverrides mirrors the subset of Config an operator may want to check
// into a deployment repo instead of setting one environment variable per
// field, following the optional-file-then-env-wins layering of
// datafacade/config.LoadConfig. Fields left zero in the file are left at
// their existing default.
type yamlOverrides struct {
	KrakenBaseURL       string   `yaml:"krakenBaseUrl"`
	KrakenWSURL         string   `yaml:"krakenWsUrl"`
	MinVolume24hUSDT    float64  `yaml:"minVolume24hUsdt"`
	MinOpenInterestUSDT float64  `yaml:"minOpenInterestUsdt"`
	MinPriceUSDT        float64  `yaml:"minPriceUsdt"`
	MaxPriceUSDT        float64  `yaml:"maxPriceUsdt"`
	BlacklistSymbols    []string `yaml:"blacklistSymbols"`
	MinScoreThreshold   float64  `yaml:"minScoreThreshold"`
	CooldownSeconds     int      `yaml:"cooldownSeconds"`
	MaxAlertsPerHour    int      `yaml:"maxAlertsPerHour"`
}

// applyYAMLOverrides layers a YAML file onto cfg's defaults before
// environment variables are applied, so env still has the final word.
func applyYAMLOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var ov yamlOverrides
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if ov.KrakenBaseURL != "" {
		cfg.KrakenBaseURL = ov.KrakenBaseURL
	}
	if ov.KrakenWSURL != "" {
		cfg.KrakenWSURL = ov.KrakenWSURL
	}
	if ov.MinVolume24hUSDT != 0 {
		cfg.MinVolume24hUSDT = ov.MinVolume24hUSDT
	}
	if ov.MinOpenInterestUSDT != 0 {
		cfg.MinOpenInterestUSDT = ov.MinOpenInterestUSDT
	}
	if ov.MinPriceUSDT != 0 {
		cfg.MinPriceUSDT = ov.MinPriceUSDT
	}
	if ov.MaxPriceUSDT != 0 {
		cfg.MaxPriceUSDT = ov.MaxPriceUSDT
	}
	for _, sym := range ov.BlacklistSymbols {
		cfg.BlacklistSymbols[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	if ov.MinScoreThreshold != 0 {
		cfg.MinScoreThreshold = ov.MinScoreThreshold
	}
	if ov.CooldownSeconds != 0 {
		cfg.CooldownSeconds = ov.CooldownSeconds
	}
	if ov.MaxAlertsPerHour != 0 {
		cfg.MaxAlertsPerHour = ov.MaxAlertsPerHour
	}
	return nil
}

func overrideFloat(dst *float64, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = f
	return nil
}

// CooldownWindow is CooldownSeconds as a time.Duration.
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// IsBlacklisted reports whether symbol is on the configured blacklist,
// case-insensitively.
func (c *Config) IsBlacklisted(symbol string) bool {
	_, ok := c.BlacklistSymbols[strings.ToUpper(symbol)]
	return ok
}
