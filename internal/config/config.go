// Package config provides application-wide configuration management.
// All configuration is loaded from a JSON file layered with environment
// variables (via viper), with an optional local .env file loaded first
// (via godotenv) for development convenience. No configuration is
// hardcoded in strategist, execution, or broker logic.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nitinkhare/quantumflow/internal/errs"
)

// Mode controls whether the engine runs in paper or live trading mode.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// BrokerCreds holds one mode's (paper or live) KIS application
// credentials. All TR identifiers are switched together based on
// USE_PAPER (spec §6).
type BrokerCreds struct {
	AppKey    string
	AppSecret string
	AccountNo string
	ProductCd string
	BaseURL   string
}

// SizingConfig holds the position-sizing and exit-policy constants from
// spec §4.5–§4.6. All are tunable but default to the spec's values.
type SizingConfig struct {
	BaseFraction        float64 `mapstructure:"base_fraction"`
	InitialStopATRMult  float64 `mapstructure:"initial_stop_atr_mult"`
	TrailingStopPct     float64 `mapstructure:"trailing_stop_pct"`
	TakeProfitPct       float64 `mapstructure:"take_profit_pct"`
	TimeStopDays        int     `mapstructure:"time_stop_days"`
	PyramidATRMult      float64 `mapstructure:"pyramid_atr_mult"`
	PyramidAddFraction  float64 `mapstructure:"pyramid_add_fraction"`
	PyramidStopPct      float64 `mapstructure:"pyramid_stop_pct"`
	Track2QualifyPnLPct float64 `mapstructure:"track2_qualify_pnl_pct"`
	Track2ChgMin        float64 `mapstructure:"track2_chg_min"`
	Track2MaxPopulation int     `mapstructure:"track2_max_population"`
	NextDayGapDownPct   float64 `mapstructure:"next_day_gap_down_pct"`
	NextDayTrailPct     float64 `mapstructure:"next_day_trail_pct"`
	MaxOpenPositions    int     `mapstructure:"max_open_positions"`
	MacroBoostMaxPositions int  `mapstructure:"macro_boost_max_positions"`
	DailyLossLimitPct   float64 `mapstructure:"daily_loss_limit_pct"`
	RecoveryMultiplier  float64 `mapstructure:"recovery_multiplier"`
}

// DefaultSizing returns spec.md's defaults (§4.5, §4.6).
func DefaultSizing() SizingConfig {
	return SizingConfig{
		BaseFraction:           0.20,
		InitialStopATRMult:     2.0,
		TrailingStopPct:        0.02,
		TakeProfitPct:          0.07,
		TimeStopDays:           3,
		PyramidATRMult:         1.5,
		PyramidAddFraction:     0.30,
		PyramidStopPct:         0.03,
		Track2QualifyPnLPct:    0.03,
		Track2ChgMin:           0.60,
		Track2MaxPopulation:    2,
		NextDayGapDownPct:      -0.01,
		NextDayTrailPct:        0.05,
		MaxOpenPositions:       5,
		MacroBoostMaxPositions: 6,
		DailyLossLimitPct:      -0.03,
		RecoveryMultiplier:     0.6,
	}
}

// Config holds all system configuration, loaded once at startup and
// passed as read-only to all components.
type Config struct {
	UsePaper bool `mapstructure:"use_paper"`

	Paper BrokerCreds
	Live  BrokerCreds

	Capital float64 `mapstructure:"capital"`

	Sizing SizingConfig `mapstructure:"sizing"`

	DatabaseURL string `mapstructure:"database_url"`

	MarketCalendarPath string `mapstructure:"market_calendar_path"`

	OutputsDir string `mapstructure:"outputs_dir"`

	Dashboard DashboardConfig `mapstructure:"dashboard"`

	Notifier NotifierConfig `mapstructure:"notifier"`

	Adjudicator AdjudicatorConfig `mapstructure:"adjudicator"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	Ingest IngestConfig `mapstructure:"ingest"`

	DryRun bool `mapstructure:"-"`
}

// AdjudicatorConfig points at the OpenAI-compatible endpoint the market
// watcher calls for Risk-Off/stabilization judgments (spec §4.7.3).
type AdjudicatorConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// CircuitBreakerConfig bounds consecutive and hourly broker-call
// failures before new entries are throttled (spec §7 "transient"
// escalation path).
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	MaxFailuresPerHour     int `mapstructure:"max_failures_per_hour"`
	CooldownMinutes        int `mapstructure:"cooldown_minutes"`
}

// IngestConfig controls the HTTP surface the external macro agent and
// candidate scanner push their outputs through (spec §2 "external
// agents write into C2").
type IngestConfig struct {
	Port int `mapstructure:"port"`
}

// DashboardConfig controls the monitoring HTTP/WS server.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
}

// NotifierConfig controls the outbound notification webhook.
type NotifierConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// ActiveCreds returns the credentials for whichever mode is active.
func (c *Config) ActiveCreds() BrokerCreds {
	if c.UsePaper {
		return c.Paper
	}
	return c.Live
}

// ActiveMode returns the Mode corresponding to UsePaper.
func (c *Config) ActiveMode() Mode {
	if c.UsePaper {
		return ModePaper
	}
	return ModeLive
}

// Load reads configuration from a JSON file (required; a missing or
// unreadable file is a configuration error), a local .env file (if
// present), and environment variables, in that precedence order (env
// wins). Mirrors the teacher's JSON+env layering, generalized
// to viper so KIS's many paired credential variables don't need manual
// plumbing.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("QF")
	v.AutomaticEnv()

	v.SetDefault("use_paper", true)
	v.SetDefault("outputs_dir", "outputs")
	v.SetDefault("sizing", structMap(DefaultSizing()))
	v.SetDefault("circuit_breaker.max_consecutive_failures", 5)
	v.SetDefault("circuit_breaker.max_failures_per_hour", 10)
	v.SetDefault("circuit_breaker.cooldown_minutes", 15)
	v.SetDefault("ingest.port", 8090)
	v.SetDefault("dashboard.port", 8081)

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.New(errs.Configuration, "config.Load", "", fmt.Errorf("read %s: %w", path, err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.New(errs.Configuration, "config.Load", "", fmt.Errorf("unmarshal: %w", err))
	}

	bindBrokerCreds(&cfg, v)

	if err := cfg.Validate(); err != nil {
		return nil, errs.New(errs.Configuration, "config.Load", "", fmt.Errorf("validation failed: %w", err))
	}

	return &cfg, nil
}

// bindBrokerCreds reads the paired paper/live KIS env vars directly —
// viper's nested-struct env binding doesn't reach these reliably across
// platforms, so they're read explicitly, matching how the original
// Python layer reads USE_PAPER-gated pairs.
func bindBrokerCreds(cfg *Config, v *viper.Viper) {
	get := func(key string) string { return v.GetString(key) }

	cfg.Paper = BrokerCreds{
		AppKey:    get("kis_paper_app_key"),
		AppSecret: get("kis_paper_app_secret"),
		AccountNo: get("kis_paper_account_no"),
		ProductCd: get("kis_paper_product_cd"),
		BaseURL:   "https://openapivts.koreainvestment.com:29443",
	}
	cfg.Live = BrokerCreds{
		AppKey:    get("kis_live_app_key"),
		AppSecret: get("kis_live_app_secret"),
		AccountNo: get("kis_live_account_no"),
		ProductCd: get("kis_live_product_cd"),
		BaseURL:   "https://openapi.koreainvestment.com:9443",
	}
}

// Validate checks that all required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.Capital <= 0 {
		return fmt.Errorf("capital must be positive, got %f", c.Capital)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	creds := c.ActiveCreds()
	if creds.AppKey == "" || creds.AppSecret == "" || creds.AccountNo == "" {
		return fmt.Errorf("broker credentials for mode %s are incomplete", c.ActiveMode())
	}

	if !c.UsePaper {
		if err := c.validateLiveMode(); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	return nil
}

// validateLiveMode enforces extra safety checks when running with real money.
func (c *Config) validateLiveMode() error {
	if c.Sizing.MaxOpenPositions > 6 {
		return fmt.Errorf("max_open_positions cannot exceed 6 in live mode (got %d)", c.Sizing.MaxOpenPositions)
	}
	if c.Sizing.BaseFraction > 0.30 {
		return fmt.Errorf("base_fraction cannot exceed 0.30 in live mode (got %.2f)", c.Sizing.BaseFraction)
	}
	return nil
}

// structMap converts a SizingConfig into a map viper can use as a default,
// since SetDefault needs the same shape unmarshal will read back.
func structMap(s SizingConfig) map[string]interface{} {
	return map[string]interface{}{
		"base_fraction":             s.BaseFraction,
		"initial_stop_atr_mult":     s.InitialStopATRMult,
		"trailing_stop_pct":         s.TrailingStopPct,
		"take_profit_pct":           s.TakeProfitPct,
		"time_stop_days":            s.TimeStopDays,
		"pyramid_atr_mult":          s.PyramidATRMult,
		"pyramid_add_fraction":      s.PyramidAddFraction,
		"pyramid_stop_pct":          s.PyramidStopPct,
		"track2_qualify_pnl_pct":    s.Track2QualifyPnLPct,
		"track2_chg_min":            s.Track2ChgMin,
		"track2_max_population":     s.Track2MaxPopulation,
		"next_day_gap_down_pct":     s.NextDayGapDownPct,
		"next_day_trail_pct":        s.NextDayTrailPct,
		"max_open_positions":        s.MaxOpenPositions,
		"macro_boost_max_positions": s.MacroBoostMaxPositions,
		"daily_loss_limit_pct":      s.DailyLossLimitPct,
		"recovery_multiplier":       s.RecoveryMultiplier,
	}
}
