package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ScoringConfig tunes the scoring pipeline.
type ScoringConfig struct {
	// Mode is auto, profile, or timeseries. Auto picks from the dataset header.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"oneof=auto profile timeseries"`

	// Category thresholds on the 0-10 composite; lower bounds are inclusive.
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold" validate:"gte=0,lte=10"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold" validate:"gte=0,lte=10"`

	// Time-series fallbacks.
	MinExpenseThreshold float64 `yaml:"min_expense_threshold" mapstructure:"min_expense_threshold" validate:"gt=0"`
	IndependenceCap     float64 `yaml:"independence_cap" mapstructure:"independence_cap" validate:"gt=0"`
	StabilityWindow     int     `yaml:"stability_window" mapstructure:"stability_window" validate:"gte=2"`

	// DegenerateScore is the 0-10 value assigned when a normalization window
	// has zero width.
	DegenerateScore float64 `yaml:"degenerate_score" mapstructure:"degenerate_score" validate:"gte=0,lte=10"`

	// Window bounds (YYYY-MM) for monthly aggregation; empty means from data.
	WindowFrom string `yaml:"window_from" mapstructure:"window_from" validate:"omitempty,datetime=2006-01"`
	WindowTo   string `yaml:"window_to" mapstructure:"window_to" validate:"omitempty,datetime=2006-01"`
}

// InputConfig controls dataset parsing.
type InputConfig struct {
	SheetName   string   `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetIndex  int      `yaml:"sheet_index" mapstructure:"sheet_index" validate:"gte=0"`
	Delimiter   string   `yaml:"delimiter" mapstructure:"delimiter" validate:"len=1"`
	DateLayouts []string `yaml:"date_layouts" mapstructure:"date_layouts"`
	MaxBytes    int64    `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gt=0"`
	// MaxMonths caps the months a transaction window may span.
	MaxMonths int `yaml:"max_months" mapstructure:"max_months" validate:"gt=0"`
}

// FetchConfig configures remote dataset sources.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	BackoffMs   int    `yaml:"backoff_ms" mapstructure:"backoff_ms" validate:"gte=0"`
	// Consecutive failures against one host before requests to it are
	// rejected until BreakerResetSecs elapse.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold" validate:"gte=1"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs" validate:"gt=0"`
}

// ServerConfig configures the HTTP scoring server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst" validate:"gte=0"`
}

// MonitoringConfig configures the serve-mode alert checker.
type MonitoringConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
	LookbackMinutes   int    `yaml:"lookback_minutes" mapstructure:"lookback_minutes" validate:"gte=0"`
	// MinRuns is the number of finished runs in the lookback window before
	// rate-based alerts fire.
	MinRuns              int     `yaml:"min_runs" mapstructure:"min_runs" validate:"gte=0"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	HighRiskThreshold    float64 `yaml:"high_risk_threshold" mapstructure:"high_risk_threshold" validate:"gte=0,lte=1"`
	SkipRateThreshold    float64 `yaml:"skip_rate_threshold" mapstructure:"skip_rate_threshold" validate:"gte=0,lte=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 10)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("scoring.mode", "auto")
	v.SetDefault("scoring.high_threshold", 7)
	v.SetDefault("scoring.medium_threshold", 4)
	v.SetDefault("scoring.min_expense_threshold", 1)
	v.SetDefault("scoring.independence_cap", 10)
	v.SetDefault("scoring.stability_window", 3)
	v.SetDefault("scoring.degenerate_score", 5)
	v.SetDefault("scoring.window_from", "")
	v.SetDefault("scoring.window_to", "")
	v.SetDefault("input.sheet_name", "")
	v.SetDefault("input.sheet_index", 0)
	v.SetDefault("input.delimiter", ",")
	v.SetDefault("input.max_bytes", 32<<20)
	v.SetDefault("input.max_months", 600)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "risk-cli/1.0")
	v.SetDefault("fetch.backoff_ms", 500)
	v.SetDefault("fetch.breaker_threshold", 5)
	v.SetDefault("fetch.breaker_reset_secs", 30)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_minutes", 60)
	v.SetDefault("monitoring.min_runs", 5)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.high_risk_threshold", 0.5)
	v.SetDefault("monitoring.skip_rate_threshold", 0.1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks field constraints and the cross-field rules required by
// the given command mode ("score", "aggregate", or "serve"), reporting every
// violation in a single error.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	if c.Scoring.WindowFrom != "" && c.Scoring.WindowTo != "" && c.Scoring.WindowTo < c.Scoring.WindowFrom {
		errs = append(errs, "scoring.window_to must not precede scoring.window_from")
	}

	switch mode {
	case "score", "serve":
		if c.Scoring.MediumThreshold >= c.Scoring.HighThreshold {
			errs = append(errs, "scoring.medium_threshold must be below scoring.high_threshold")
		}
		if mode == "serve" && c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			errs = append(errs, "server.rate_limit_burst must be >= 1 when rate limiting is enabled")
		}
		if mode == "serve" && c.Monitoring.Enabled && c.Monitoring.WebhookURL == "" {
			errs = append(errs, "monitoring.webhook_url is required when monitoring is enabled")
		}
	case "aggregate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
