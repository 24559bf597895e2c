package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"perp-basis-alerts/internal/logging"
)

// Config materialises application configuration. It is built once by Load and
// handed to every component; nothing reads configuration from package state.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Bybit     BybitConfig     `mapstructure:"bybit"`
	Detection DetectionConfig `mapstructure:"detection"`
	Display   DisplayConfig   `mapstructure:"display"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// BybitConfig covers the linear perpetual ticker feed.
type BybitConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Category       string        `mapstructure:"category" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DetectionConfig holds the deviation and alert thresholds, all in percent.
type DetectionConfig struct {
	DeviationThresholdPct     float64 `mapstructure:"deviation_threshold_pct" validate:"gte=0"`
	ContractAlertThresholdPct float64 `mapstructure:"contract_alert_threshold_pct" validate:"gte=0"`
	LendingAlertThresholdPct  float64 `mapstructure:"lending_alert_threshold_pct" validate:"gte=0"`
	QuoteSuffix               string  `mapstructure:"quote_suffix"`
}

// DisplayConfig selects tokens for the raw price table.
type DisplayConfig struct {
	Allowlist []string `mapstructure:"allowlist"`
}

// RegistryConfig points at the venue registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// DedupConfig governs the alert record store.
type DedupConfig struct {
	Persist  bool   `mapstructure:"persist"`
	Backend  string `mapstructure:"backend" validate:"oneof=file postgres redis"`
	Path     string `mapstructure:"path"`
	RedisKey string `mapstructure:"redis_key"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db" validate:"gte=0"`
	PoolSize   int    `mapstructure:"pool_size" validate:"gte=0"`
	MaxRetries int    `mapstructure:"max_retries"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	MinSleep        time.Duration `mapstructure:"min_sleep"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Console  bool           `mapstructure:"console"`
	Speech   bool           `mapstructure:"speech"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig 描述 Discord webhook 参数。
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// MetricsConfig exposes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int      `mapstructure:"max_rows" validate:"gte=0"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible object storage parameters for exports.
type S3Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("BASISWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		panic("config defaults do not decode: " + err.Error())
	}
	return &cfg
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "basiswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("bybit.base_url", "https://api.bybit.com")
	v.SetDefault("bybit.category", "linear")
	v.SetDefault("bybit.request_timeout", "10s")
	v.SetDefault("bybit.rate_limit_rps", 5.0)
	v.SetDefault("bybit.user_agent", "basiswatch/1.0")

	v.SetDefault("detection.deviation_threshold_pct", 0.4)
	v.SetDefault("detection.contract_alert_threshold_pct", 1.0)
	v.SetDefault("detection.lending_alert_threshold_pct", 3.0)
	v.SetDefault("detection.quote_suffix", "USDT")

	v.SetDefault("display.allowlist", []string{})

	v.SetDefault("registry.path", "platforms.json")

	v.SetDefault("dedup.persist", false)
	v.SetDefault("dedup.backend", "file")
	v.SetDefault("dedup.path", "arbitrage_records.json")
	v.SetDefault("dedup.redis_key", "basiswatch:alerts")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.min_sleep", "1s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.console", true)
	v.SetDefault("alerting.speech", false)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("export.max_rows", 500)
	v.SetDefault("export.s3.enabled", false)
	v.SetDefault("export.s3.prefix", "basiswatch/")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validate = validator.New()

// Validate performs struct-tag validation followed by cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.MinSleep <= 0 {
		return fmt.Errorf("scheduler.min_sleep must be greater than zero")
	}
	switch c.Dedup.Backend {
	case "file":
		if c.Dedup.Path == "" {
			return fmt.Errorf("dedup.path is required for the file backend")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case "redis":
		if c.Redis.Addr == "" || c.Dedup.RedisKey == "" {
			return fmt.Errorf("redis.addr and dedup.redis_key are required for the redis backend")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url 必须配置")
	}
	if c.Export.S3.Enabled && (c.Export.S3.Bucket == "" || c.Export.S3.Region == "") {
		return fmt.Errorf("export.s3.bucket and export.s3.region are required when export.s3 is enabled")
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

// DisplayAll reports whether the allowlist is the wildcard.
func (c *Config) DisplayAll() bool {
	for _, token := range c.Display.Allowlist {
		switch strings.TrimSpace(strings.ToLower(token)) {
		case "*", "all":
			return true
		}
	}
	return false
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
