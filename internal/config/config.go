package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"power-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Store      StoreConfig      `mapstructure:"store"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the inbound HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SchedulerConfig governs sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// FeedConfig covers the upstream price feed.
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	UnitDivisor    float64       `mapstructure:"unit_divisor"`
}

// ThresholdsConfig holds defaults used until a threshold is overridden.
type ThresholdsConfig struct {
	DefaultMinCents float64 `mapstructure:"default_min_cents"`
	DefaultMaxCents float64 `mapstructure:"default_max_cents"`
}

// StoreConfig selects and configures the durable key-value backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig encapsulates PostgreSQL connectivity.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig points at a local database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// AlertingConfig selects the single delivery channel.
type AlertingConfig struct {
	Channel        string         `mapstructure:"channel"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Webhook        WebhookConfig  `mapstructure:"webhook"`
	Kafka          KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// WebhookConfig targets a generic HTTP endpoint.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// KafkaConfig publishes notifications to a topic.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	Destination string   `mapstructure:"destination"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
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
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("feed.url", "https://apis.smartenergy.at/market/v1/price")
	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "pricewatch/1.0")
	v.SetDefault("feed.unit_divisor", 1.0)

	v.SetDefault("thresholds.default_min_cents", 6.5)
	v.SetDefault("thresholds.default_max_cents", 8.5)

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", "data/pricewatch.db")
	v.SetDefault("store.redis.prefix", "pricewatch:")
	v.SetDefault("store.postgres.max_open_conns", 5)
	v.SetDefault("store.postgres.max_idle_conns", 1)
	v.SetDefault("store.postgres.conn_max_lifetime", "30m")

	v.SetDefault("alerting.channel", "log")
	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.kafka.topic", "price-alerts")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if strings.TrimSpace(c.Feed.URL) == "" {
		return fmt.Errorf("feed.url must be configured")
	}
	if c.Feed.UnitDivisor <= 0 {
		return fmt.Errorf("feed.unit_divisor must be greater than zero")
	}
	if c.Thresholds.DefaultMinCents < 0 || c.Thresholds.DefaultMaxCents < 0 {
		return fmt.Errorf("thresholds defaults cannot be negative")
	}
	if c.Thresholds.DefaultMinCents >= c.Thresholds.DefaultMaxCents {
		return fmt.Errorf("thresholds.default_min_cents must be < thresholds.default_max_cents")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return c.Alerting.validate()
}

func (s StoreConfig) validate() error {
	switch strings.ToLower(s.Backend) {
	case "memory":
	case "sqlite":
		if s.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be configured")
		}
	case "postgres":
		if s.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be configured")
		}
	case "redis":
		if s.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be configured")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", s.Backend)
	}
	return nil
}

func (a AlertingConfig) validate() error {
	switch strings.ToLower(a.Channel) {
	case "log":
	case "telegram":
		if a.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if a.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	case "webhook":
		if a.Webhook.URL == "" {
			return fmt.Errorf("alerting.webhook.url must be configured")
		}
	case "kafka":
		if len(a.Kafka.Brokers) == 0 || a.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.brokers and alerting.kafka.topic must be configured")
		}
	default:
		return fmt.Errorf("alerting.channel %q is not supported", a.Channel)
	}
	return nil
}
