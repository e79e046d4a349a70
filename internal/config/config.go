package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Trading TradingConfig `mapstructure:"trading"`
	Persist PersistConfig `mapstructure:"persist"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Events  EventsConfig  `mapstructure:"events"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Per-client webhook rate limit; zero disables it.
	WebhookRPS   float64 `mapstructure:"webhook_rps"`
	WebhookBurst int     `mapstructure:"webhook_burst"`
	CORSOrigins  string  `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PersistFlush  string `mapstructure:"persist_flush"`
	CooldownSweep string `mapstructure:"cooldown_sweep"`
}

type AuthConfig struct {
	// APIKey protects /api/*; empty disables the check.
	APIKey string `mapstructure:"api_key"`
}

type BrokerConfig struct {
	// Endpoints maps owner -> broker webhook URL. "*" applies to every owner.
	Endpoints   map[string]string `mapstructure:"endpoints"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxAttempts int               `mapstructure:"max_attempts"`
	RetryDelay  time.Duration     `mapstructure:"retry_delay"`
	RPS         float64           `mapstructure:"rps"`
	Burst       int               `mapstructure:"burst"`
}

type TradingConfig struct {
	CooldownPeriodHours float64       `mapstructure:"cooldown_period_hours"`
	MaxBuyRetries       int           `mapstructure:"max_buy_retries"`
	BuyRetryPercentage  float64       `mapstructure:"buy_retry_percentage"`
	BuyRetryInterval    time.Duration `mapstructure:"buy_retry_interval"`
	MinimumCashBalance  float64       `mapstructure:"minimum_cash_balance"`
	MaxCloseRetries     int           `mapstructure:"max_close_retries"`
	CloseRetryInterval  time.Duration `mapstructure:"close_retry_interval"`
	SequentialPause     time.Duration `mapstructure:"sequential_pause"`
	PostBuyPause        time.Duration `mapstructure:"post_buy_pause"`
	InitialCashBalance  float64       `mapstructure:"initial_cash_balance"`
}

// CooldownPeriod converts the configured hours to a duration.
func (c TradingConfig) CooldownPeriod() time.Duration {
	return time.Duration(c.CooldownPeriodHours * float64(time.Hour))
}

type PersistConfig struct {
	// Enabled turns on the Postgres store; without it strategies live in memory only.
	Enabled bool `mapstructure:"enabled"`
}

type AuditConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Agent   string        `mapstructure:"agent"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	Buffer       int           `mapstructure:"buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load reads path (YAML) and TH_* environment overrides. A .env file in the
// working directory is loaded first when present.
func Load(path string, envOnly bool) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Broker.Endpoints == nil {
		cfg.Broker.Endpoints = map[string]string{}
	}
	// Env-only deployments cannot express a map, so accept a single default URL.
	if url := strings.TrimSpace(v.GetString("broker.default_endpoint")); url != "" {
		if _, ok := cfg.Broker.Endpoints["*"]; !ok {
			cfg.Broker.Endpoints["*"] = url
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.webhook_rps", 5.0)
	v.SetDefault("server.webhook_burst", 10)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.persist_flush", "@every 5s")
	v.SetDefault("cron.cooldown_sweep", "@every 1m")
	v.SetDefault("auth.api_key", "")

	v.SetDefault("broker.default_endpoint", "")
	v.SetDefault("broker.timeout", "30s")
	v.SetDefault("broker.max_attempts", 3)
	v.SetDefault("broker.retry_delay", "2s")
	v.SetDefault("broker.rps", 0)
	v.SetDefault("broker.burst", 1)

	v.SetDefault("trading.cooldown_period_hours", 12)
	v.SetDefault("trading.max_buy_retries", 5)
	v.SetDefault("trading.buy_retry_percentage", 2.0)
	v.SetDefault("trading.buy_retry_interval", "3s")
	v.SetDefault("trading.minimum_cash_balance", 5.0)
	v.SetDefault("trading.max_close_retries", 5)
	v.SetDefault("trading.close_retry_interval", "3s")
	v.SetDefault("trading.sequential_pause", "1s")
	v.SetDefault("trading.post_buy_pause", "3s")
	v.SetDefault("trading.initial_cash_balance", 10000.0)

	v.SetDefault("persist.enabled", false)

	v.SetDefault("audit.base_url", "")
	v.SetDefault("audit.api_key", "")
	v.SetDefault("audit.agent", "tradehook")
	v.SetDefault("audit.timeout", "2s")

	v.SetDefault("events.buffer", 64)
	v.SetDefault("events.write_timeout", "5s")
}
