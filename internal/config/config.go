package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Staging StagingConfig `yaml:"staging" mapstructure:"staging"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// StagingConfig locates the staged deal files.
type StagingConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ScrapeConfig configures source fetching.
type ScrapeConfig struct {
	UserAgent            string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries           int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond    float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxConcurrentSources int     `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	// BreakerFailures consecutive failed fetches stop a host for
	// BreakerCooldownSecs.
	BreakerFailures     int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the per-request timeout.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GROCERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/grocery.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("staging.dir", "data/stage")
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; GroceryDealsBot/1.0)")
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.requests_per_second", 2.0)
	v.SetDefault("scrape.max_concurrent_sources", 2)
	v.SetDefault("scrape.breaker_failures", 5)
	v.SetDefault("scrape.breaker_cooldown_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Modes are
// "scrape", "load", "query" and "serve". All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "scrape":
		if c.Staging.Dir == "" {
			errs = append(errs, "staging.dir is required")
		}
		if c.Scrape.MaxConcurrentSources < 1 || c.Scrape.MaxConcurrentSources > 16 {
			errs = append(errs, "scrape.max_concurrent_sources must be between 1 and 16")
		}
		if c.Scrape.RequestsPerSecond <= 0 {
			errs = append(errs, "scrape.requests_per_second must be > 0")
		}
		if c.Scrape.TimeoutSecs <= 0 {
			errs = append(errs, "scrape.timeout_secs must be > 0")
		}
		if c.Scrape.MaxRetries < 0 {
			errs = append(errs, "scrape.max_retries must be >= 0")
		}
		if c.Scrape.BreakerFailures < 1 {
			errs = append(errs, "scrape.breaker_failures must be >= 1")
		}
	case "load":
		if c.Staging.Dir == "" {
			errs = append(errs, "staging.dir is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
