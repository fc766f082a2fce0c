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
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	DocStore  DocStoreConfig  `yaml:"docstore" mapstructure:"docstore"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API server. BaseURL, when set, sends the
// CLI analytics commands to a running server instead of the engine.
type ServerConfig struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// QueryConfig configures the Athena query bridge.
type QueryConfig struct {
	Region         string  `yaml:"region" mapstructure:"region"`
	Database       string  `yaml:"database" mapstructure:"database"`
	OutputLocation string  `yaml:"output_location" mapstructure:"output_location"`
	Workgroup      string  `yaml:"workgroup" mapstructure:"workgroup"`
	PollIntervalMs int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	PollMultiplier float64 `yaml:"poll_multiplier" mapstructure:"poll_multiplier"`
	PollCapMs      int     `yaml:"poll_cap_ms" mapstructure:"poll_cap_ms"`
	MaxWaitSecs    int     `yaml:"max_wait_secs" mapstructure:"max_wait_secs"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
	Paginate       bool    `yaml:"paginate" mapstructure:"paginate"`
	MaxRows        int     `yaml:"max_rows" mapstructure:"max_rows"`
	SubmitRPS      float64 `yaml:"submit_rps" mapstructure:"submit_rps"`
	RetryAttempts  int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// PollInterval returns the configured inter-poll delay.
func (q QueryConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

// PollCap returns the configured maximum inter-poll delay.
func (q QueryConfig) PollCap() time.Duration {
	return time.Duration(q.PollCapMs) * time.Millisecond
}

// MaxWait returns the configured upper bound on a single query's poll loop.
func (q QueryConfig) MaxWait() time.Duration {
	return time.Duration(q.MaxWaitSecs) * time.Second
}

// AnalyticsConfig names the Athena views the analytics endpoints read.
type AnalyticsConfig struct {
	DailyView  string `yaml:"daily_view" mapstructure:"daily_view"`
	WeeklyView string `yaml:"weekly_view" mapstructure:"weekly_view"`
}

// DocStoreConfig configures where strategy and exclusion documents live.
type DocStoreConfig struct {
	Driver           string `yaml:"driver" mapstructure:"driver"`
	Bucket           string `yaml:"bucket" mapstructure:"bucket"`
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	StrategiesPrefix string `yaml:"strategies_prefix" mapstructure:"strategies_prefix"`
	ExclusionsPrefix string `yaml:"exclusions_prefix" mapstructure:"exclusions_prefix"`
	ConditionalPut   bool   `yaml:"conditional_put" mapstructure:"conditional_put"`
	ListConcurrency  int    `yaml:"list_concurrency" mapstructure:"list_concurrency"`
}

// CatalogConfig configures the strategy catalog cache.
type CatalogConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the catalog time-to-live. Zero means "load once per process".
func (c CatalogConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
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
	v.SetEnvPrefix("ULTRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("query.region", "eu-central-1")
	v.SetDefault("query.database", "store_shapes_mvp3")
	v.SetDefault("query.output_location", "s3://ds-store-shapes-mvp3/athena_results/")
	v.SetDefault("query.poll_interval_ms", 600)
	v.SetDefault("query.poll_multiplier", 1.0)
	v.SetDefault("query.poll_cap_ms", 5000)
	v.SetDefault("query.max_wait_secs", 120)
	v.SetDefault("query.max_results", 1000)
	v.SetDefault("query.paginate", false)
	v.SetDefault("query.max_rows", 50000)
	v.SetDefault("query.submit_rps", 5.0)
	v.SetDefault("query.retry_attempts", 3)
	v.SetDefault("analytics.daily_view", "v_gold_daily_shape_by_day")
	v.SetDefault("analytics.weekly_view", "v_gold_slot_curves_by_week")
	v.SetDefault("docstore.driver", "s3")
	v.SetDefault("docstore.bucket", "ds-store-shapes-mvp3")
	v.SetDefault("docstore.strategies_prefix", "strategies/")
	v.SetDefault("docstore.exclusions_prefix", "exclusions/")
	v.SetDefault("docstore.conditional_put", false)
	v.SetDefault("docstore.list_concurrency", 8)
	v.SetDefault("catalog.ttl_minutes", 0)
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

// Validate checks that the settings a command mode depends on are present.
// Modes: "serve" (query + docstore + port), "query", "docstore".
func (c *Config) Validate(mode string) error {
	var errs []string

	needQuery := mode == "serve" || mode == "query"
	needDocs := mode == "serve" || mode == "docstore"

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port must be in [1,65535], got %d", c.Server.Port))
	}
	if needQuery {
		if c.Query.Database == "" {
			errs = append(errs, "query.database is required")
		}
		if c.Query.OutputLocation == "" {
			errs = append(errs, "query.output_location is required")
		}
		if c.Query.MaxResults <= 0 || c.Query.MaxResults > 1000 {
			errs = append(errs, fmt.Sprintf("query.max_results must be in [1,1000], got %d", c.Query.MaxResults))
		}
	}
	if needDocs {
		switch c.DocStore.Driver {
		case "s3":
			if c.DocStore.Bucket == "" {
				errs = append(errs, "docstore.bucket is required for the s3 driver")
			}
		case "postgres", "sqlite":
			if c.DocStore.DatabaseURL == "" {
				errs = append(errs, fmt.Sprintf("docstore.database_url is required for the %s driver", c.DocStore.Driver))
			}
		case "memory":
		default:
			errs = append(errs, fmt.Sprintf("unknown docstore.driver %q", c.DocStore.Driver))
		}
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
