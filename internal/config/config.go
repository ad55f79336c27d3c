package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/editais-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	PNCP      PNCPConfig      `yaml:"pncp" mapstructure:"pncp"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Reference ReferenceConfig `yaml:"reference" mapstructure:"reference"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PNCPConfig configures the upstream search API.
type PNCPConfig struct {
	Origin            string  `yaml:"origin" mapstructure:"origin"`
	SearchPath        string  `yaml:"search_path" mapstructure:"search_path"`
	PageSize          int     `yaml:"page_size" mapstructure:"page_size"`
	FallbackPageSizes []int   `yaml:"fallback_page_sizes" mapstructure:"fallback_page_sizes"`
	PageDelayMs       int     `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	Referer           string  `yaml:"referer" mapstructure:"referer"`
	AcceptLanguage    string  `yaml:"accept_language" mapstructure:"accept_language"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PageDelay returns the pause between page requests.
func (c PNCPConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout.
func (c PNCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// Policy converts the section to a resilience.RetryConfig.
func (c RetryConfig) Policy() resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs, c.Multiplier, c.Jitter)
}

// CollectConfig configures shard fan-out.
type CollectConfig struct {
	Concurrency   int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxSelections int `yaml:"max_selections" mapstructure:"max_selections"`
}

// ReferenceConfig locates the municipality tables.
type ReferenceConfig struct {
	MunicipiosPath string `yaml:"municipios_path" mapstructure:"municipios_path"`
	IBGEPath       string `yaml:"ibge_path" mapstructure:"ibge_path"`
	MunicipiosURL  string `yaml:"municipios_url" mapstructure:"municipios_url"`
	IBGEURL        string `yaml:"ibge_url" mapstructure:"ibge_url"`
}

// StoreConfig configures preset and run-history storage.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the in-process result cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ExportConfig configures spreadsheet output.
type ExportConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	SheetName string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("EDITAIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("pncp.origin", "https://pncp.gov.br")
	v.SetDefault("pncp.search_path", "/api/search")
	v.SetDefault("pncp.page_size", 100)
	v.SetDefault("pncp.fallback_page_sizes", []int{50, 20, 10})
	v.SetDefault("pncp.page_delay_ms", 50)
	v.SetDefault("pncp.timeout_secs", 30)
	v.SetDefault("pncp.accept_language", "pt-BR,pt;q=0.9")
	v.SetDefault("pncp.rate_per_sec", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("collect.concurrency", 1)
	v.SetDefault("collect.max_selections", 25)
	v.SetDefault("reference.municipios_path", "data/ListaMunicipiosPNCP.csv")
	v.SetDefault("reference.ibge_path", "data/IBGE_Municipios.csv")
	v.SetDefault("reference.ibge_url", "https://servicodados.ibge.gov.br/api/v1/localidades/municipios")
	v.SetDefault("store.driver", "json")
	v.SetDefault("store.path", "saved_searches.json")
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.max_entries", 64)
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.sheet_name", "PNCP")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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

// Validate checks the settings a command mode depends on.
// Modes: search, serve, sync.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "search", "serve":
		if c.PNCP.Origin == "" {
			errs = append(errs, "pncp.origin is required")
		}
		if c.PNCP.PageSize < 1 || c.PNCP.PageSize > 500 {
			errs = append(errs, "pncp.page_size must be between 1 and 500")
		}
		for _, n := range c.PNCP.FallbackPageSizes {
			if n < 1 || n >= c.PNCP.PageSize {
				errs = append(errs, fmt.Sprintf("pncp.fallback_page_sizes: %d must be between 1 and page_size", n))
			}
		}
		if c.Collect.Concurrency < 1 || c.Collect.Concurrency > 16 {
			errs = append(errs, "collect.concurrency must be between 1 and 16")
		}
		if c.Collect.MaxSelections < 1 {
			errs = append(errs, "collect.max_selections must be > 0")
		}
		if c.Reference.MunicipiosPath == "" {
			errs = append(errs, "reference.municipios_path is required")
		}
		switch c.Store.Driver {
		case "json", "sqlite":
			if c.Store.Path == "" {
				errs = append(errs, "store.path is required for the "+c.Store.Driver+" driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be json, sqlite or postgres", c.Store.Driver))
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "sync":
		if c.Reference.MunicipiosURL == "" && c.Reference.IBGEURL == "" {
			errs = append(errs, "reference.municipios_url or reference.ibge_url is required")
		}
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
