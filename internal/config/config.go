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
	Grid    GridConfig    `yaml:"grid" mapstructure:"grid"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	SoilWeb SoilWebConfig `yaml:"soilweb" mapstructure:"soilweb"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// GridConfig configures area-of-interest division.
type GridConfig struct {
	Resolution float64 `yaml:"resolution" mapstructure:"resolution"` // cell side, meters
	MaxCells   int     `yaml:"max_cells" mapstructure:"max_cells"`
}

// EnrichConfig configures the lookup worker pool.
type EnrichConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SoilWebConfig configures the SoilWeb lookup client.
type SoilWebConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// Timeout returns the per-request timeout.
func (s SoilWebConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// ExportConfig selects where enriched cells are written.
type ExportConfig struct {
	Format      string `yaml:"format" mapstructure:"format"`
	Path        string `yaml:"path" mapstructure:"path"`
	CRS         string `yaml:"crs" mapstructure:"crs"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// StoreConfig configures the local run history and fetch cache.
type StoreConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Cache    bool   `yaml:"cache" mapstructure:"cache"`
	CacheTTL int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxCells       int      `yaml:"max_cells" mapstructure:"max_cells"`
	OutputDir      string   `yaml:"output_dir" mapstructure:"output_dir"` // root for file outputs of API runs
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
	v.SetEnvPrefix("SOIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("grid.resolution", 100.0)
	v.SetDefault("grid.max_cells", 1_000_000)
	v.SetDefault("enrich.workers", 8)
	v.SetDefault("soilweb.base_url", "http://casoilresource.lawr.ucdavis.edu/soil_web/reflector_api/soils.php")
	v.SetDefault("soilweb.user_agent", "soil-explorer/1.0")
	v.SetDefault("soilweb.rate_per_sec", 5.0)
	v.SetDefault("soilweb.burst", 5)
	v.SetDefault("soilweb.timeout_secs", 30)
	v.SetDefault("soilweb.max_retries", 3)
	v.SetDefault("export.format", "shp")
	v.SetDefault("export.path", "soils.shp")
	v.SetDefault("export.crs", "NAD 1983")
	v.SetDefault("export.database_url", "")
	v.SetDefault("export.table", "soil_cells")
	v.SetDefault("store.path", "soil-explorer.db")
	v.SetDefault("store.cache", true)
	v.SetDefault("store.cache_ttl_hours", 24*30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_cells", 10000)
	v.SetDefault("server.output_dir", "exports")
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

// Validate checks the settings a command needs. Every problem is reported,
// not just the first.
func (c *Config) Validate(command string) error {
	var errs []string

	soil := func() {
		if c.Enrich.Workers < 1 || c.Enrich.Workers > 256 {
			errs = append(errs, fmt.Sprintf("enrich.workers must be between 1 and 256 (got %d)", c.Enrich.Workers))
		}
		if c.SoilWeb.BaseURL == "" {
			errs = append(errs, "soilweb.base_url is required")
		}
		if c.SoilWeb.RatePerSec <= 0 {
			errs = append(errs, "soilweb.rate_per_sec must be > 0")
		}
		if c.SoilWeb.TimeoutSecs <= 0 {
			errs = append(errs, "soilweb.timeout_secs must be > 0")
		}
		if c.SoilWeb.MaxRetries < 0 {
			errs = append(errs, "soilweb.max_retries must be >= 0")
		}
	}
	grid := func() {
		if !(c.Grid.Resolution > 0) {
			errs = append(errs, "grid.resolution must be > 0")
		}
		if c.Grid.MaxCells <= 0 {
			errs = append(errs, "grid.max_cells must be > 0")
		}
	}
	export := func() {
		switch strings.ToLower(c.Export.Format) {
		case "postgis":
			if c.Export.DatabaseURL == "" {
				errs = append(errs, "export.database_url is required for postgis output")
			}
			if c.Export.Table == "" {
				errs = append(errs, "export.table is required for postgis output")
			}
		case "shp", "shapefile", "geojson", "xlsx":
			if c.Export.Path == "" {
				errs = append(errs, "export.path is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("export.format %q is not one of shp, geojson, xlsx, postgis", c.Export.Format))
		}
	}
	store := func() {
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required")
		}
		if c.Store.CacheTTL < 0 {
			errs = append(errs, "store.cache_ttl_hours must be >= 0")
		}
	}

	switch command {
	case "grid":
		grid()
		export()
	case "run", "batch":
		grid()
		soil()
		export()
		store()
	case "runs":
		store()
	case "serve":
		store()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxCells <= 0 {
			errs = append(errs, "server.max_cells must be > 0")
		}
		if c.Server.OutputDir == "" {
			errs = append(errs, "server.output_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", command)
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
