package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Permits   PermitsConfig   `yaml:"permits" mapstructure:"permits"`
	Layers    LayersConfig    `yaml:"layers" mapstructure:"layers"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Screening ScreeningConfig `yaml:"screening" mapstructure:"screening"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PermitsConfig configures the permit-dataset source.
type PermitsConfig struct {
	DatasetURL  string `yaml:"dataset_url" mapstructure:"dataset_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LayersConfig configures GIS layer loading.
type LayersConfig struct {
	PreloadOnStart bool `yaml:"preload_on_start" mapstructure:"preload_on_start"`
	TimeoutSecs    int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnalysisConfig configures the proximity engine.
type AnalysisConfig struct {
	BufferMetres float64 `yaml:"buffer_metres" mapstructure:"buffer_metres"`
}

// ScreeningConfig configures the NSL engine. The threshold is fixed by the
// screening procedure; it is surfaced here only for display.
type ScreeningConfig struct {
	PersistSnapshots bool `yaml:"persist_snapshots" mapstructure:"persist_snapshots"`
}

// Load reads configuration from config.yaml and CECMAP_* environment
// variables, applying defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CECMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "cecmap.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("permits.timeout_secs", 60)
	v.SetDefault("layers.preload_on_start", true)
	v.SetDefault("layers.timeout_secs", 120)
	v.SetDefault("analysis.buffer_metres", 1000)
	v.SetDefault("screening.persist_snapshots", true)

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
