// Package config loads application configuration and initializes logging.
package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Models ModelsConfig `yaml:"models" mapstructure:"models"`
	Churn  ChurnConfig  `yaml:"churn" mapstructure:"churn"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the raw input tables and the processed outputs.
type DataConfig struct {
	RawDir       string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
}

// ModelsConfig locates persisted model artifacts.
type ModelsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ChurnConfig configures churn training reproducibility. The model
// hyperparameters themselves are fixed constants, not configuration.
type ChurnConfig struct {
	Seed         int64   `yaml:"seed" mapstructure:"seed"`
	TestFraction float64 `yaml:"test_fraction" mapstructure:"test_fraction"`
}

// FetchConfig configures remote raw-data downloads.
type FetchConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// StoreConfig configures the training-run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the query HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ChurnModelPath returns the churn model artifact location.
func (c *Config) ChurnModelPath() string {
	return filepath.Join(c.Models.Dir, "churn_model.json")
}

// ForecastModelPath returns the sales forecast model artifact location.
func (c *Config) ForecastModelPath() string {
	return filepath.Join(c.Models.Dir, "sales_model.json")
}

// CustomerFeaturesPath returns the processed customer feature table location.
func (c *Config) CustomerFeaturesPath() string {
	return filepath.Join(c.Data.ProcessedDir, "customer_features.csv")
}

// SalesProcessedPath returns the processed enriched-transaction table location.
func (c *Config) SalesProcessedPath() string {
	return filepath.Join(c.Data.ProcessedDir, "sales_processed.csv")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RETAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.processed_dir", "data/processed")
	v.SetDefault("models.dir", "models")
	v.SetDefault("churn.seed", 42)
	v.SetDefault("churn.test_fraction", 0.2)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.requests_per_sec", 2.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "retail.db")
	v.SetDefault("server.port", 8080)
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
