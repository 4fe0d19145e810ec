package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Library  LibraryConfig  `mapstructure:"library"`
	Workers  WorkerConfig   `mapstructure:"workers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LibraryConfig holds media library configuration.
type LibraryConfig struct {
	// MediaRoot is the local mount under which mapped media paths must fall.
	MediaRoot string `mapstructure:"media_root"`
	// TempDir is where downloads and extractions are staged.
	TempDir string `mapstructure:"temp_dir"`
}

// WorkerConfig bounds background job concurrency per kind.
type WorkerConfig struct {
	MaxTranslate  int `mapstructure:"max_translate"`
	MaxSearch     int `mapstructure:"max_search"`
	MaxWhisper    int `mapstructure:"max_whisper"`
	MaxScanProbes int `mapstructure:"max_scan_probes"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8987,
		},
		Database: DatabaseConfig{
			Path: "./data/sublarr.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Library: LibraryConfig{
			TempDir: "/tmp/sublarr",
		},
		Workers: WorkerConfig{
			MaxTranslate:  2,
			MaxSearch:     4,
			MaxWhisper:    1,
			MaxScanProbes: 4,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.sublarr")
	}

	v.SetEnvPrefix("SUBLARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Missing config file is fine, env vars and defaults still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8987)

	v.SetDefault("database.path", "./data/sublarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("auth.api_key", "")

	v.SetDefault("library.media_root", "")
	v.SetDefault("library.temp_dir", "/tmp/sublarr")

	v.SetDefault("workers.max_translate", 2)
	v.SetDefault("workers.max_search", 4)
	v.SetDefault("workers.max_whisper", 1)
	v.SetDefault("workers.max_scan_probes", 4)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
