package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path    string `mapstructure:"path"`   // sqlite file path
	DSN     string `mapstructure:"dsn"`    // postgres connection string
	LogMode bool   `mapstructure:"log_mode"`
}

type SyncConfig struct {
	// EarliestDate is the hard validity cutoff for externally fetched
	// records. Rows dated before it are rejected, not staged.
	EarliestDate       string `mapstructure:"earliest_date"`
	LookbackDays       int    `mapstructure:"lookback_days"`
	HTTPTimeoutSeconds int    `mapstructure:"http_timeout_seconds"`
}

type BackupConfig struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type AIConfig struct {
	Model string `mapstructure:"model"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Backup   BackupConfig   `mapstructure:"backup"`
	AI       AIConfig       `mapstructure:"ai"`
}

// Load reads configuration from the given file path (e.g. "config.yaml").
// Missing file is not an error; defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "3000")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/finapp.db")
	v.SetDefault("database.log_mode", false)
	v.SetDefault("sync.earliest_date", "2026-01-01")
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.http_timeout_seconds", 30)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.retention_days", 30)
	v.SetDefault("ai.model", "gemini-1.5-flash")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// EarliestSyncDate parses the configured validity cutoff.
func (c *Config) EarliestSyncDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Sync.EarliestDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sync.earliest_date %q: %w", c.Sync.EarliestDate, err)
	}
	return t, nil
}
