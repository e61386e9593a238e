// Package config loads server configuration from a TOML file and HERDCORE_*
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// SeedUser describes an attesting user created at startup if absent.
type SeedUser struct {
	Username    string `mapstructure:"username"`
	DisplayName string `mapstructure:"display_name"`
}

// Config holds all server settings.
type Config struct {
	Listen string `mapstructure:"listen"`

	StorageDriver string `mapstructure:"storage_driver"` // memory|sqlite|postgres
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`

	TimeZone string `mapstructure:"time_zone"` // deployment civil zone

	Tokens []string `mapstructure:"tokens"` // accepted bearer tokens

	ArchiveDriver string `mapstructure:"archive_driver"` // fs|s3|memory
	ArchiveRoot   string `mapstructure:"archive_root"`   // driver=fs

	SeedUsers []SeedUser `mapstructure:"seed_users"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

// Load reads configuration from herdcore.conf (TOML, searched in /etc and the
// working directory) overlaid with HERDCORE_* environment variables, then
// sets the global log level.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("herdcore.conf")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	v.AddConfigPath(".")

	v.SetDefault("listen", ":8080")
	v.SetDefault("storage_driver", "sqlite")
	v.SetDefault("sqlite_path", "herdcore.db")
	v.SetDefault("time_zone", "UTC")
	v.SetDefault("archive_driver", "fs")
	v.SetDefault("archive_root", "./archivedata")

	v.SetEnvPrefix("HERDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// HERDCORE_TOKENS as a comma-separated list for env-only deployments.
	if raw := v.GetString("tokens"); raw != "" && len(config.Tokens) == 0 {
		for _, token := range strings.Split(raw, ",") {
			if token = strings.TrimSpace(token); token != "" {
				config.Tokens = append(config.Tokens, token)
			}
		}
	}

	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if config.Verbose {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	return config, nil
}
