package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huddlechat/huddle/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAddr          = "localhost:8000"
	defaultTokenLifetime = 24 * time.Hour
	defaultHistoryLimit  = 50
)

// Config is the global configuration object, filled from the
// configuration file, environment (HUDDLE_ prefix) and flags.
type Config struct {
	Addr        string            `mapstructure:"addr"`
	LogLevel    string            `mapstructure:"log_level"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	History     HistoryConfig     `mapstructure:"history"`
}

// AuthConfig configures token issuance. Secret must be set, the server
// refuses to start without one.
type AuthConfig struct {
	Secret        string        `mapstructure:"secret"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`
}

// PersistenceConfig selects the storage backend. Type is one of
// "buntdb" (default), "sqlite" or "postgres"; DSN is the file path for
// buntdb/sqlite or the connection string for postgres.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// RateLimitConfig configures the per-identity send window.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxMessages int           `mapstructure:"max_messages"`
}

// HistoryConfig bounds message history pages served via the REST API.
type HistoryConfig struct {
	PageLimit int `mapstructure:"page_limit"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("addr", defaultAddr, "listen address (including port)")
	flagSet.String("log-level", "INFO", "log level")
	return flagSet
}

// wordSepNormalizeFunc normalizes flag names (which use - as separator)
// to the config key style.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in the directory are
// concatenated.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("addr", defaultAddr)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("auth.token_lifetime", defaultTokenLifetime)
	viper.SetDefault("persistence.type", "buntdb")
	viper.SetDefault("persistence.dsn", "huddle.db")
	viper.SetDefault("rate_limit.window", time.Second)
	viper.SetDefault("rate_limit.max_messages", 5)
	viper.SetDefault("history.page_limit", defaultHistoryLimit)
	if err := viper.BindPFlags(flagSet); err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("HUDDLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config", "error", err)
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config", "error", err)
	}
	return &cfg, nil
}
