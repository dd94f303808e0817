// Package config resolves asr settings from config files, environment
// variables, and flags via viper. Precedence is flags over environment over
// config file over defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the fully resolved asr configuration.
type Config struct {
	Validation ValidationConfig `mapstructure:"validation"`
	Adapter    AdapterConfig    `mapstructure:"adapter"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
}

type ValidationConfig struct {
	ReferenceMaxLines int  `mapstructure:"reference_max_lines"`
	Strict            bool `mapstructure:"strict"`
}

type AdapterConfig struct {
	DefaultTargets []string `mapstructure:"default_targets"`
}

type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
}

// SetDefaults registers the built-in defaults on v. Call before reading any
// config file so absent keys resolve to sensible values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("validation.reference_max_lines", 500)
	v.SetDefault("validation.strict", false)
	v.SetDefault("adapter.default_targets", []string{"cursor", "windsurf"})
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
}

// FromViper decodes the resolved viper state into a typed Config and clamps
// out-of-range values back to their defaults.
func FromViper(v *viper.Viper) (Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if config.Fetch.Concurrency < 1 {
		config.Fetch.Concurrency = 4
	}
	if config.Fetch.Timeout <= 0 {
		config.Fetch.Timeout = 30 * time.Second
	}
	if config.Fetch.Retries < 0 {
		config.Fetch.Retries = 3
	}
	if config.Validation.ReferenceMaxLines < 1 {
		config.Validation.ReferenceMaxLines = 500
	}
	return config, nil
}

// StateHome returns the asr state directory, creating it if needed.
// ASR_HOME overrides the default of ~/.asr.
func StateHome() (string, error) {
	if home := os.Getenv("ASR_HOME"); home != "" {
		if err := os.MkdirAll(home, 0o755); err != nil {
			return "", errors.Wrap(err, "failed to create state directory")
		}
		return home, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	dir := filepath.Join(userHome, ".asr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create state directory")
	}
	return dir, nil
}

// ConfigFilePath returns the default config file location inside the state
// home. The file does not have to exist.
func ConfigFilePath() (string, error) {
	home, err := StateHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.yaml"), nil
}
