// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads kiln settings from defaults, an optional YAML file,
// KILN_* environment variables and command line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Thermoquad/kiln/pkg/upload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. KILN_LINK_PORT
const EnvPrefix = "KILN"

// LinkConfig selects and configures the connection to the programmer
type LinkConfig struct {
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

// UploadConfig holds the session policy and presentation settings
type UploadConfig struct {
	Verify            bool          `mapstructure:"verify"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	HandshakeAttempts int           `mapstructure:"handshake_attempts"`
	HandshakeBackoff  time.Duration `mapstructure:"handshake_backoff"`
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	BlockRetries      int           `mapstructure:"block_retries"`
	PadFinalBlock     bool          `mapstructure:"pad_final_block"`
	Progress          string        `mapstructure:"progress"`
}

// LumberjackConfig configures the rotating log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig holds log level and output settings
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Config is the top-level configuration
type Config struct {
	Link    LinkConfig    `mapstructure:"link"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// flagKeys maps command line flag names to configuration keys
var flagKeys = map[string]string{
	"port":               "link.port",
	"baud":               "link.baud",
	"url":                "link.url",
	"username":           "link.username",
	"no-ssl-verify":      "link.no_ssl_verify",
	"verify":             "upload.verify",
	"handshake-timeout":  "upload.handshake_timeout",
	"handshake-attempts": "upload.handshake_attempts",
	"handshake-backoff":  "upload.handshake_backoff",
	"block-timeout":      "upload.block_timeout",
	"block-retries":      "upload.block_retries",
	"pad-final-block":    "upload.pad_final_block",
	"progress":           "upload.progress",
	"log-level":          "logging.level",
	"log-format":         "logging.format",
	"log-file":           "logging.file.filename",
}

// Load reads the configuration. An empty path searches ./kiln.yaml and
// $HOME/.config/kiln/kiln.yaml; a missing file there is not an error.
// An explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "kiln"))
		}
		v.SetConfigName("kiln")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file is fine; defaults and the environment apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := upload.DefaultPolicy()

	v.SetDefault("link.port", "")
	v.SetDefault("link.baud", 115200)
	v.SetDefault("link.url", "")
	v.SetDefault("link.username", "admin")
	v.SetDefault("link.no_ssl_verify", false)

	v.SetDefault("upload.verify", false)
	v.SetDefault("upload.handshake_timeout", policy.HandshakeTimeout.String())
	v.SetDefault("upload.handshake_attempts", policy.HandshakeAttempts)
	v.SetDefault("upload.handshake_backoff", policy.HandshakeBackoff.String())
	v.SetDefault("upload.block_timeout", policy.BlockTimeout.String())
	v.SetDefault("upload.block_retries", policy.BlockRetries)
	v.SetDefault("upload.pad_final_block", false)
	v.SetDefault("upload.progress", "auto")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("logging.file.compress", false)
}

// Validate checks values that the session and renderers cannot reject later
func (c *Config) Validate() error {
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Link.Baud)
	}
	switch c.Upload.Progress {
	case "auto", "plain", "bar", "tui":
	default:
		return fmt.Errorf("invalid progress mode %q (want auto, plain, bar or tui)", c.Upload.Progress)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (want console or json)", c.Logging.Format)
	}
	return c.Upload.Policy().Validate()
}

// Policy converts the upload settings into a session policy
func (u UploadConfig) Policy() upload.Policy {
	return upload.Policy{
		HandshakeTimeout:  u.HandshakeTimeout,
		HandshakeAttempts: u.HandshakeAttempts,
		HandshakeBackoff:  u.HandshakeBackoff,
		BlockTimeout:      u.BlockTimeout,
		BlockRetries:      u.BlockRetries,
	}
}

// FinalBlockPolicy returns the policy for a short final block
func (u UploadConfig) FinalBlockPolicy() upload.FinalBlockPolicy {
	if u.PadFinalBlock {
		return upload.PadShortFinal
	}
	return upload.RejectShortFinal
}
