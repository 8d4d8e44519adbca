// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/kiln/internal/config"
	"github.com/Thermoquad/kiln/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var (
	// settings is loaded before any subcommand runs. Flag values reach
	// subcommands through it, merged with the config file and environment.
	settings *config.Config
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Firmware uploader for sprog programmers",
	Long: `Kiln - upload firmware images to a sprog programmer.

The image is sent in 512-byte blocks, each protected by a CRC-16/XMODEM
checksum and acknowledged by the programmer before the next one is sent.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a kiln.yaml file (./kiln.yaml or
$HOME/.config/kiln/kiln.yaml, or --config) and KILN_* environment
variables, e.g. KILN_LINK_PORT or KILN_UPLOAD_BLOCK_RETRIES.

For WebSocket authentication, the password is read from the KILN_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "admin", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVar(&configPath, "config", "", "Config file (default ./kiln.yaml or $HOME/.config/kiln/kiln.yaml)")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
	flags.String("log-file", "", "Also write logs to this file, rotated")
}

func loadSettings(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return usageError{err}
	}

	l, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return usageError{fmt.Errorf("init logger: %w", err)}
	}

	settings = cfg
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}
