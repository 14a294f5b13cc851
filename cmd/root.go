// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/settings"
)

var (
	settingsPath string
	logLevel     string

	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Direct SPI flags
	spiDevice string
	spiIRQ    string
	spiReset  string

	simulate bool

	// cfg is the loaded settings with flag overrides applied.
	cfg *settings.Settings
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Bluefruit SPI sensor node and host tools",
	Long: `Lumen - runs a light and motion sensor node that reports over a
Bluefruit LE SPI Friend, and provides tools to provision and inspect the module.

Link modes (first one set wins):
  SPI:       --spi /dev/spidev0.0 [--irq GPIO25] [--reset GPIO24]
  WebSocket: --url ws://host/path [--username user]
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  Simulated: --simulate

WebSocket and serial links speak the frame bridge protocol served by
"lumen sim" or a bridge board next to the module.

For WebSocket authentication, the password is read from the LUMEN_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", settings.DefaultPath(), "Settings file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Direct SPI flags
	rootCmd.PersistentFlags().StringVar(&spiDevice, "spi", "", "SPI port of a directly attached module")
	rootCmd.PersistentFlags().StringVar(&spiIRQ, "irq", "", "IRQ GPIO name")
	rootCmd.PersistentFlags().StringVar(&spiReset, "reset", "", "Reset GPIO name")

	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use an in-process simulated module")
}

// setup loads the settings, applies flag overrides, and configures logging.
func setup(cmd *cobra.Command, args []string) error {
	s, err := settings.LoadOrDefault(settingsPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		s.LogLevel = logLevel
	}
	if flags.Changed("port") {
		s.Link.Port = portName
	}
	if flags.Changed("baud") {
		s.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		s.Link.URL = wsURL
	}
	if flags.Changed("username") {
		s.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		s.Link.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("spi") {
		s.Link.SPI.Device = spiDevice
	}
	if flags.Changed("irq") {
		s.Link.SPI.IRQ = spiIRQ
	}
	if flags.Changed("reset") {
		s.Link.SPI.Reset = spiReset
	}
	if flags.Changed("simulate") {
		s.Link.Simulate = simulate
	}

	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	level, err := settings.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg = s
	return nil
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
