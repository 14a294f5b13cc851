// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings loads the host-side settings file: how to reach the
// module, link timing, and where the node keeps its files.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds all host-side configuration.
type Settings struct {
	Link     LinkSettings   `yaml:"link"`
	Timing   TimingSettings `yaml:"timing"`
	Files    FileSettings   `yaml:"files"`
	LogLevel string         `yaml:"log_level"`
}

// LinkSettings selects and configures the physical link. Exactly one of SPI,
// URL, Port, or Simulate is used, in that order of preference.
type LinkSettings struct {
	SPI         SPISettings `yaml:"spi"`
	URL         string      `yaml:"url"` // ws:// or wss:// bridge
	Username    string      `yaml:"username"`
	NoSSLVerify bool        `yaml:"no_ssl_verify"`
	Port        string      `yaml:"port"` // serial bridge
	Baud        int         `yaml:"baud"`
	Simulate    bool        `yaml:"simulate"`
}

// SPISettings names the SPI port and GPIO lines of a directly attached module.
type SPISettings struct {
	Device   string `yaml:"device"` // e.g. "/dev/spidev0.0"; empty disables SPI
	IRQ      string `yaml:"irq"`
	Reset    string `yaml:"reset"`
	SpeedKHz int    `yaml:"speed_khz"`
}

// TimingSettings overrides the SDEP link delays.
type TimingSettings struct {
	FrameDelay      time.Duration `yaml:"frame_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	ResetSettle     time.Duration `yaml:"reset_settle"`
}

// FileSettings locates the node's files.
type FileSettings struct {
	Bootstrap   string `yaml:"bootstrap"`    // name = value option file
	ResetMarker string `yaml:"reset_marker"` // presence requests a factory reset
	SimState    string `yaml:"sim_state"`    // simulator GATT table (CBOR)
}

// DefaultDir returns the default settings directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "lumen")
}

// DefaultPath returns the default settings file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "settings.yaml")
}

// Default returns settings with sensible default values.
func Default() *Settings {
	dir := DefaultDir()
	return &Settings{
		Link: LinkSettings{
			SPI: SPISettings{
				IRQ:      "GPIO25",
				Reset:    "GPIO24",
				SpeedKHz: 4000,
			},
			Baud: 115200,
		},
		Timing: TimingSettings{
			FrameDelay:      50 * time.Millisecond,
			PollInterval:    10 * time.Millisecond,
			ResponseTimeout: 200 * time.Millisecond,
			ResetSettle:     time.Second,
		},
		Files: FileSettings{
			Bootstrap:   filepath.Join(dir, "config.txt"),
			ResetMarker: filepath.Join(dir, "reset-ble"),
			SimState:    filepath.Join(dir, "sim.cbor"),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML settings file. Missing fields keep their
// defaults. A leading ~ in file paths is expanded.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}

	s.Files.Bootstrap = expandTilde(s.Files.Bootstrap)
	s.Files.ResetMarker = expandTilde(s.Files.ResetMarker)
	s.Files.SimState = expandTilde(s.Files.SimState)

	return s, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the settings for invalid values.
func (s *Settings) Validate() error {
	if s.Link.URL != "" && !strings.HasPrefix(s.Link.URL, "ws://") && !strings.HasPrefix(s.Link.URL, "wss://") {
		return fmt.Errorf("link.url must start with ws:// or wss://, got %q", s.Link.URL)
	}
	if s.Link.Baud <= 0 {
		return fmt.Errorf("link.baud must be > 0")
	}
	if s.Link.SPI.Device != "" && s.Link.SPI.IRQ == "" {
		return fmt.Errorf("link.spi.irq must be set when link.spi.device is")
	}
	if s.Link.SPI.SpeedKHz <= 0 {
		return fmt.Errorf("link.spi.speed_khz must be > 0")
	}

	if s.Timing.FrameDelay < 0 || s.Timing.PollInterval < 0 || s.Timing.ResponseTimeout < 0 || s.Timing.ResetSettle < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	if s.Timing.PollInterval > s.Timing.ResponseTimeout && s.Timing.ResponseTimeout > 0 {
		return fmt.Errorf("timing.poll_interval must not exceed timing.response_timeout")
	}

	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log_level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", level)
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
