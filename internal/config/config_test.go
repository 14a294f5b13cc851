// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore() *Store {
	return NewStore(Options, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_Defaults(t *testing.T) {
	s := newTestStore()
	if got := s.Float(LightThreshold); got != 30.0 {
		t.Errorf("LIGHT_THRESHOLD = %v", got)
	}
	if got := s.Int(NeopixelBrightness); got != 5 {
		t.Errorf("NEOPIXEL_BRIGHTNESS = %v", got)
	}
	if got := s.Float(AccelerationThreshold); got != 6.25 {
		t.Errorf("ACCELERATION_THRESHOLD = %v", got)
	}
	if len(s.Snapshot()) != len(Options.Options()) {
		t.Error("snapshot does not cover every option")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		applied bool
		wantErr error
		check   func(t *testing.T, s *Store)
	}{
		{name: "comment", line: "  # comment\n"},
		{name: "empty", line: ""},
		{name: "whitespace", line: " \t "},
		{name: "unknown option", line: "FOO = 12\n", wantErr: ErrUnknownOption},
		{name: "no equals", line: "LIGHT_THRESHOLD 12", wantErr: ErrMalformedLine},
		{name: "bad float", line: "LIGHT_THRESHOLD = bright", wantErr: ErrInvalidValue},
		{name: "bad int", line: "NEOPIXEL_BRIGHTNESS = 2.5", wantErr: ErrInvalidValue},
		{
			name: "float", line: "LIGHT_THRESHOLD = 12.5\n", applied: true,
			check: func(t *testing.T, s *Store) {
				if got := s.Float(LightThreshold); got != 12.5 {
					t.Errorf("LIGHT_THRESHOLD = %v, want 12.5", got)
				}
			},
		},
		{
			name: "int without spaces", line: "NEOPIXEL_BRIGHTNESS=40", applied: true,
			check: func(t *testing.T, s *Store) {
				if got := s.Int(NeopixelBrightness); got != 40 {
					t.Errorf("NEOPIXEL_BRIGHTNESS = %v, want 40", got)
				}
			},
		},
		{
			name: "string keeps inner equals", line: "DEVICE_NAME = a=b node", applied: true,
			check: func(t *testing.T, s *Store) {
				if got := s.String(DeviceName); got != "a=b node" {
					t.Errorf("DEVICE_NAME = %q", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			before := s.Snapshot()

			applied, err := s.ParseLine(tt.line)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if applied != tt.applied {
				t.Errorf("applied = %v, want %v", applied, tt.applied)
			}

			if tt.check != nil {
				tt.check(t, s)
				return
			}
			after := s.Snapshot()
			for i := range before {
				if before[i].Value != after[i].Value {
					t.Errorf("%s changed from %s to %s", before[i].Option.Name, before[i].Value, after[i].Value)
				}
			}
		})
	}
}

func TestOption_ParseBool(t *testing.T) {
	o := Option{ID: 1, Name: "FLAG", Default: Bool(false)}
	for text, want := range map[string]bool{"true": true, "TRUE": true, "False": false, "1": true, "0": false} {
		v, err := o.Parse(text)
		if err != nil || v.Bool != want {
			t.Errorf("Parse(%q) = %v, %v", text, v, err)
		}
	}
	if _, err := o.Parse("maybe"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Parse(maybe) = %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	s := newTestStore()
	input := strings.Join([]string{
		"# node configuration",
		"",
		"LIGHT_THRESHOLD = 12.5",
		"NOT_AN_OPTION = 1",
		"garbage",
		"ACCELERATION_THRESHOLD = 2",
		"NEOPIXEL_FLASH_SPEED = fast",
	}, "\n")

	applied, err := s.Bootstrap(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied %d lines, want 2", applied)
	}
	if s.Float(AccelerationThreshold) != 2 || s.Float(LightThreshold) != 12.5 {
		t.Error("values not applied")
	}
	if s.Float(NeopixelFlashSpeed) != 0.1 {
		t.Error("bad line changed NEOPIXEL_FLASH_SPEED")
	}
}

func TestBootstrapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte("WATCHDOG_TIMEOUT = 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestStore()
	if _, err := s.BootstrapFile(path); err != nil {
		t.Fatal(err)
	}
	if s.Float(WatchdogTimeout) != 20 {
		t.Errorf("WATCHDOG_TIMEOUT = %v", s.Float(WatchdogTimeout))
	}

	if _, err := s.BootstrapFile(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}

func TestWriteTo_RoundTrip(t *testing.T) {
	s := newTestStore()
	s.Set(LightMovingAvg, Float(0.5))
	s.Set(DeviceName, String("bench"))

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	restored := newTestStore()
	if _, err := restored.Bootstrap(&buf); err != nil {
		t.Fatal(err)
	}
	for i, e := range restored.Snapshot() {
		if want := s.Snapshot()[i].Value; e.Value != want {
			t.Errorf("%s = %s, want %s", e.Option.Name, e.Value, want)
		}
	}
}

func TestStore_ProgrammingErrors(t *testing.T) {
	s := newTestStore()
	tests := map[string]func(){
		"unknown id":    func() { s.Get(42) },
		"zero id":       func() { s.Get(0) },
		"kind mismatch": func() { s.Set(LightThreshold, Int(3)) },
		"typed read":    func() { s.Int(LightThreshold) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected a panic")
				}
			}()
			fn()
		})
	}
}

func TestNewTable_Invalid(t *testing.T) {
	if _, err := NewTable(Option{ID: 2, Name: "A", Default: Int(0)}); err == nil {
		t.Error("accepted a table not starting at ID 1")
	}
	if _, err := NewTable(
		Option{ID: 1, Name: "A", Default: Int(0)},
		Option{ID: 2, Name: "A", Default: Int(0)},
	); err == nil {
		t.Error("accepted a duplicate name")
	}
	if _, err := NewTable(Option{ID: 1, Name: "A"}); err == nil {
		t.Error("accepted an option without a default")
	}
}
