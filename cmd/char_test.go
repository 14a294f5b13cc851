// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/Thermoquad/lumen/internal/gatt"
)

func TestLookupChar(t *testing.T) {
	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{"3", gatt.IdxLight, false},
		{"light", gatt.IdxLight, false},
		{"LIGHT_THRESHOLD_WR", gatt.IdxLightThresholdWR, false},
		{"99", 0, true},
		{"nope", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			c, err := lookupChar(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("lookupChar(%q) = %v, want error", tt.arg, c)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookupChar(%q): %v", tt.arg, err)
			}
			if c.Index != tt.want {
				t.Errorf("lookupChar(%q).Index = %d, want %d", tt.arg, c.Index, tt.want)
			}
		})
	}
}

func TestParseCharValue(t *testing.T) {
	tests := []struct {
		name    string
		idx     int
		raw     bool
		text    string
		want    uint64
		wantErr bool
	}{
		{"decilux", gatt.IdxLightThresholdWR, false, "25.5", 255, false},
		{"milli-g", gatt.IdxAccelThresholdWR, false, "1.5", 1500, false},
		{"bool", gatt.IdxLEDState, false, "true", 1, false},
		{"raw hex", gatt.IdxAccelThresholdWR, true, "0xffff", 0xffff, false},
		{"raw too wide", gatt.IdxAccelThresholdWR, true, "65536", 0, true},
		{"negative", gatt.IdxLightThresholdWR, false, "-1", 0, true},
		{"rounds to sentinel", gatt.IdxLightThresholdWR, false, "7000", 0, true},
		{"garbage", gatt.IdxLightThresholdWR, false, "abc", 0, true},
		{"bad bool", gatt.IdxLEDState, false, "on", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charRaw = tt.raw
			defer func() { charRaw = false }()

			v, err := parseCharValue(gatt.Get(tt.idx), tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCharValue(%q) = %v, want error", tt.text, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCharValue(%q): %v", tt.text, err)
			}
			if v.Raw != tt.want {
				t.Errorf("parseCharValue(%q).Raw = %d, want %d", tt.text, v.Raw, tt.want)
			}
		})
	}
}

func TestFormatCharValue(t *testing.T) {
	light := gatt.Get(gatt.IdxLightThresholdRD)
	if got := formatCharValue(light, light.Format.FromUint(300)); got != "30 lux" {
		t.Errorf("formatCharValue = %q, want %q", got, "30 lux")
	}
	if got := formatCharValue(light, light.Format.Sentinel()); got != "unset" {
		t.Errorf("formatCharValue(sentinel) = %q, want unset", got)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3723000, "1 hour, 2 minutes, and 3 seconds"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
