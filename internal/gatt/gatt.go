// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gatt declares the node's GATT service: its UUID and the fixed
// characteristic table. Indices are persisted on the module; append new
// characteristics at the end and never renumber.
package gatt

import (
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// Service is the node's primary service.
var Service = uuid.MustParse("895225fe-acaf-4f21-b0e7-1adb51e11653")

// Characteristic indices
const (
	IdxHeapFree = iota + 1
	IdxBattery
	IdxLight
	IdxMotionCount
	IdxLightThresholdRD
	IdxAccelThresholdRD
	IdxLightThresholdWR
	IdxAccelThresholdWR
	IdxBootCount
	IdxLEDState
)

// Scales of the fixed-point characteristics.
const (
	BatteryScale   = 2 * 3.3 / 65535 // volts per ADC count, through the 2:1 divider
	LightScale     = 1e-3            // millilux
	ThresholdScale = 1e-1            // decilux
	AccelScale     = 1e-3            // milli-g
)

// Characteristics is the node's characteristic table. RD/WR names are from
// the host's point of view: the node writes RD and reads WR.
var Characteristics = bluefruit.MustRegistry(
	bluefruit.Characteristic{
		Index: IdxHeapFree, UUID: 0x0002, Name: "heap_free", Access: bluefruit.ReadOnly,
		Format: bluefruit.Uint(4), Unit: "bytes", Default: 0xffffffff,
	},
	bluefruit.Characteristic{
		Index: IdxBattery, UUID: 0x0003, Name: "battery", Access: bluefruit.ReadOnly,
		Format: bluefruit.Fixed(2, BatteryScale), Unit: "V", Default: 0xffff,
	},
	bluefruit.Characteristic{
		Index: IdxLight, UUID: 0x0004, Name: "light", Access: bluefruit.ReadOnly,
		Format: bluefruit.Fixed(4, LightScale), Unit: "lux", Default: 0xffffffff,
	},
	bluefruit.Characteristic{
		Index: IdxMotionCount, UUID: 0x0005, Name: "motion_count", Access: bluefruit.ReadOnly,
		Format: bluefruit.Uint(3), Default: 0,
	},
	bluefruit.Characteristic{
		Index: IdxLightThresholdRD, UUID: 0x0006, Name: "light_threshold_rd", Access: bluefruit.ReadOnly,
		Format: bluefruit.Fixed(2, ThresholdScale), Unit: "lux", Default: 0xffff,
	},
	bluefruit.Characteristic{
		Index: IdxAccelThresholdRD, UUID: 0x0007, Name: "accel_threshold_rd", Access: bluefruit.ReadOnly,
		Format: bluefruit.Fixed(2, AccelScale), Unit: "g", Default: 0xffff,
	},
	bluefruit.Characteristic{
		Index: IdxLightThresholdWR, UUID: 0x0008, Name: "light_threshold_wr", Access: bluefruit.WriteOnly,
		Format: bluefruit.Fixed(2, ThresholdScale), Unit: "lux", Default: 0xffff,
	},
	bluefruit.Characteristic{
		Index: IdxAccelThresholdWR, UUID: 0x0009, Name: "accel_threshold_wr", Access: bluefruit.WriteOnly,
		Format: bluefruit.Fixed(2, AccelScale), Unit: "g", Default: 0xffff,
	},
	bluefruit.Characteristic{
		Index: IdxBootCount, UUID: 0x000A, Name: "boot_count", Access: bluefruit.ReadOnly,
		Format: bluefruit.Uint(4), Default: 0,
	},
	bluefruit.Characteristic{
		Index: IdxLEDState, UUID: 0x000B, Name: "led", Access: bluefruit.ReadOnly,
		Format: bluefruit.Bool(), Default: 0,
	},
)

// Get returns the characteristic at idx. The table is static, so an unknown
// index is a programming error.
func Get(idx int) bluefruit.Characteristic {
	c, ok := Characteristics.Get(idx)
	if !ok {
		panic("gatt: no characteristic at index")
	}
	return c
}

// Provisioning returns the factory reset parameters for a device name.
func Provisioning(deviceName string, settle time.Duration) bluefruit.Provisioning {
	return bluefruit.Provisioning{DeviceName: deviceName, Service: Service, Settle: settle}
}
