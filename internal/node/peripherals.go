// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"runtime"
	"time"
)

// LightSensor reads ambient light.
type LightSensor interface {
	Lux() (float64, error)
}

// Accelerometer detects motion above a programmable threshold.
type Accelerometer interface {
	// EnableMotionDetection programs the activity threshold in 62.5 mg units.
	EnableMotionDetection(threshold uint8) error
	// Motion reports whether motion was detected since the last call.
	Motion() (bool, error)
}

// BatteryMonitor samples the battery through a 2:1 divider on a 16-bit ADC.
type BatteryMonitor interface {
	Raw() (uint16, error)
}

// LED is a single indicator.
type LED interface {
	Set(on bool) error
}

// PixelStrip is an addressable RGB strip. Changes take effect on Show.
type PixelStrip interface {
	Len() int
	Fill(r, g, b uint8)
	SetPixel(i int, r, g, b uint8)
	Show() error
}

// Watchdog resets the device unless fed.
type Watchdog interface {
	Arm(timeout time.Duration) error
	Feed() error
}

// MemoryMonitor reports free memory.
type MemoryMonitor interface {
	Free() uint64
}

// Peripherals is everything the node drives besides the BLE module.
type Peripherals struct {
	Light    LightSensor
	Accel    Accelerometer
	Battery  BatteryMonitor
	LED      LED
	Pixels   PixelStrip
	Watchdog Watchdog
	Memory   MemoryMonitor
}

// RuntimeMemory reports the Go heap's idle space as free memory.
type RuntimeMemory struct{}

// Free implements MemoryMonitor.
func (RuntimeMemory) Free() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}
