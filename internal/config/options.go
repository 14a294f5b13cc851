// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

// Option IDs
const (
	LightThreshold        ID = 1 // lux
	LightMovingAvg        ID = 2
	AccelerationThreshold ID = 3 // g
	NeopixelBrightness    ID = 4 // 0..255
	NeopixelFlashTime     ID = 5 // seconds
	NeopixelFlashSpeed    ID = 6 // seconds
	WatchdogTimeout       ID = 7 // seconds
	WatchdogPetInterval   ID = 8 // seconds
	DeviceName            ID = 9
)

// Options is the node's option table.
var Options = MustTable(
	Option{
		ID: LightThreshold, Name: "LIGHT_THRESHOLD", Default: Float(30.0),
		Doc: "Light level below which the LED is turned on, in lux.",
	},
	Option{
		ID: LightMovingAvg, Name: "LIGHT_MOVING_AVG", Default: Float(0.8),
		Doc: "Exponential moving average factor for the light sensor.",
	},
	Option{
		ID: AccelerationThreshold, Name: "ACCELERATION_THRESHOLD", Default: Float(6.25),
		Doc: "Acceleration that counts as motion, in g. Applied in steps of 62.5 mg.",
	},
	Option{
		ID: NeopixelBrightness, Name: "NEOPIXEL_BRIGHTNESS", Default: Int(5),
		Doc: "Brightness of the pixels while flashing, 0 to 255.",
	},
	Option{
		ID: NeopixelFlashTime, Name: "NEOPIXEL_FLASH_TIME", Default: Float(1.0),
		Doc: "How long the pixels keep flashing after motion, in seconds.",
	},
	Option{
		ID: NeopixelFlashSpeed, Name: "NEOPIXEL_FLASH_SPEED", Default: Float(0.1),
		Doc: "Delay between flash frames, in seconds.",
	},
	Option{
		ID: WatchdogTimeout, Name: "WATCHDOG_TIMEOUT", Default: Float(10.0),
		Doc: "Time without a pet before the watchdog resets the device, in seconds.",
	},
	Option{
		ID: WatchdogPetInterval, Name: "WATCHDOG_PET_INTERVAL", Default: Float(5.0),
		Doc: "Time between watchdog pets, in seconds.",
	},
	Option{
		ID: DeviceName, Name: "DEVICE_NAME", Default: String("Lumen Sensor Node"),
		Doc: "GAP device name programmed on factory reset.",
	},
)
