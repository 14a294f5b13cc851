// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Lumen - Bluefruit SPI sensor node and its host tools
//
// Runs the sensor node against a Bluefruit LE SPI Friend (or a simulated
// one), provisions its GATT service, and reads it back from the host side.

package main

import (
	"os"

	"github.com/Thermoquad/lumen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
