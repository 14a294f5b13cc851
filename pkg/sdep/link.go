// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

// Link is the physical connection to the device: a chip-selected SPI
// exchange plus the device's interrupt (data ready) line.
type Link interface {
	// WriteFrame clocks out one encoded frame with chip select asserted.
	WriteFrame(frame []byte) error
	// ReadFrame clocks in one full frame into buf (FrameSize bytes).
	ReadFrame(buf []byte) error
	// Ready reports the level of the interrupt line.
	Ready() (bool, error)
}

// Resetter is implemented by links that can pulse the device's reset line.
type Resetter interface {
	Reset() error
}
