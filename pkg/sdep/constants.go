// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sdep implements the SDEP framing used by the Bluefruit LE SPI Friend.
//
// SDEP carries AT commands and their responses over a half-duplex SPI link in
// fixed 20-byte frames: a 4-byte header followed by up to 16 payload bytes.
// A logical message longer than 16 bytes spans several frames, all but the
// last carrying the "more" flag. The device raises an interrupt line while it
// has response frames pending; the host reads frames until the line drops.
package sdep

import "time"

// Frame layout
const (
	FrameSize      = 20
	HeaderSize     = 4
	MaxPayloadSize = 16

	// MoreFlag is set in the length byte of every frame but the last of a message.
	MoreFlag   = 0x80
	lengthMask = 0x7F
)

// MaxCommandSize is the longest logical command the device accepts, including
// the trailing line terminator.
const MaxCommandSize = 127

// Message types
const (
	MsgCommand  = 0x10
	MsgResponse = 0x20
	MsgAlert    = 0x40
	MsgError    = 0x80
)

// Opcodes
const (
	OpInitialize = 0xBEEF // resets the device
	OpATCommand  = 0x0A00 // AT command wrapper
	OpUARTTx     = 0x0A01
	OpUARTRx     = 0x0A02
)

// Default link timing
const (
	DefaultFrameDelay      = 50 * time.Millisecond
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultResponseTimeout = 200 * time.Millisecond

	// InitializeSettle is how long the device needs after an SDEP initialize.
	InitializeSettle = time.Second
)
