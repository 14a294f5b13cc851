// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bluefruit

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/lumen/pkg/sdep"
)

var (
	// ErrCommandRejected means the device answered with an SDEP ERROR frame.
	ErrCommandRejected = errors.New("command rejected")
	// ErrUnknownResponse means the device answered with a frame type other
	// than RESPONSE or ERROR.
	ErrUnknownResponse = errors.New("unknown response type")
	// ErrNotAcknowledged means a response did not end in "OK\r\n".
	ErrNotAcknowledged = errors.New("not acknowledged")
	// ErrIndexMismatch means the device assigned a characteristic a different
	// index than the one it was declared with.
	ErrIndexMismatch = errors.New("characteristic index mismatch")
	// ErrDecode means a characteristic value could not be parsed.
	ErrDecode = errors.New("cannot decode characteristic value")
	// ErrOutOfRange means a value cannot be represented in a format without
	// clamping, or would encode as the sentinel.
	ErrOutOfRange = errors.New("value out of range")
)

// CommandError describes a command the device did not carry out.
type CommandError struct {
	Command  string
	Type     uint8
	Opcode   uint16
	Response []byte
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bluefruit: %s: %v (%s, opcode %s, %q)",
		e.Command, e.Err, sdep.FormatMessageType(e.Type), sdep.FormatOpcode(e.Opcode), e.Response)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
