// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import "errors"

var (
	ErrOversizedCommand = errors.New("sdep: command too long")
	ErrResponseTimeout  = errors.New("sdep: timed out waiting for a response")
	ErrInvalidLength    = errors.New("sdep: invalid frame length")
	ErrShortFrame       = errors.New("sdep: short frame")
)
