// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bluefruit

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind selects how a characteristic's raw unsigned value is interpreted.
type Kind uint8

const (
	// KindUint is a plain unsigned integer.
	KindUint Kind = iota + 1
	// KindFixed is a real number stored as raw * Scale.
	KindFixed
	// KindBool is 0 or 1.
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindFixed:
		return "fixed"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Format is the wire format of a characteristic: a fixed-width unsigned
// integer, sent to and received from the module as hex text.
type Format struct {
	Kind  Kind
	Width int     // bytes, 1..8
	Scale float64 // KindFixed only: value of one raw unit
}

// Uint returns an unsigned integer format of width bytes.
func Uint(width int) Format {
	return Format{Kind: KindUint, Width: width}
}

// Fixed returns a fixed-point format of width bytes where one raw unit is
// worth scale.
func Fixed(width int, scale float64) Format {
	return Format{Kind: KindFixed, Width: width, Scale: scale}
}

// Bool returns a one-byte boolean format.
func Bool() Format {
	return Format{Kind: KindBool, Width: 1}
}

// Validate reports a malformed format.
func (f Format) Validate() error {
	if f.Width < 1 || f.Width > 8 {
		return fmt.Errorf("bluefruit: width %d out of range", f.Width)
	}
	switch f.Kind {
	case KindUint, KindBool:
		return nil
	case KindFixed:
		if f.Scale <= 0 || math.IsInf(f.Scale, 0) || math.IsNaN(f.Scale) {
			return fmt.Errorf("bluefruit: fixed format with scale %v", f.Scale)
		}
		return nil
	default:
		return fmt.Errorf("bluefruit: unknown kind %d", f.Kind)
	}
}

// Max is the largest raw value the format can carry. It doubles as the
// "no value" sentinel.
func (f Format) Max() uint64 {
	if f.Width >= 8 {
		return math.MaxUint64
	}
	return 1<<(8*f.Width) - 1
}

// Sentinel returns the all-bits-set value.
func (f Format) Sentinel() Value {
	return Value{Format: f, Raw: f.Max()}
}

// Encode renders v as the module expects it in AT+GATTCHAR: lowercase hex
// with a 0x prefix.
func (f Format) Encode(v Value) string {
	return "0x" + strconv.FormatUint(v.Raw&f.Max(), 16)
}

// Decode parses the module's rendering of a characteristic value. The module
// prints values as dash-separated hex bytes (e.g. "00-00-01-F4"); plain hex
// with or without a 0x prefix is accepted too.
func (f Format) Decode(text string) (Value, error) {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Value{}, fmt.Errorf("%w: %q", ErrDecode, text)
	}

	raw, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrDecode, text, err)
	}
	if raw > f.Max() {
		return Value{}, fmt.Errorf("%w: %q exceeds %d bytes", ErrDecode, text, f.Width)
	}
	return Value{Format: f, Raw: raw}, nil
}

// FromUint builds a value from an unsigned integer, saturating at Max.
func (f Format) FromUint(u uint64) Value {
	return Value{Format: f, Raw: min(u, f.Max())}
}

// FromFloat builds a value from a real number. KindFixed divides by Scale and
// rounds; the result is clamped to 0..Max.
func (f Format) FromFloat(x float64) Value {
	switch f.Kind {
	case KindFixed:
		x /= f.Scale
	case KindBool:
		if x != 0 {
			x = 1
		}
	case KindUint:
	}
	return Value{Format: f, Raw: clampRaw(math.Round(x), f.Max())}
}

// ParseFloat is FromFloat for values from outside the node. It rejects NaN,
// infinities, negative numbers, and anything that would round to Max, which
// is reserved for the sentinel. Booleans accept only 0 and 1.
func (f Format) ParseFloat(x float64) (Value, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return Value{}, fmt.Errorf("%w: %v", ErrOutOfRange, x)
	}
	raw := x
	switch f.Kind {
	case KindFixed:
		raw = math.Round(x / f.Scale)
	case KindBool:
		if x != 0 && x != 1 {
			return Value{}, fmt.Errorf("%w: %v is not 0 or 1", ErrOutOfRange, x)
		}
	case KindUint:
		raw = math.Round(x)
	}
	if raw >= float64(f.Max()) {
		return Value{}, fmt.Errorf("%w: %v exceeds %v", ErrOutOfRange, x, f.FromUint(f.Max()-1))
	}
	return Value{Format: f, Raw: uint64(raw)}, nil
}

// FromBool builds a value from a boolean.
func (f Format) FromBool(b bool) Value {
	if b {
		return Value{Format: f, Raw: 1}
	}
	return Value{Format: f, Raw: 0}
}

func clampRaw(x float64, limit uint64) uint64 {
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= float64(limit):
		return limit
	default:
		return uint64(x)
	}
}

// Value is a characteristic value together with its format.
type Value struct {
	Format Format
	Raw    uint64
}

// IsSentinel reports whether v is the all-bits-set "no value" marker.
func (v Value) IsSentinel() bool {
	return v.Raw == v.Format.Max()
}

// Uint returns the raw value.
func (v Value) Uint() uint64 {
	return v.Raw
}

// Float returns the value in its natural unit.
func (v Value) Float() float64 {
	switch v.Format.Kind {
	case KindFixed:
		// divide for decimal scales so 300 decilux reads back as exactly 30
		if inv := 1 / v.Format.Scale; inv >= 1 && inv == math.Round(inv) {
			return float64(v.Raw) / inv
		}
		return float64(v.Raw) * v.Format.Scale
	case KindUint, KindBool:
		return float64(v.Raw)
	default:
		return float64(v.Raw)
	}
}

// Bool reports whether the value is non-zero.
func (v Value) Bool() bool {
	return v.Raw != 0
}

func (v Value) String() string {
	switch v.Format.Kind {
	case KindFixed:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindUint:
		return strconv.FormatUint(v.Raw, 10)
	default:
		return "0x" + strconv.FormatUint(v.Raw, 16)
	}
}
