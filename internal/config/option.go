// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the node's runtime options: a fixed table of typed
// options, the live store of their values, and the textual bootstrap format.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedLine is a bootstrap line that is not "name = value".
	ErrMalformedLine = errors.New("malformed configuration line")
	// ErrUnknownOption is a bootstrap line naming an option that does not exist.
	ErrUnknownOption = errors.New("unknown configuration option")
	// ErrInvalidValue is a value that does not parse as the option's kind.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// ID identifies an option. IDs are stable across firmware versions.
type ID uint8

// Kind is the type of an option's value.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is an option value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	default:
		return "<invalid>"
	}
}

// Option describes one configuration option.
type Option struct {
	ID      ID
	Name    string // key in the bootstrap file
	Default Value  // its Kind is the option's kind
	Doc     string
}

// Kind returns the option's value kind.
func (o Option) Kind() Kind {
	return o.Default.Kind
}

// Parse converts bootstrap text to a value of the option's kind.
func (o Option) Parse(text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch o.Kind() {
	case KindInt:
		i, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalidValue, o.Name, text)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidValue, o.Name, text)
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.ToLower(text))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s: %q is not true or false", ErrInvalidValue, o.Name, text)
		}
		return Bool(b), nil
	case KindString:
		return String(text), nil
	default:
		return Value{}, fmt.Errorf("%w: %s has no kind", ErrInvalidValue, o.Name)
	}
}

// Table is the fixed set of options. Option i of the table has ID i+1, so
// lookups by ID are slice indexing.
type Table struct {
	opts   []Option
	byName map[string]ID
}

// NewTable validates opts and builds a table.
func NewTable(opts ...Option) (*Table, error) {
	t := &Table{opts: append([]Option(nil), opts...), byName: make(map[string]ID, len(opts))}
	for i, o := range opts {
		if int(o.ID) != i+1 {
			return nil, fmt.Errorf("config: option %s at position %d has ID %d, want %d", o.Name, i, o.ID, i+1)
		}
		if o.Name == "" || strings.ContainsAny(o.Name, "=# \t") {
			return nil, fmt.Errorf("config: option %d has invalid name %q", o.ID, o.Name)
		}
		if o.Kind() < KindInt || o.Kind() > KindString {
			return nil, fmt.Errorf("config: option %s has no default", o.Name)
		}
		if _, dup := t.byName[o.Name]; dup {
			return nil, fmt.Errorf("config: duplicate option name %s", o.Name)
		}
		t.byName[o.Name] = o.ID
	}
	return t, nil
}

// MustTable is NewTable for static tables.
func MustTable(opts ...Option) *Table {
	t, err := NewTable(opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Option returns the option with the given ID. An unknown ID is a
// programming error and panics.
func (t *Table) Option(id ID) Option {
	if id < 1 || int(id) > len(t.opts) {
		panic(fmt.Sprintf("config: unknown option ID %d", id))
	}
	return t.opts[id-1]
}

// Lookup finds an option by name.
func (t *Table) Lookup(name string) (Option, bool) {
	id, ok := t.byName[name]
	if !ok {
		return Option{}, false
	}
	return t.opts[id-1], true
}

// Options returns every option in ID order.
func (t *Table) Options() []Option {
	return append([]Option(nil), t.opts...)
}
