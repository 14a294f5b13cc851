// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bluefruit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Access is the host's view of a characteristic.
type Access uint8

const (
	// ReadOnly characteristics are written by the node and read by the host.
	ReadOnly Access = iota + 1
	// WriteOnly characteristics are written by the host (without response)
	// and read by the node.
	WriteOnly
)

// properties returns the GATT properties bitmap for AT+GATTADDCHAR.
func (a Access) properties() string {
	switch a {
	case ReadOnly:
		return "0x02"
	case WriteOnly:
		return "0x04"
	default:
		return "0x00"
	}
}

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Characteristic is one entry of the module's GATT table. Index is the slot
// the module assigns when the characteristic is added; it is persisted on
// the module and must never change between firmware versions.
type Characteristic struct {
	Index   int
	UUID    uint16
	Name    string
	Access  Access
	Format  Format
	Unit    string
	Default uint64 // raw
}

// DefaultValue returns the raw default wrapped in the characteristic's format.
func (c Characteristic) DefaultValue() Value {
	return c.Format.FromUint(c.Default)
}

func (c Characteristic) String() string {
	return fmt.Sprintf("#%d %s (0x%04X)", c.Index, c.Name, c.UUID)
}

// Read fetches the current value, blocking until the link is free.
func (c Characteristic) Read(ex Executor) (Value, error) {
	return c.ReadContext(context.Background(), ex)
}

// ReadContext fetches the current value.
func (c Characteristic) ReadContext(ctx context.Context, ex Executor) (Value, error) {
	resp, err := ex.ExecuteOKContext(ctx, "AT+GATTCHAR="+strconv.Itoa(c.Index), 0)
	if err != nil {
		return Value{}, err
	}
	v, err := c.Format.Decode(string(resp))
	if err != nil {
		return Value{}, fmt.Errorf("characteristic %s: %w", c, err)
	}
	return v, nil
}

// Write stores v, blocking until the link is free.
func (c Characteristic) Write(ex Executor, v Value) error {
	return c.WriteContext(context.Background(), ex, v)
}

// WriteContext stores v.
func (c Characteristic) WriteContext(ctx context.Context, ex Executor, v Value) error {
	_, err := ex.ExecuteOKContext(ctx, c.writeCommand(v), 0)
	return err
}

func (c Characteristic) writeCommand(v Value) string {
	return "AT+GATTCHAR=" + strconv.Itoa(c.Index) + "," + c.Format.Encode(v)
}

// Add creates the characteristic on the module. The module answers with the
// index it assigned, which has to match Index.
func (c Characteristic) Add(ctx context.Context, ex Executor) error {
	width := strconv.Itoa(c.Format.Width)
	cmd := fmt.Sprintf("AT+GATTADDCHAR=UUID=0x%04X,PROPERTIES=%s,MIN_LEN=%s,MAX_LEN=%s,VALUE=%s",
		c.UUID, c.Access.properties(), width, width, c.Format.Encode(c.DefaultValue()))

	resp, err := ex.ExecuteOKContext(ctx, cmd, 0)
	if err != nil {
		return err
	}

	got, err := strconv.Atoi(strings.TrimSpace(string(resp)))
	if err != nil {
		return fmt.Errorf("%w: characteristic %s: module answered %q", ErrIndexMismatch, c, resp)
	}
	if got != c.Index {
		return fmt.Errorf("%w: characteristic %s: module assigned index %d", ErrIndexMismatch, c, got)
	}
	return nil
}
