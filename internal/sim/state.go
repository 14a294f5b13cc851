// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// DefaultDeviceName is the GAP name after a factory reset.
const DefaultDeviceName = "Adafruit Bluefruit LE"

// Attribute is one characteristic in the module's nonvolatile GATT table.
type Attribute struct {
	UUID       uint16 `cbor:"1,keyasint"`
	Properties uint8  `cbor:"2,keyasint"`
	MinLen     int    `cbor:"3,keyasint"`
	MaxLen     int    `cbor:"4,keyasint"`
	Value      []byte `cbor:"5,keyasint"`
}

// Readable reports whether a central may read the attribute.
func (a Attribute) Readable() bool { return a.Properties&0x02 != 0 }

// Writable reports whether a central may write the attribute.
func (a Attribute) Writable() bool { return a.Properties&0x0C != 0 }

// State is what the module keeps across resets.
type State struct {
	DeviceName string      `cbor:"1,keyasint"`
	Service    []byte      `cbor:"2,keyasint,omitempty"` // 128-bit UUID, nil if none
	Attributes []Attribute `cbor:"3,keyasint"`
}

func factoryState() State {
	return State{DeviceName: DefaultDeviceName}
}

func (s State) clone() State {
	c := State{DeviceName: s.DeviceName, Service: bytes.Clone(s.Service)}
	for _, a := range s.Attributes {
		a.Value = bytes.Clone(a.Value)
		c.Attributes = append(c.Attributes, a)
	}
	return c
}

// Save writes the nonvolatile table as CBOR.
func (d *Device) Save(w io.Writer) error {
	d.mu.Lock()
	st := d.state.clone()
	d.mu.Unlock()

	data, err := cbor.Marshal(st)
	if err != nil {
		return fmt.Errorf("sim: encode state: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Load replaces the nonvolatile table with one written by Save.
func (d *Device) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var st State
	if err := cbor.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("sim: decode state: %w", err)
	}

	d.mu.Lock()
	d.state = st
	d.mu.Unlock()
	return nil
}

// SaveFile writes the nonvolatile table to path.
func (d *Device) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := d.Save(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadFile loads the nonvolatile table from path. A missing file leaves the
// factory state in place.
func (d *Device) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return d.Load(f)
}
