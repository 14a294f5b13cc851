// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim simulates a Bluefruit LE SPI Friend and the node's sensors so
// the firmware stack can run without hardware.
package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Thermoquad/lumen/pkg/sdep"
)

// ErrNoFrame is returned by ReadFrame when no response is pending.
var ErrNoFrame = errors.New("sim: no frame pending")

// maxLoggedFrames bounds the frame log of a long-running simulator.
const maxLoggedFrames = 4096

// Device is an in-memory SPI Friend. It implements sdep.Link and
// sdep.Resetter, and offers a central's view of the GATT table through
// HostRead and HostWrite.
type Device struct {
	mu     sync.Mutex
	logger *slog.Logger

	state     State
	connected bool

	cmd     []byte   // command being reassembled
	pending [][]byte // encoded response frames
	log     []sdep.Frame
}

// NewDevice creates a simulated module in its factory state.
func NewDevice(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		logger: logger.With("component", "sim"),
		state:  factoryState(),
	}
}

// WriteFrame implements sdep.Link. Host frames carry a little-endian opcode.
func (d *Device) WriteFrame(frame []byte) error {
	f, err := sdep.DecodeCommandFrame(frame)
	if err != nil {
		return err
	}
	f.Payload = bytes.Clone(f.Payload)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, f)
	if len(d.log) > maxLoggedFrames {
		d.log = d.log[len(d.log)-maxLoggedFrames:]
	}

	if f.Type != sdep.MsgCommand {
		d.queueError(f.Opcode)
		return nil
	}

	switch f.Opcode {
	case sdep.OpInitialize:
		d.cmd = d.cmd[:0]
		d.pending = nil
		d.logger.Debug("sdep initialize")
	case sdep.OpATCommand:
		d.cmd = append(d.cmd, f.Payload...)
		if f.More {
			return nil
		}
		line := string(d.cmd)
		d.cmd = d.cmd[:0]
		resp, ok := d.execute(line)
		if !ok {
			d.queueError(f.Opcode)
			return nil
		}
		d.queueResponse(resp)
	default:
		d.queueError(f.Opcode)
	}
	return nil
}

// ReadFrame implements sdep.Link. Device frames carry a big-endian opcode.
func (d *Device) ReadFrame(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return ErrNoFrame
	}
	copy(buf, d.pending[0])
	d.pending = d.pending[1:]
	return nil
}

// Ready implements sdep.Link: the IRQ line is high while responses are queued.
func (d *Device) Ready() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0, nil
}

// Reset implements sdep.Resetter.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmd = d.cmd[:0]
	d.pending = nil
	d.connected = false
	return nil
}

// Frames returns the frames the host has written, oldest first. Only the
// most recent frames are kept.
func (d *Device) Frames() []sdep.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sdep.Frame(nil), d.log...)
}

// ClearFrames empties the frame log.
func (d *Device) ClearFrames() {
	d.mu.Lock()
	d.log = nil
	d.mu.Unlock()
}

func (d *Device) queueResponse(payload []byte) {
	for {
		n := min(len(payload), sdep.MaxPayloadSize)
		more := n < len(payload)
		d.pending = append(d.pending, deviceFrame(sdep.MsgResponse, sdep.OpATCommand, more, payload[:n]))
		payload = payload[n:]
		if !more {
			return
		}
	}
}

func (d *Device) queueError(opcode uint16) {
	d.pending = append(d.pending, deviceFrame(sdep.MsgError, opcode, false, nil))
}

func deviceFrame(msgType uint8, opcode uint16, more bool, payload []byte) []byte {
	buf := make([]byte, sdep.FrameSize)
	buf[0] = msgType
	binary.BigEndian.PutUint16(buf[1:3], opcode)
	buf[3] = byte(len(payload))
	if more {
		buf[3] |= sdep.MoreFlag
	}
	copy(buf[sdep.HeaderSize:], payload)
	return buf
}

// SetConnected simulates a central connecting or disconnecting.
func (d *Device) SetConnected(connected bool) {
	d.mu.Lock()
	d.connected = connected
	d.mu.Unlock()
}

// State returns a copy of the nonvolatile table.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.clone()
}

// HostRead reads an attribute the way a connected central would.
func (d *Device) HostRead(uuid uint16) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.attribute(uuid)
	if err != nil {
		return nil, err
	}
	if !a.Readable() {
		return nil, fmt.Errorf("sim: attribute 0x%04X is not readable", uuid)
	}
	return append([]byte(nil), a.Value...), nil
}

// HostWrite writes an attribute the way a connected central would.
func (d *Device) HostWrite(uuid uint16, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, err := d.attribute(uuid)
	if err != nil {
		return err
	}
	if !a.Writable() {
		return fmt.Errorf("sim: attribute 0x%04X is not writable", uuid)
	}
	if len(value) < a.MinLen || len(value) > a.MaxLen {
		return fmt.Errorf("sim: attribute 0x%04X takes %d..%d bytes, got %d", uuid, a.MinLen, a.MaxLen, len(value))
	}
	a.Value = append(a.Value[:0], value...)
	return nil
}

func (d *Device) attribute(uuid uint16) (*Attribute, error) {
	for i := range d.state.Attributes {
		if d.state.Attributes[i].UUID == uuid {
			return &d.state.Attributes[i], nil
		}
	}
	return nil, fmt.Errorf("sim: no attribute 0x%04X", uuid)
}
