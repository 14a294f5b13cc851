// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// Errors
var (
	ErrNotFound    = errors.New("hostble: node not found")
	ErrNoAttribute = errors.New("hostble: attribute not discovered")
	ErrNotReadable = errors.New("hostble: attribute is not readable")
	ErrNotWritable = errors.New("hostble: attribute is not writable")
	ErrShortValue  = errors.New("hostble: value shorter than its width")
)

// Reading is one attribute value as seen by the host.
type Reading struct {
	Characteristic bluefruit.Characteristic
	Value          bluefruit.Value
}

// String renders the value with its unit, or "unset" for the sentinel.
func (r Reading) String() string {
	if r.Value.IsSentinel() {
		return "unset"
	}
	if r.Characteristic.Unit == "" {
		return r.Value.String()
	}
	return r.Value.String() + " " + r.Characteristic.Unit
}

// Client reads and writes a connected node's attributes.
type Client struct {
	conn   Connection
	reg    *bluefruit.Registry
	chars  map[uint16]Characteristic
	logger *slog.Logger
}

// Dial scans for the node by name, connects, and discovers its service.
func Dial(ctx context.Context, adapter Adapter, name string, service uuid.UUID, reg *bluefruit.Registry, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hostble")

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	logger.Info("scanning for node", "name", name)
	dev, err := adapter.Scan(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("scan for %q: %w", name, err)
	}
	logger.Debug("found node", "address", dev.Address, "rssi", dev.RSSI)

	conn, err := adapter.Connect(ctx, dev.Address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", dev.Address, err)
	}
	chars, err := conn.Characteristics(service)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("discover service %s: %w", service, err)
	}
	logger.Info("connected to node", "address", dev.Address, "characteristics", len(chars))

	return &Client{conn: conn, reg: reg, chars: chars, logger: logger}, nil
}

// Close disconnects.
func (c *Client) Close() error {
	return c.conn.Disconnect()
}

func (c *Client) lookup(ch bluefruit.Characteristic) (Characteristic, error) {
	remote, ok := c.chars[ch.UUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAttribute, ch)
	}
	return remote, nil
}

// Read reads a characteristic the node publishes.
func (c *Client) Read(ch bluefruit.Characteristic) (Reading, error) {
	if ch.Access != bluefruit.ReadOnly {
		return Reading{}, fmt.Errorf("%w: %s", ErrNotReadable, ch)
	}
	remote, err := c.lookup(ch)
	if err != nil {
		return Reading{}, err
	}

	buf := make([]byte, 8)
	n, err := remote.Read(buf)
	if err != nil {
		return Reading{}, fmt.Errorf("read %s: %w", ch, err)
	}
	v, err := DecodeBytes(ch.Format, buf[:n])
	if err != nil {
		return Reading{}, fmt.Errorf("read %s: %w", ch, err)
	}
	c.logger.Debug("read attribute", "name", ch.Name, "raw", v.Raw)
	return Reading{Characteristic: ch, Value: v}, nil
}

// ReadAll reads every readable characteristic in registry order.
func (c *Client) ReadAll() ([]Reading, error) {
	var out []Reading
	for _, ch := range c.reg.All() {
		if ch.Access != bluefruit.ReadOnly {
			continue
		}
		r, err := c.Read(ch)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Write writes a characteristic the node polls.
func (c *Client) Write(ch bluefruit.Characteristic, v bluefruit.Value) error {
	if ch.Access != bluefruit.WriteOnly {
		return fmt.Errorf("%w: %s", ErrNotWritable, ch)
	}
	remote, err := c.lookup(ch)
	if err != nil {
		return err
	}
	if err := remote.Write(EncodeBytes(ch.Format, v)); err != nil {
		return fmt.Errorf("write %s: %w", ch, err)
	}
	c.logger.Debug("wrote attribute", "name", ch.Name, "raw", v.Raw)
	return nil
}

// EncodeBytes renders a value as the module stores it: big-endian, padded
// to the format's width.
func EncodeBytes(f bluefruit.Format, v bluefruit.Value) []byte {
	b := make([]byte, f.Width)
	raw := v.Raw
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(raw)
		raw >>= 8
	}
	return b
}

// DecodeBytes parses a stored value. Bytes beyond the width are ignored.
func DecodeBytes(f bluefruit.Format, b []byte) (bluefruit.Value, error) {
	if len(b) < f.Width {
		return bluefruit.Value{}, fmt.Errorf("%w: %d of %d bytes", ErrShortValue, len(b), f.Width)
	}
	var raw uint64
	for _, x := range b[:f.Width] {
		raw = raw<<8 | uint64(x)
	}
	return bluefruit.Value{Format: f, Raw: raw}, nil
}
