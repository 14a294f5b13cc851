// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostble

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter is an Adapter on the host's Bluetooth stack through
// tinygo-org/bluetooth.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	mu    sync.Mutex
	found map[string]bluetooth.Address
}

// NewTinyGoAdapter returns the default adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter: bluetooth.DefaultAdapter,
		found:   make(map[string]bluetooth.Address),
	}
}

// Enable implements Adapter.
func (a *TinyGoAdapter) Enable() error {
	return a.adapter.Enable()
}

// Scan implements Adapter.
func (a *TinyGoAdapter) Scan(ctx context.Context, name string) (Device, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	var (
		dev   Device
		found bool
	)
	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if found || result.LocalName() != name {
			return
		}
		found = true
		dev = Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		}
		a.mu.Lock()
		a.found[dev.Address] = result.Address
		a.mu.Unlock()
		adapter.StopScan()
	})
	if err != nil && ctx.Err() == nil {
		return Device{}, fmt.Errorf("scan: %w", err)
	}
	if !found {
		return Device{}, ErrNotFound
	}
	return dev, nil
}

// Connect implements Adapter.
func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	a.mu.Lock()
	addr, ok := a.found[address]
	a.mu.Unlock()
	if !ok {
		addr.Set(address)
	}

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &tinyGoConnection{device: r.device}, nil
	}
}

var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device
}

func (c *tinyGoConnection) Characteristics(service uuid.UUID) (map[uint16]Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(service.String())
	if err != nil {
		return nil, err
	}
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, err
	}
	if len(svcs) == 0 {
		return nil, ErrNotFound
	}
	chars, err := svcs[0].DiscoverCharacteristics(nil)
	if err != nil {
		return nil, err
	}

	out := make(map[uint16]Characteristic, len(chars))
	for i := range chars {
		u := chars[i].UUID()
		if !u.Is16Bit() {
			continue
		}
		out[u.Get16Bit()] = tinyGoCharacteristic{char: chars[i]}
	}
	return out, nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

// deviceCharacteristic is the part of bluetooth.DeviceCharacteristic the
// client uses.
type deviceCharacteristic interface {
	Read(data []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
}

type tinyGoCharacteristic struct {
	char deviceCharacteristic
}

func (c tinyGoCharacteristic) Read(buf []byte) (int, error) {
	return c.char.Read(buf)
}

// Write implements Characteristic. Intake attributes are provisioned
// write-without-response.
func (c tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
