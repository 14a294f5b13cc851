// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostble

import (
	"context"

	"github.com/google/uuid"

	"github.com/Thermoquad/lumen/internal/sim"
)

// SimAdapter connects to a simulated module as a central would.
type SimAdapter struct {
	dev *sim.Device
}

// NewSimAdapter returns an adapter that sees only dev.
func NewSimAdapter(dev *sim.Device) *SimAdapter {
	return &SimAdapter{dev: dev}
}

// Enable implements Adapter.
func (a *SimAdapter) Enable() error { return nil }

// Scan implements Adapter.
func (a *SimAdapter) Scan(ctx context.Context, name string) (Device, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}
	if a.dev.State().DeviceName != name {
		return Device{}, ErrNotFound
	}
	return Device{Name: name, Address: "sim"}, nil
}

// Connect implements Adapter.
func (a *SimAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.dev.SetConnected(true)
	return simConnection{dev: a.dev}, nil
}

var _ Adapter = (*SimAdapter)(nil)

type simConnection struct {
	dev *sim.Device
}

func (c simConnection) Characteristics(service uuid.UUID) (map[uint16]Characteristic, error) {
	st := c.dev.State()
	if u, err := uuid.FromBytes(st.Service); err != nil || u != service {
		return nil, ErrNotFound
	}
	out := make(map[uint16]Characteristic, len(st.Attributes))
	for _, a := range st.Attributes {
		out[a.UUID] = simCharacteristic{dev: c.dev, uuid: a.UUID}
	}
	return out, nil
}

func (c simConnection) Disconnect() error {
	c.dev.SetConnected(false)
	return nil
}

type simCharacteristic struct {
	dev  *sim.Device
	uuid uint16
}

func (c simCharacteristic) Read(buf []byte) (int, error) {
	b, err := c.dev.HostRead(c.uuid)
	if err != nil {
		return 0, err
	}
	return copy(buf, b), nil
}

func (c simCharacteristic) Write(data []byte) error {
	return c.dev.HostWrite(c.uuid, data)
}
