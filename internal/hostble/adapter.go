// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hostble is the host side of the node's BLE service: it finds the
// node by name, reads its attributes and scales them, and writes the config
// intake characteristics.
package hostble

import (
	"context"

	"github.com/google/uuid"
)

// Characteristic is a discovered GATT characteristic.
type Characteristic interface {
	// Read reads the value into buf and returns its length.
	Read(buf []byte) (int, error)
	// Write writes the value without response.
	Write(data []byte) error
}

// Device is a discovered peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection is a connected peripheral.
type Connection interface {
	// Characteristics discovers every characteristic of the service, keyed
	// by 16-bit UUID.
	Characteristics(service uuid.UUID) (map[uint16]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE adapter for testing.
type Adapter interface {
	// Enable powers on the adapter.
	Enable() error
	// Scan reports peripherals advertising the local name until ctx is done
	// or the first one is found.
	Scan(ctx context.Context, name string) (Device, error)
	// Connect connects to the peripheral at address.
	Connect(ctx context.Context, address string) (Connection, error)
}
