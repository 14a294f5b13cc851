// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bluefruit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultResetSettle is how long the module needs after AT+FACTORYRESET and
// ATZ.
const DefaultResetSettle = time.Second

// Registry is the fixed, ordered table of characteristics. The module assigns
// indices sequentially from 1 as characteristics are added, so entry i of the
// table must declare index i+1.
type Registry struct {
	chars []Characteristic
}

// NewRegistry validates chars and builds a registry.
func NewRegistry(chars ...Characteristic) (*Registry, error) {
	seen := make(map[uint16]int, len(chars))
	for i, c := range chars {
		if c.Index != i+1 {
			return nil, fmt.Errorf("bluefruit: characteristic %s at position %d, want index %d", c, i, i+1)
		}
		if err := c.Format.Validate(); err != nil {
			return nil, fmt.Errorf("characteristic %s: %w", c, err)
		}
		if c.Access != ReadOnly && c.Access != WriteOnly {
			return nil, fmt.Errorf("bluefruit: characteristic %s: invalid access %s", c, c.Access)
		}
		if c.Default > c.Format.Max() {
			return nil, fmt.Errorf("bluefruit: characteristic %s: default 0x%x exceeds width", c, c.Default)
		}
		if prev, dup := seen[c.UUID]; dup {
			return nil, fmt.Errorf("bluefruit: characteristic %s reuses the UUID of #%d", c, prev)
		}
		seen[c.UUID] = c.Index
	}
	return &Registry{chars: append([]Characteristic(nil), chars...)}, nil
}

// MustRegistry is NewRegistry for static tables; it panics on an invalid table.
func MustRegistry(chars ...Characteristic) *Registry {
	r, err := NewRegistry(chars...)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of characteristics.
func (r *Registry) Len() int {
	return len(r.chars)
}

// All returns the characteristics in index order.
func (r *Registry) All() []Characteristic {
	return append([]Characteristic(nil), r.chars...)
}

// Get returns the characteristic with the given index.
func (r *Registry) Get(index int) (Characteristic, bool) {
	if index < 1 || index > len(r.chars) {
		return Characteristic{}, false
	}
	return r.chars[index-1], true
}

// ByUUID returns the characteristic with the given 16-bit UUID.
func (r *Registry) ByUUID(u uint16) (Characteristic, bool) {
	for _, c := range r.chars {
		if c.UUID == u {
			return c, true
		}
	}
	return Characteristic{}, false
}

// Provisioning describes what a factory reset programs into the module.
type Provisioning struct {
	DeviceName string
	Service    uuid.UUID
	Settle     time.Duration // after AT+FACTORYRESET and each ATZ
}

// FactoryReset wipes the module and recreates the GATT service with every
// characteristic in registry order. It aborts on the first failure; an index
// mismatch leaves the module half-provisioned and must be treated as fatal.
func (r *Registry) FactoryReset(ctx context.Context, ex Executor, p Provisioning, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("resetting BLE module")

	if _, err := ex.ExecuteOKContext(ctx, "AT+FACTORYRESET", p.Settle); err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	logger.Debug("factory reset device")

	if _, err := ex.ExecuteOKContext(ctx, "AT+GAPDEVNAME="+p.DeviceName, 0); err != nil {
		return fmt.Errorf("set device name: %w", err)
	}
	if _, err := ex.ExecuteOKContext(ctx, "ATZ", p.Settle); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	logger.Debug("set device name", "name", p.DeviceName)

	if _, err := ex.ExecuteOKContext(ctx, "AT+GATTADDSERVICE=UUID128="+FormatUUID128(p.Service), 0); err != nil {
		return fmt.Errorf("add service: %w", err)
	}
	logger.Debug("added service", "uuid", p.Service)

	for _, c := range r.chars {
		if err := c.Add(ctx, ex); err != nil {
			return err
		}
		logger.Debug("added characteristic", "index", c.Index, "name", c.Name)
	}

	if _, err := ex.ExecuteOKContext(ctx, "ATZ", p.Settle); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	logger.Info("BLE module provisioned", "characteristics", len(r.chars))
	return nil
}

// WriteDefaults sets every characteristic to its default value.
func (r *Registry) WriteDefaults(ctx context.Context, ex Executor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range r.chars {
		if err := c.WriteContext(ctx, ex, c.DefaultValue()); err != nil {
			return fmt.Errorf("characteristic %s: %w", c, err)
		}
		logger.Debug("set initial value", "index", c.Index, "value", c.DefaultValue())
	}
	return nil
}
