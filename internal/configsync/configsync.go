// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package configsync lets a BLE central change node options through a pair
// of characteristics.
//
// The central writes the WR characteristic and reads RD. The node is the only
// writer of RD and of the option store, and the central the only writer of
// WR, so neither side can overwrite the other's update. WR holds the
// all-bits-set sentinel until the central writes it. RD always reflects the
// last value the node accepted.
package configsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/scheduler"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// DefaultPeriod is how often the WR characteristic is polled.
const DefaultPeriod = 30 * time.Second

// Pair binds an option to its RD/WR characteristics.
type Pair struct {
	Name   string
	Option config.ID
	RD     bluefruit.Characteristic
	WR     bluefruit.Characteristic

	// Canonicalize maps a received value onto what the node can actually
	// apply. Optional.
	Canonicalize func(config.Value) config.Value
	// Apply pushes an accepted value to the hardware it governs. Optional.
	Apply func(ctx context.Context, v config.Value) error
}

// Syncer runs the handshake for one pair.
type Syncer struct {
	pair   Pair
	store  *config.Store
	ex     bluefruit.Executor
	logger *slog.Logger
}

// New creates a syncer.
func New(pair Pair, store *config.Store, ex bluefruit.Executor, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		pair:   pair,
		store:  store,
		ex:     ex,
		logger: logger.With("component", "configsync", "option", pair.Name),
	}
}

// Unit returns the scheduler unit for the pair: publish once, then poll WR
// every period.
func (s *Syncer) Unit(period time.Duration) scheduler.Unit {
	return scheduler.Unit{
		Name:   s.pair.Name + "-config",
		Period: period,
		Setup:  s.Publish,
		Body:   s.Poll,
	}
}

// Publish writes the store's current value to RD. A stored value the pair
// would canonicalize differently, such as one loaded from a bootstrap file,
// is snapped first so RD and the store agree.
func (s *Syncer) Publish(ctx context.Context) error {
	v := s.store.Get(s.pair.Option)
	if s.pair.Canonicalize != nil {
		if c := s.pair.Canonicalize(v); c != v {
			s.store.Set(s.pair.Option, c)
			s.logger.Info("canonicalized stored value", "from", v, "to", c)
			v = c
		}
	}
	if err := s.pair.RD.WriteContext(ctx, s.ex, toWire(s.pair.RD.Format, v)); err != nil {
		return fmt.Errorf("publish %s: %w", s.pair.Name, err)
	}
	return nil
}

// Poll reads WR once and accepts a pending change.
func (s *Syncer) Poll(ctx context.Context) error {
	wire, err := s.pair.WR.ReadContext(ctx, s.ex)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.pair.Name, err)
	}
	s.logger.Debug("read configuration", "raw", fmt.Sprintf("0x%04x", wire.Raw))
	if wire.IsSentinel() {
		return nil
	}

	cur := s.store.Get(s.pair.Option)
	next := fromWire(wire, cur.Kind)
	if s.pair.Canonicalize != nil {
		next = s.pair.Canonicalize(next)
	}
	if next == cur {
		return nil
	}

	s.store.Set(s.pair.Option, next)
	if err := s.Publish(ctx); err != nil {
		return err
	}
	if s.pair.Apply != nil {
		if err := s.pair.Apply(ctx, next); err != nil {
			return fmt.Errorf("apply %s: %w", s.pair.Name, err)
		}
	}
	s.logger.Info("configuration changed", "from", cur, "to", next)
	return nil
}

// toWire converts an option value to a characteristic value.
func toWire(f bluefruit.Format, v config.Value) bluefruit.Value {
	switch v.Kind {
	case config.KindFloat:
		return f.FromFloat(v.Float)
	case config.KindInt:
		if v.Int < 0 {
			return f.FromUint(0)
		}
		return f.FromUint(uint64(v.Int))
	case config.KindBool:
		return f.FromBool(v.Bool)
	default:
		panic(fmt.Sprintf("configsync: cannot carry %s options", v.Kind))
	}
}

// fromWire converts a characteristic value to an option value of kind k.
func fromWire(w bluefruit.Value, k config.Kind) config.Value {
	switch k {
	case config.KindFloat:
		return config.Float(w.Float())
	case config.KindInt:
		return config.Int(int64(w.Uint()))
	case config.KindBool:
		return config.Bool(w.Bool())
	default:
		panic(fmt.Sprintf("configsync: cannot carry %s options", k))
	}
}
