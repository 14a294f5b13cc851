// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node is the sensor node application: the units that sample the
// sensors, drive the LED and pixels, and report over BLE.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/configsync"
	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/internal/scheduler"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// AccelStep is the accelerometer threshold resolution in g.
const AccelStep = 0.0625

// AccelRegister converts a threshold in g to the activity threshold register,
// rounding to the nearest step.
func AccelRegister(g float64) uint8 {
	r := math.Round(g / AccelStep)
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 255:
		return 255
	default:
		return uint8(r)
	}
}

// Periods sets how often each unit runs.
type Periods struct {
	Sample  time.Duration // light and motion sampling
	Report  time.Duration // light and motion reporting
	Sync    time.Duration // config-sync polling
	Battery time.Duration
	Heap    time.Duration
}

// DefaultPeriods returns the firmware's unit periods.
func DefaultPeriods() Periods {
	return Periods{
		Sample:  200 * time.Millisecond,
		Report:  5 * time.Second,
		Sync:    configsync.DefaultPeriod,
		Battery: 30 * time.Second,
		Heap:    10 * time.Second,
	}
}

// Node wires the option store, the BLE module, and the peripherals together.
type Node struct {
	store   *config.Store
	ex      bluefruit.Executor
	hw      Peripherals
	state   *State
	periods Periods
	logger  *slog.Logger
}

// New creates a node.
func New(store *config.Store, ex bluefruit.Executor, hw Peripherals, periods Periods, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	if hw.Memory == nil {
		hw.Memory = RuntimeMemory{}
	}
	return &Node{
		store:   store,
		ex:      ex,
		hw:      hw,
		state:   NewState(),
		periods: periods,
		logger:  logger.With("component", "node"),
	}
}

// State returns the observed state.
func (n *Node) State() *State {
	return n.state
}

// Scheduler returns a scheduler with every unit of the node.
func (n *Node) Scheduler() *scheduler.Scheduler {
	return scheduler.New(n.logger, n.Units()...)
}

// Units returns every unit of the node.
func (n *Node) Units() []scheduler.Unit {
	light := configsync.New(n.LightThresholdPair(), n.store, n.ex, n.logger)
	accel := configsync.New(n.AccelThresholdPair(), n.store, n.ex, n.logger)

	return []scheduler.Unit{
		n.lightSampleUnit(),
		n.lightReportUnit(),
		light.Unit(n.periods.Sync),
		n.motionSampleUnit(),
		n.pixelUnit(),
		n.motionReportUnit(),
		accel.Unit(n.periods.Sync),
		n.batteryUnit(),
		n.heapUnit(),
		n.watchdogUnit(),
	}
}

// LightThresholdPair syncs LIGHT_THRESHOLD.
func (n *Node) LightThresholdPair() configsync.Pair {
	return configsync.Pair{
		Name:   "light",
		Option: config.LightThreshold,
		RD:     gatt.Get(gatt.IdxLightThresholdRD),
		WR:     gatt.Get(gatt.IdxLightThresholdWR),
	}
}

// AccelThresholdPair syncs ACCELERATION_THRESHOLD and reprograms the
// accelerometer on change. The stored value is snapped to the register
// resolution so RD shows what the hardware applies.
func (n *Node) AccelThresholdPair() configsync.Pair {
	return configsync.Pair{
		Name:   "accel",
		Option: config.AccelerationThreshold,
		RD:     gatt.Get(gatt.IdxAccelThresholdRD),
		WR:     gatt.Get(gatt.IdxAccelThresholdWR),
		Canonicalize: func(v config.Value) config.Value {
			return config.Float(float64(AccelRegister(v.Float)) * AccelStep)
		},
		Apply: func(ctx context.Context, v config.Value) error {
			return n.hw.Accel.EnableMotionDetection(AccelRegister(v.Float))
		},
	}
}

func (n *Node) lightSampleUnit() scheduler.Unit {
	led := gatt.Get(gatt.IdxLEDState)
	// The LED's power-on state is unknown, so the first sample always drives it.
	synced := false
	return scheduler.Unit{
		Name:   "light-sample",
		Period: n.periods.Sample,
		Body: func(ctx context.Context) error {
			lux, err := n.hw.Light.Lux()
			if err != nil {
				return fmt.Errorf("read light sensor: %w", err)
			}

			alpha := n.store.Float(config.LightMovingAvg)
			n.state.setLightAverage(alpha*n.state.LightAverage() + (1-alpha)*lux)

			on := lux < n.store.Float(config.LightThreshold)
			if synced && on == n.state.ledOn.Load() {
				return nil
			}
			if err := n.hw.LED.Set(on); err != nil {
				return fmt.Errorf("set LED: %w", err)
			}
			n.state.ledOn.Store(on)
			synced = true
			return led.WriteContext(ctx, n.ex, led.Format.FromBool(on))
		},
	}
}

func (n *Node) lightReportUnit() scheduler.Unit {
	c := gatt.Get(gatt.IdxLight)
	return scheduler.Unit{
		Name:   "light-report",
		Period: n.periods.Report,
		Body: func(ctx context.Context) error {
			avg := n.state.LightAverage()
			n.logger.Info(fmt.Sprintf("light: %.2f lx", avg))
			return c.WriteContext(ctx, n.ex, c.Format.FromFloat(avg))
		},
	}
}

func (n *Node) motionSampleUnit() scheduler.Unit {
	return scheduler.Unit{
		Name:   "motion-sample",
		Period: n.periods.Sample,
		Setup: func(ctx context.Context) error {
			reg := AccelRegister(n.store.Float(config.AccelerationThreshold))
			if err := n.hw.Accel.EnableMotionDetection(reg); err != nil {
				return fmt.Errorf("program accelerometer: %w", err)
			}
			return nil
		},
		Body: func(ctx context.Context) error {
			moved, err := n.hw.Accel.Motion()
			if err != nil {
				return fmt.Errorf("read accelerometer: %w", err)
			}
			if moved {
				n.state.recordActivation(time.Now())
			}
			return nil
		},
	}
}

// pixelUnit flashes the pixels in turn while the last motion event is
// recent, and otherwise waits for the next one.
func (n *Node) pixelUnit() scheduler.Unit {
	return scheduler.Unit{
		Name: "pixels",
		Setup: func(ctx context.Context) error {
			n.hw.Pixels.Fill(0, 0, 0)
			return n.hw.Pixels.Show()
		},
		Body: func(ctx context.Context) error {
			last, ok := n.state.LastActivation()
			flashTime := seconds(n.store.Float(config.NeopixelFlashTime))
			if !ok || time.Since(last) > flashTime {
				select {
				case <-n.state.Activated.C():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			count := n.hw.Pixels.Len()
			for i := 0; i <= count; i++ {
				n.hw.Pixels.Fill(0, 0, 0)
				if i < count {
					br := uint8(min(max(n.store.Int(config.NeopixelBrightness), 0), 255))
					n.hw.Pixels.SetPixel(i, br, br, br)
				}
				if err := n.hw.Pixels.Show(); err != nil {
					return fmt.Errorf("show pixels: %w", err)
				}
				if err := scheduler.Sleep(ctx, seconds(n.store.Float(config.NeopixelFlashSpeed))); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (n *Node) motionReportUnit() scheduler.Unit {
	c := gatt.Get(gatt.IdxMotionCount)
	return scheduler.Unit{
		Name:   "motion-report",
		Period: n.periods.Report,
		Body: func(ctx context.Context) error {
			count := n.state.MotionCount()
			n.logger.Info(fmt.Sprintf("motion: activated %d times", count))
			return c.WriteContext(ctx, n.ex, c.Format.FromUint(uint64(count)))
		},
	}
}

func (n *Node) batteryUnit() scheduler.Unit {
	c := gatt.Get(gatt.IdxBattery)
	return scheduler.Unit{
		Name:   "battery",
		Period: n.periods.Battery,
		Body: func(ctx context.Context) error {
			raw, err := n.hw.Battery.Raw()
			if err != nil {
				return fmt.Errorf("read battery: %w", err)
			}
			v := c.Format.FromUint(uint64(raw))
			n.logger.Debug(fmt.Sprintf("battery: %.2f V", v.Float()))
			return c.WriteContext(ctx, n.ex, v)
		},
	}
}

func (n *Node) heapUnit() scheduler.Unit {
	c := gatt.Get(gatt.IdxHeapFree)
	return scheduler.Unit{
		Name:   "heap",
		Period: n.periods.Heap,
		Body: func(ctx context.Context) error {
			free := n.hw.Memory.Free()
			n.logger.Debug(fmt.Sprintf("heap: %d bytes free", free))
			return c.WriteContext(ctx, n.ex, c.Format.FromUint(free))
		},
	}
}

func (n *Node) watchdogUnit() scheduler.Unit {
	return scheduler.Unit{
		Name:           "watchdog",
		RunImmediately: true,
		PeriodFunc: func() time.Duration {
			return seconds(n.store.Float(config.WatchdogPetInterval))
		},
		Body: func(ctx context.Context) error {
			return n.hw.Watchdog.Feed()
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
