// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// LightSensor is an ambient light sensor whose reading is set by the test or
// the simulator's scene.
type LightSensor struct {
	bits atomic.Uint64
}

// NewLightSensor returns a sensor reading lux.
func NewLightSensor(lux float64) *LightSensor {
	s := &LightSensor{}
	s.Set(lux)
	return s
}

// Set changes the reading.
func (s *LightSensor) Set(lux float64) { s.bits.Store(math.Float64bits(lux)) }

// Lux returns the current reading.
func (s *LightSensor) Lux() (float64, error) { return math.Float64frombits(s.bits.Load()), nil }

// Accelerometer latches a motion event until it is polled, like the
// ADXL343's activity interrupt.
type Accelerometer struct {
	threshold atomic.Uint32
	enabled   atomic.Bool
	motion    atomic.Bool
}

// EnableMotionDetection programs the activity threshold register (62.5 mg
// per unit).
func (a *Accelerometer) EnableMotionDetection(threshold uint8) error {
	a.threshold.Store(uint32(threshold))
	a.enabled.Store(true)
	return nil
}

// Threshold returns the programmed register value.
func (a *Accelerometer) Threshold() uint8 { return uint8(a.threshold.Load()) }

// Shake simulates an acceleration of g. It latches an event if it exceeds
// the programmed threshold.
func (a *Accelerometer) Shake(g float64) {
	if a.enabled.Load() && g > float64(a.Threshold())*0.0625 {
		a.motion.Store(true)
	}
}

// Motion reports and clears the latched event.
func (a *Accelerometer) Motion() (bool, error) { return a.motion.Swap(false), nil }

// Battery is a battery voltage divider on a 16-bit ADC.
type Battery struct {
	raw atomic.Uint32
}

// NewBattery returns a battery at volts (after the 2:1 divider is undone).
func NewBattery(volts float64) *Battery {
	b := &Battery{}
	b.SetVolts(volts)
	return b
}

// SetVolts changes the simulated cell voltage.
func (b *Battery) SetVolts(v float64) {
	raw := math.Round(v / 2 / 3.3 * 65535)
	b.raw.Store(uint32(max(0, min(raw, 65535))))
}

// Raw returns the ADC reading.
func (b *Battery) Raw() (uint16, error) { return uint16(b.raw.Load()), nil }

// LED records its state.
type LED struct {
	on      atomic.Bool
	changes atomic.Uint64
}

// Set switches the LED.
func (l *LED) Set(on bool) error {
	if l.on.Swap(on) != on {
		l.changes.Add(1)
	}
	return nil
}

// On reports the LED state.
func (l *LED) On() bool { return l.on.Load() }

// Changes counts state transitions.
func (l *LED) Changes() uint64 { return l.changes.Load() }

// Pixels is an addressable RGB strip that records every frame shown.
type Pixels struct {
	mu    sync.Mutex
	buf   [][3]uint8
	shown [][][3]uint8
	keep  int
}

// NewPixels returns a strip of n pixels that remembers the last keep frames.
func NewPixels(n, keep int) *Pixels {
	return &Pixels{buf: make([][3]uint8, n), keep: keep}
}

// Len returns the number of pixels.
func (p *Pixels) Len() int { return len(p.buf) }

// Fill sets every pixel.
func (p *Pixels) Fill(r, g, b uint8) {
	p.mu.Lock()
	for i := range p.buf {
		p.buf[i] = [3]uint8{r, g, b}
	}
	p.mu.Unlock()
}

// SetPixel sets pixel i.
func (p *Pixels) SetPixel(i int, r, g, b uint8) {
	p.mu.Lock()
	if i >= 0 && i < len(p.buf) {
		p.buf[i] = [3]uint8{r, g, b}
	}
	p.mu.Unlock()
}

// Show latches the buffer.
func (p *Pixels) Show() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, append([][3]uint8(nil), p.buf...))
	if p.keep > 0 && len(p.shown) > p.keep {
		p.shown = p.shown[len(p.shown)-p.keep:]
	}
	return nil
}

// Shown returns the recorded frames, oldest first.
func (p *Pixels) Shown() [][][3]uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][][3]uint8(nil), p.shown...)
}

// Watchdog counts feeds.
type Watchdog struct {
	timeout atomic.Int64
	feeds   atomic.Uint64
}

// Arm starts the watchdog.
func (w *Watchdog) Arm(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("watchdog timeout %v must be positive", timeout)
	}
	w.timeout.Store(int64(timeout))
	return nil
}

// Timeout returns the armed timeout, or 0 if unarmed.
func (w *Watchdog) Timeout() time.Duration { return time.Duration(w.timeout.Load()) }

// Feed pets the watchdog.
func (w *Watchdog) Feed() error {
	w.feeds.Add(1)
	return nil
}

// Feeds returns how many times the watchdog was fed.
func (w *Watchdog) Feeds() uint64 { return w.feeds.Load() }
