// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package spilink drives a Bluefruit SPI Friend over a Linux SPI port and
// two GPIO lines through periph.io.
package spilink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/Thermoquad/lumen/pkg/sdep"
)

// Reset pulse timing
const (
	DefaultResetPulse  = 10 * time.Millisecond
	DefaultResetSettle = 500 * time.Millisecond
)

// ErrNoPin is returned when a GPIO name does not resolve.
var ErrNoPin = errors.New("spilink: no such GPIO")

// Config selects the SPI port and GPIO lines.
type Config struct {
	Device   string // spireg name, "" for the first port
	IRQ      string // data-ready input
	Reset    string // active-low reset output, "" if not wired
	SpeedKHz int
}

// Link is an sdep.Link and sdep.Resetter on real hardware.
type Link struct {
	mu    sync.Mutex
	conn  spi.Conn
	irq   gpio.PinIn
	rst   gpio.PinOut
	port  spi.PortCloser
	pulse time.Duration
	wait  time.Duration
	zero  [sdep.FrameSize]byte
}

// Open initializes the host drivers, opens the port, and pulses reset.
func Open(cfg Config) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize host drivers: %w", err)
	}

	port, err := spireg.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", cfg.Device, err)
	}
	speed := cfg.SpeedKHz
	if speed <= 0 {
		speed = 4000
	}
	c, err := port.Connect(physic.Frequency(speed)*physic.KiloHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI port %q: %w", cfg.Device, err)
	}

	irq := gpioreg.ByName(cfg.IRQ)
	if irq == nil {
		port.Close()
		return nil, fmt.Errorf("%w: IRQ %q", ErrNoPin, cfg.IRQ)
	}
	var rst gpio.PinOut
	if cfg.Reset != "" {
		p := gpioreg.ByName(cfg.Reset)
		if p == nil {
			port.Close()
			return nil, fmt.Errorf("%w: reset %q", ErrNoPin, cfg.Reset)
		}
		rst = p
	}

	l, err := New(c, irq, rst)
	if err != nil {
		port.Close()
		return nil, err
	}
	l.port = port
	if err := l.Reset(); err != nil {
		port.Close()
		return nil, err
	}
	return l, nil
}

// New builds a link over an already connected port. rst may be nil.
func New(c spi.Conn, irq gpio.PinIn, rst gpio.PinOut) (*Link, error) {
	if err := irq.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure IRQ %s: %w", irq, err)
	}
	return &Link{
		conn:  c,
		irq:   irq,
		rst:   rst,
		pulse: DefaultResetPulse,
		wait:  DefaultResetSettle,
	}, nil
}

// WriteFrame implements sdep.Link.
func (l *Link) WriteFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.conn.Tx(frame, nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

// ReadFrame implements sdep.Link.
func (l *Link) ReadFrame(buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(buf) > len(l.zero) {
		buf = buf[:len(l.zero)]
	}
	if err := l.conn.Tx(l.zero[:len(buf)], buf); err != nil {
		return fmt.Errorf("spi read: %w", err)
	}
	return nil
}

// Ready implements sdep.Link. The module raises IRQ while it has data.
func (l *Link) Ready() (bool, error) {
	return l.irq.Read() == gpio.High, nil
}

// Reset pulses the reset line low and waits for the module to boot. Without
// a reset line it does nothing.
func (l *Link) Reset() error {
	if l.rst == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	time.Sleep(l.pulse)
	if err := l.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	time.Sleep(l.wait)
	return nil
}

// String describes the link.
func (l *Link) String() string {
	return fmt.Sprintf("spi %s irq %s", l.conn, l.irq)
}

// Close releases the port.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	return l.port.Close()
}
