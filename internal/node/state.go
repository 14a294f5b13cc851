// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"math"
	"sync/atomic"
	"time"
)

// motionCountMask keeps the activation counter within the 3-byte
// characteristic.
const motionCountMask = 0xFFFFFF

// Signal is a level-triggered change notification: Notify sets it, and one
// waiter consumes it. Notifications while it is already set coalesce.
type Signal struct {
	ch chan struct{}
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify sets the signal.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C returns the channel to receive from; receiving clears the signal.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// State is what the sampling units observe. Each quantity has exactly one
// writer unit; any unit may read.
type State struct {
	lightAvg       atomic.Uint64 // float64 bits
	ledOn          atomic.Bool
	motionCount    atomic.Uint32
	lastActivation atomic.Int64 // unix nanoseconds, 0 if never

	// Activated is notified on every motion event.
	Activated *Signal
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Activated: NewSignal()}
}

// LightAverage returns the moving average of the light level in lux.
func (s *State) LightAverage() float64 {
	return math.Float64frombits(s.lightAvg.Load())
}

func (s *State) setLightAverage(lux float64) {
	s.lightAvg.Store(math.Float64bits(lux))
}

// LEDOn reports the last LED state set by the light unit.
func (s *State) LEDOn() bool {
	return s.ledOn.Load()
}

// MotionCount returns the number of motion events, modulo 2^24.
func (s *State) MotionCount() uint32 {
	return s.motionCount.Load()
}

// LastActivation returns the time of the last motion event.
func (s *State) LastActivation() (time.Time, bool) {
	ns := s.lastActivation.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (s *State) recordActivation(now time.Time) uint32 {
	n := (s.motionCount.Load() + 1) & motionCountMask
	s.motionCount.Store(n)
	s.lastActivation.Store(now.UnixNano())
	s.Activated.Notify()
	return n
}
