// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler runs the node's periodic units concurrently until one of
// them fails.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Unit is one independently running task.
//
// A unit with a period sleeps, runs Body, and repeats. The first sleep is
// InitialDelay when set, otherwise one period, so units started together do
// not all hit the link at once. RunImmediately skips the first sleep. A unit
// with neither Period nor PeriodFunc runs Body back to back; such a Body is
// expected to block on its own events.
type Unit struct {
	Name           string
	Period         time.Duration
	PeriodFunc     func() time.Duration // re-read before every sleep; overrides Period
	InitialDelay   time.Duration        // first sleep; zero means one period
	RunImmediately bool

	// Setup runs once, before the first sleep.
	Setup func(ctx context.Context) error
	// Body runs once per iteration.
	Body func(ctx context.Context) error
}

func (u *Unit) period() time.Duration {
	if u.PeriodFunc != nil {
		return u.PeriodFunc()
	}
	return u.Period
}

func (u *Unit) periodic() bool {
	return u.PeriodFunc != nil || u.Period > 0
}

// firstDelay is the wait before the first run, and whether there is one.
func (u *Unit) firstDelay() (time.Duration, bool) {
	switch {
	case u.RunImmediately:
		return 0, false
	case u.InitialDelay > 0:
		return u.InitialDelay, true
	default:
		return u.period(), u.periodic()
	}
}

// State is where a unit is in its cycle.
type State int32

const (
	Waiting State = iota
	Running
	Sleeping
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status is a point-in-time view of one unit.
type Status struct {
	Name    string
	State   State
	Runs    uint64
	LastRun time.Time
	Err     error
}

type tracker struct {
	state   atomic.Int32
	runs    atomic.Uint64
	lastRun atomic.Int64
	mu      sync.Mutex
	err     error
}

// Scheduler runs a fixed set of units.
type Scheduler struct {
	units    []Unit
	trackers []*tracker
	logger   *slog.Logger
}

// New creates a scheduler for units.
func New(logger *slog.Logger, units ...Unit) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger.With("component", "scheduler")}
	for _, u := range units {
		s.Add(u)
	}
	return s
}

// Add registers a unit. It must be called before Run.
func (s *Scheduler) Add(u Unit) {
	if u.Body == nil {
		panic(fmt.Sprintf("scheduler: unit %q has no body", u.Name))
	}
	s.units = append(s.units, u)
	s.trackers = append(s.trackers, &tracker{})
}

// Run starts every unit and blocks until one fails or ctx is done. It
// returns the first unit error, wrapped with the unit's name. Remaining
// units are stopped at their next wait; no further guarantee is made about
// their state, and the caller is expected to restart the whole device.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range s.units {
		u, tr := &s.units[i], s.trackers[i]
		g.Go(func() error {
			err := s.runUnit(gctx, u, tr)
			if err == nil || (gctx.Err() != nil && errors.Is(err, gctx.Err())) {
				tr.state.Store(int32(Stopped))
				return err
			}
			tr.state.Store(int32(Failed))
			tr.mu.Lock()
			tr.err = err
			tr.mu.Unlock()
			s.logger.Error("unit failed", "unit", u.Name, "err", err)
			return fmt.Errorf("unit %s: %w", u.Name, err)
		})
	}
	return g.Wait()
}

func (s *Scheduler) runUnit(ctx context.Context, u *Unit, tr *tracker) error {
	tr.state.Store(int32(Waiting))
	if u.Setup != nil {
		if err := u.Setup(ctx); err != nil {
			return err
		}
	}

	first := true
	for {
		d, wait := u.period(), u.periodic()
		if first {
			d, wait = u.firstDelay()
			first = false
		}
		if wait {
			tr.state.Store(int32(Sleeping))
			if err := Sleep(ctx, d); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		tr.state.Store(int32(Running))
		if err := u.Body(ctx); err != nil {
			return err
		}
		tr.runs.Add(1)
		tr.lastRun.Store(time.Now().UnixNano())
	}
}

// Status reports every unit, in registration order.
func (s *Scheduler) Status() []Status {
	out := make([]Status, len(s.units))
	for i, u := range s.units {
		tr := s.trackers[i]
		st := Status{
			Name:  u.Name,
			State: State(tr.state.Load()),
			Runs:  tr.runs.Load(),
		}
		if ns := tr.lastRun.Load(); ns != 0 {
			st.LastRun = time.Unix(0, ns)
		}
		tr.mu.Lock()
		st.Err = tr.err
		tr.mu.Unlock()
		out[i] = st
	}
	return out
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
