// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_FirstFailureSurfaces(t *testing.T) {
	boom := errors.New("sensor unplugged")
	var healthyRuns atomic.Int64

	s := New(quietLogger(),
		Unit{
			Name:   "healthy",
			Period: time.Millisecond,
			Body: func(ctx context.Context) error {
				healthyRuns.Add(1)
				return nil
			},
		},
		Unit{
			Name:   "flaky",
			Period: 5 * time.Millisecond,
			Body: func(ctx context.Context) error {
				return boom
			},
		},
	)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want wrapped %v", err, boom)
		}
		if !strings.Contains(err.Error(), "unit flaky") {
			t.Errorf("error %q does not name the unit", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a unit failed")
	}

	if healthyRuns.Load() == 0 {
		t.Error("healthy unit never ran")
	}

	status := s.Status()
	if status[1].State != Failed || !errors.Is(status[1].Err, boom) {
		t.Errorf("flaky status %+v", status[1])
	}
	if status[0].State != Stopped {
		t.Errorf("healthy unit state %s, want stopped", status[0].State)
	}
}

func TestRun_SleepsBeforeFirstRun(t *testing.T) {
	var mu sync.Mutex
	var delayedAt, immediateAt time.Time
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(quietLogger(),
		Unit{
			Name:   "delayed",
			Period: 30 * time.Millisecond,
			Body: func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				if delayedAt.IsZero() {
					delayedAt = time.Now()
				}
				cancel()
				return nil
			},
		},
		Unit{
			Name:           "immediate",
			Period:         time.Hour,
			RunImmediately: true,
			Body: func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				immediateAt = time.Now()
				return nil
			},
		},
	)

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if immediateAt.IsZero() {
		t.Fatal("immediate unit never ran")
	}
	if delayedAt.Sub(start) < 30*time.Millisecond {
		t.Errorf("delayed unit ran after %s, before its period", delayedAt.Sub(start))
	}
	if immediateAt.Sub(start) >= 30*time.Millisecond {
		t.Errorf("immediate unit waited %s", immediateAt.Sub(start))
	}
}

func TestUnit_FirstDelay(t *testing.T) {
	tests := []struct {
		name     string
		unit     Unit
		wantD    time.Duration
		wantWait bool
	}{
		{"defaults to one period", Unit{Period: time.Second}, time.Second, true},
		{"initial delay overrides period", Unit{Period: time.Hour, InitialDelay: time.Second}, time.Second, true},
		{"run immediately wins", Unit{Period: time.Hour, InitialDelay: time.Second, RunImmediately: true}, 0, false},
		{"event driven without delay", Unit{}, 0, false},
		{"event driven with delay", Unit{InitialDelay: time.Second}, time.Second, true},
		{"period func", Unit{PeriodFunc: func() time.Duration { return time.Minute }}, time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, wait := tt.unit.firstDelay()
			if d != tt.wantD || wait != tt.wantWait {
				t.Errorf("firstDelay() = %s, %v; want %s, %v", d, wait, tt.wantD, tt.wantWait)
			}
		})
	}
}

func TestRun_InitialDelayShortensFirstSleep(t *testing.T) {
	var runs atomic.Int32
	var firstAt time.Time
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := New(quietLogger(), Unit{
		Name:         "staggered",
		Period:       time.Hour,
		InitialDelay: 10 * time.Millisecond,
		Body: func(ctx context.Context) error {
			if runs.Add(1) == 1 {
				firstAt = time.Now()
			}
			cancel()
			return nil
		},
	})

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if runs.Load() != 1 {
		t.Fatalf("ran %d times, want 1", runs.Load())
	}
	if el := firstAt.Sub(start); el < 10*time.Millisecond || el >= time.Second {
		t.Errorf("first run after %s, want the initial delay", el)
	}
}

func TestRun_SetupRunsOnceBeforeBody(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	s := New(quietLogger(), Unit{
		Name:   "sync",
		Period: time.Millisecond,
		Setup: func(ctx context.Context) error {
			record("setup")
			return nil
		},
		Body: func(ctx context.Context) error {
			record("body")
			runs++
			if runs == 3 {
				cancel()
			}
			return nil
		},
	})

	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := "setup body body body"
	if got := strings.Join(order, " "); got != want {
		t.Errorf("order %q, want %q", got, want)
	}
}

func TestRun_SetupFailure(t *testing.T) {
	boom := errors.New("publish failed")
	s := New(quietLogger(), Unit{
		Name:   "sync",
		Period: time.Hour,
		Setup:  func(ctx context.Context) error { return boom },
		Body:   func(ctx context.Context) error { return nil },
	})
	if err := s.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestRun_PeriodFuncReevaluated(t *testing.T) {
	var period atomic.Int64
	period.Store(int64(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int64
	s := New(quietLogger(), Unit{
		Name:           "pet",
		RunImmediately: true,
		PeriodFunc:     func() time.Duration { return time.Duration(period.Load()) },
		Body: func(ctx context.Context) error {
			if runs.Add(1) == 2 {
				cancel()
			}
			// the next sleep picks up the shorter period
			period.Store(int64(time.Millisecond))
			return nil
		},
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("period change was not picked up")
	}
}

func TestRun_EventDrivenUnit(t *testing.T) {
	events := make(chan int)
	got := make(chan int, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(quietLogger(), Unit{
		Name: "flasher",
		Body: func(ctx context.Context) error {
			select {
			case v := <-events:
				got <- v
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	go s.Run(ctx)

	for i := 1; i <= 3; i++ {
		events <- i
	}
	for i := 1; i <= 3; i++ {
		if v := <-got; v != i {
			t.Errorf("event %d delivered as %d", i, v)
		}
	}
}

func TestAdd_WithoutBodyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	New(quietLogger(), Unit{Name: "empty"})
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}
}
