// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/internal/scheduler"
	"github.com/Thermoquad/lumen/internal/sim"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
	"github.com/Thermoquad/lumen/pkg/sdep"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedMemory uint64

func (m fixedMemory) Free() uint64 { return uint64(m) }

type fixture struct {
	dev      *sim.Device
	d        *bluefruit.Dispatcher
	store    *config.Store
	light    *sim.LightSensor
	accel    *sim.Accelerometer
	battery  *sim.Battery
	led      *sim.LED
	pixels   *sim.Pixels
	watchdog *sim.Watchdog
	node     *Node
}

func newFixture(t *testing.T, provision bool) *fixture {
	t.Helper()
	dev := sim.NewDevice(quietLogger())
	tr := sdep.NewTransport(dev, sdep.Options{
		Timing: sdep.Timing{
			FrameDelay:      time.Microsecond,
			PollInterval:    time.Microsecond,
			ResponseTimeout: 20 * time.Millisecond,
		},
		Logger: quietLogger(),
	})
	d := bluefruit.NewDispatcher(tr, quietLogger())
	if provision {
		if err := gatt.Characteristics.FactoryReset(context.Background(), d, gatt.Provisioning("test", 0), quietLogger()); err != nil {
			t.Fatalf("FactoryReset: %v", err)
		}
	}

	f := &fixture{
		dev:      dev,
		d:        d,
		store:    config.NewStore(config.Options, quietLogger()),
		light:    sim.NewLightSensor(100),
		accel:    &sim.Accelerometer{},
		battery:  sim.NewBattery(3.7),
		led:      &sim.LED{},
		pixels:   sim.NewPixels(3, 0),
		watchdog: &sim.Watchdog{},
	}
	hw := Peripherals{
		Light:    f.light,
		Accel:    f.accel,
		Battery:  f.battery,
		LED:      f.led,
		Pixels:   f.pixels,
		Watchdog: f.watchdog,
		Memory:   fixedMemory(4096),
	}
	f.node = New(f.store, d, hw, DefaultPeriods(), quietLogger())
	return f
}

func (f *fixture) hostRead(t *testing.T, uuid uint16) uint64 {
	t.Helper()
	b, err := f.dev.HostRead(uuid)
	if err != nil {
		t.Fatal(err)
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func TestAccelRegister(t *testing.T) {
	tests := []struct {
		g    float64
		want uint8
	}{
		{0, 0},
		{0.0625, 1},
		{0.03, 0},
		{0.04, 1},
		{1.0, 16},
		{6.25, 100},
		{15.9375, 255},
		{100, 255},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := AccelRegister(tt.g); got != tt.want {
			t.Errorf("AccelRegister(%v) = %d, want %d", tt.g, got, tt.want)
		}
	}
}

func TestBoot_FactoryResetAndCount(t *testing.T) {
	f := newFixture(t, false)
	dir := t.TempDir()
	marker := filepath.Join(dir, "reset-ble")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	bootstrap := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(bootstrap, []byte("DEVICE_NAME = Porch\nLIGHT_THRESHOLD = 12.5\nBOGUS = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := BootOptions{Bootstrap: bootstrap, ResetMarker: marker}

	count, err := f.node.Boot(context.Background(), opts)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if count != 1 {
		t.Errorf("first boot count = %d, want 1", count)
	}
	if _, err := os.Stat(marker); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reset marker still present: %v", err)
	}
	if got := f.dev.State().DeviceName; got != "Porch" {
		t.Errorf("device name = %q, want Porch", got)
	}
	if got := f.store.Float(config.LightThreshold); got != 12.5 {
		t.Errorf("LIGHT_THRESHOLD = %v, want 12.5", got)
	}
	if got := f.watchdog.Timeout(); got != 10*time.Second {
		t.Errorf("watchdog timeout = %v, want 10s", got)
	}

	count, err = f.node.Boot(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Boot: %v", err)
	}
	if count != 2 {
		t.Errorf("second boot count = %d, want 2", count)
	}
	if got := f.hostRead(t, 0x000A); got != 2 {
		t.Errorf("boot count characteristic = %d, want 2", got)
	}
}

func TestBoot_WritesDefaults(t *testing.T) {
	f := newFixture(t, true)
	if err := gatt.Get(gatt.IdxLEDState).Write(f.d, gatt.Get(gatt.IdxLEDState).Format.FromBool(true)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	_, err := f.node.Boot(context.Background(), BootOptions{
		Bootstrap:   filepath.Join(dir, "missing.txt"),
		ResetMarker: filepath.Join(dir, "reset-ble"),
	})
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if got := f.hostRead(t, 0x000B); got != 0 {
		t.Errorf("LED characteristic = %d, want default 0", got)
	}
	if got := f.store.Float(config.LightThreshold); got != 30.0 {
		t.Errorf("LIGHT_THRESHOLD = %v, want default", got)
	}
}

func TestBoot_MarkerDirectoryIgnored(t *testing.T) {
	f := newFixture(t, true)
	marker := filepath.Join(t.TempDir(), "reset-ble")
	if err := os.Mkdir(marker, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := f.node.Boot(context.Background(), BootOptions{ResetMarker: marker}); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if got := f.dev.State().DeviceName; got != "test" {
		t.Errorf("device name = %q, module was reset", got)
	}
}

func TestLightSample(t *testing.T) {
	f := newFixture(t, true)
	body := f.node.lightSampleUnit().Body
	ctx := context.Background()

	f.light.Set(10)
	if err := body(ctx); err != nil {
		t.Fatal(err)
	}
	if avg := f.node.State().LightAverage(); avg < 1.999 || avg > 2.001 {
		t.Errorf("average = %v, want 2", avg)
	}
	if !f.led.On() || !f.node.State().LEDOn() {
		t.Error("LED should be on below the threshold")
	}
	if got := f.hostRead(t, 0x000B); got != 1 {
		t.Errorf("LED characteristic = %d, want 1", got)
	}

	if err := body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.led.Changes(); got != 1 {
		t.Errorf("LED changes = %d, want 1", got)
	}

	f.light.Set(500)
	if err := body(ctx); err != nil {
		t.Fatal(err)
	}
	if f.led.On() {
		t.Error("LED should be off above the threshold")
	}
	if got := f.hostRead(t, 0x000B); got != 0 {
		t.Errorf("LED characteristic = %d, want 0", got)
	}
}

func TestLightSample_FirstSampleDrivesLED(t *testing.T) {
	tests := []struct {
		name string
		lux  float64
		want bool
	}{
		{"bright turns a stale LED off", 500, false},
		{"dark turns it on", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			c := gatt.Get(gatt.IdxLEDState)
			f.led.Set(!tt.want)
			if err := c.Write(f.d, c.Format.FromBool(!tt.want)); err != nil {
				t.Fatal(err)
			}
			before := f.led.Changes()

			f.light.Set(tt.lux)
			if err := f.node.lightSampleUnit().Body(context.Background()); err != nil {
				t.Fatal(err)
			}
			if f.led.On() != tt.want {
				t.Errorf("LED on = %v, want %v", f.led.On(), tt.want)
			}
			if got := f.led.Changes() - before; got != 1 {
				t.Errorf("LED changes = %d, want 1", got)
			}
			want := uint64(0)
			if tt.want {
				want = 1
			}
			if got := f.hostRead(t, 0x000B); got != want {
				t.Errorf("LED characteristic = %d, want %d", got, want)
			}
		})
	}
}

func TestLightReport(t *testing.T) {
	f := newFixture(t, true)
	f.node.State().setLightAverage(12.345)
	if err := f.node.lightReportUnit().Body(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.hostRead(t, 0x0004); got != 12345 {
		t.Errorf("light characteristic = %d, want 12345", got)
	}
}

func TestMotion(t *testing.T) {
	f := newFixture(t, true)
	u := f.node.motionSampleUnit()
	ctx := context.Background()

	if err := u.Setup(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.accel.Threshold(); got != 100 {
		t.Fatalf("threshold register = %d, want 100", got)
	}

	f.accel.Shake(3)
	if err := u.Body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.node.State().MotionCount(); got != 0 {
		t.Errorf("count after weak shake = %d, want 0", got)
	}

	f.accel.Shake(7)
	if err := u.Body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.node.State().MotionCount(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	select {
	case <-f.node.State().Activated.C():
	default:
		t.Error("activation not signalled")
	}
	if _, ok := f.node.State().LastActivation(); !ok {
		t.Error("no last activation")
	}

	if err := f.node.motionReportUnit().Body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.hostRead(t, 0x0005); got != 1 {
		t.Errorf("motion characteristic = %d, want 1", got)
	}
}

func TestMotionCountWraps(t *testing.T) {
	s := NewState()
	s.motionCount.Store(motionCountMask)
	if got := s.recordActivation(time.Now()); got != 0 {
		t.Errorf("count after wrap = %d, want 0", got)
	}
}

func TestPixels_FlashAfterMotion(t *testing.T) {
	f := newFixture(t, true)
	f.store.Set(config.NeopixelFlashSpeed, config.Float(0))
	u := f.node.pixelUnit()
	ctx := context.Background()

	if err := u.Setup(ctx); err != nil {
		t.Fatal(err)
	}
	f.node.State().recordActivation(time.Now())
	if err := u.Body(ctx); err != nil {
		t.Fatal(err)
	}

	frames := f.pixels.Shown()
	// setup frame, one per pixel, then all dark
	if len(frames) != 1+3+1 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	for i := 0; i < 3; i++ {
		frame := frames[1+i]
		for j, px := range frame {
			want := [3]uint8{}
			if j == i {
				want = [3]uint8{5, 5, 5}
			}
			if px != want {
				t.Errorf("frame %d pixel %d = %v, want %v", i, j, px, want)
			}
		}
	}
	for j, px := range frames[4] {
		if px != [3]uint8{} {
			t.Errorf("final frame pixel %d = %v, want dark", j, px)
		}
	}
}

func TestPixels_WaitForMotion(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.node.pixelUnit().Body(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Body = %v, want context.Canceled", err)
	}
	if got := len(f.pixels.Shown()); got != 0 {
		t.Errorf("shown %d frames without motion", got)
	}
}

func TestAccelThresholdSync(t *testing.T) {
	f := newFixture(t, true)
	pair := f.node.AccelThresholdPair()
	u := f.node.Units()[6]
	if u.Name != "accel-config" {
		t.Fatalf("unit 6 = %s, want accel-config", u.Name)
	}
	ctx := context.Background()

	if err := u.Setup(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.hostRead(t, pair.RD.UUID); got != 6250 {
		t.Errorf("RD = %d, want 6250", got)
	}

	if err := f.dev.HostWrite(pair.WR.UUID, []byte{0x04, 0x06}); err != nil { // 1030 mg
		t.Fatal(err)
	}
	if err := u.Body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Float(config.AccelerationThreshold); got != 1.0 {
		t.Errorf("ACCELERATION_THRESHOLD = %v, want 1.0", got)
	}
	if got := f.hostRead(t, pair.RD.UUID); got != 1000 {
		t.Errorf("RD = %d, want 1000", got)
	}
	if got := f.accel.Threshold(); got != 16 {
		t.Errorf("threshold register = %d, want 16", got)
	}
}

func TestBatteryAndHeap(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	if err := f.node.batteryUnit().Body(ctx); err != nil {
		t.Fatal(err)
	}
	raw, _ := f.battery.Raw()
	if got := f.hostRead(t, 0x0003); got != uint64(raw) {
		t.Errorf("battery characteristic = %d, want %d", got, raw)
	}

	if err := f.node.heapUnit().Body(ctx); err != nil {
		t.Fatal(err)
	}
	if got := f.hostRead(t, 0x0002); got != 4096 {
		t.Errorf("heap characteristic = %d, want 4096", got)
	}
}

func TestWatchdogUnit(t *testing.T) {
	f := newFixture(t, false)
	f.store.Set(config.WatchdogPetInterval, config.Float(0.001))

	u := f.node.watchdogUnit()
	if !u.RunImmediately {
		t.Error("watchdog unit must pet before its first sleep")
	}
	if got := u.PeriodFunc(); got != time.Millisecond {
		t.Errorf("period = %v, want 1ms", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := scheduler.New(quietLogger(), u)
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run: %v", err)
	}
	if got := f.watchdog.Feeds(); got < 2 {
		t.Errorf("feeds = %d, want at least 2", got)
	}
}

func TestUnitNames(t *testing.T) {
	f := newFixture(t, false)
	want := []string{
		"light-sample", "light-report", "light-config",
		"motion-sample", "pixels", "motion-report", "accel-config",
		"battery", "heap", "watchdog",
	}
	units := f.node.Units()
	if len(units) != len(want) {
		t.Fatalf("got %d units, want %d", len(units), len(want))
	}
	for i, u := range units {
		if u.Name != want[i] {
			t.Errorf("unit %d = %s, want %s", i, u.Name, want[i])
		}
	}
}
