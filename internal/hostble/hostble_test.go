// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/internal/sim"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
	"github.com/Thermoquad/lumen/pkg/sdep"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	dev    *sim.Device
	d      *bluefruit.Dispatcher
	client *Client
}

func newFixture(t *testing.T) *fixture {
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
	ctx := context.Background()
	if err := gatt.Characteristics.FactoryReset(ctx, d, gatt.Provisioning("Porch", 0), quietLogger()); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}

	c, err := Dial(ctx, NewSimAdapter(dev), "Porch", gatt.Service, gatt.Characteristics, quietLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return &fixture{dev: dev, d: d, client: c}
}

func TestEncodeDecodeBytes(t *testing.T) {
	tests := []struct {
		format bluefruit.Format
		raw    uint64
		want   []byte
	}{
		{bluefruit.Uint(4), 0x1F4, []byte{0x00, 0x00, 0x01, 0xF4}},
		{bluefruit.Uint(3), 0xABCDEF, []byte{0xAB, 0xCD, 0xEF}},
		{bluefruit.Fixed(2, 1e-1), 125, []byte{0x00, 0x7D}},
		{bluefruit.Bool(), 1, []byte{0x01}},
	}
	for _, tt := range tests {
		v := bluefruit.Value{Format: tt.format, Raw: tt.raw}
		got := EncodeBytes(tt.format, v)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeBytes(%d) = %x, want %x", tt.raw, got, tt.want)
		}
		back, err := DecodeBytes(tt.format, got)
		if err != nil {
			t.Fatal(err)
		}
		if back.Raw != tt.raw {
			t.Errorf("DecodeBytes(%x) = %d, want %d", got, back.Raw, tt.raw)
		}
	}

	if _, err := DecodeBytes(bluefruit.Uint(4), []byte{1, 2}); !errors.Is(err, ErrShortValue) {
		t.Errorf("short value: %v", err)
	}
}

func TestDial_NotFound(t *testing.T) {
	dev := sim.NewDevice(quietLogger())
	_, err := Dial(context.Background(), NewSimAdapter(dev), "Porch", gatt.Service, gatt.Characteristics, quietLogger())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Dial = %v, want ErrNotFound", err)
	}
}

func TestClient_ReadScaled(t *testing.T) {
	f := newFixture(t)
	light := gatt.Get(gatt.IdxLight)
	if err := light.Write(f.d, light.Format.FromFloat(42.5)); err != nil {
		t.Fatal(err)
	}

	r, err := f.client.Read(light)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Value.Float(); got < 42.499 || got > 42.501 {
		t.Errorf("light = %v, want 42.5", got)
	}
	if got := r.String(); got != "42.5 lux" {
		t.Errorf("String() = %q", got)
	}

	heap, err := f.client.Read(gatt.Get(gatt.IdxHeapFree))
	if err != nil {
		t.Fatal(err)
	}
	if heap.String() != "unset" {
		t.Errorf("heap before first report = %q, want unset", heap.String())
	}
}

func TestClient_ReadAll(t *testing.T) {
	f := newFixture(t)
	readings, err := f.client.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range readings {
		if r.Characteristic.Access != bluefruit.ReadOnly {
			t.Errorf("ReadAll returned intake %s", r.Characteristic.Name)
		}
	}
	if len(readings) != 8 {
		t.Errorf("got %d readings, want 8", len(readings))
	}
}

func TestClient_WriteIntake(t *testing.T) {
	f := newFixture(t)
	wr := gatt.Get(gatt.IdxLightThresholdWR)
	if err := f.client.Write(wr, wr.Format.FromFloat(12.5)); err != nil {
		t.Fatal(err)
	}
	v, err := wr.Read(f.d)
	if err != nil {
		t.Fatal(err)
	}
	if v.Raw != 125 {
		t.Errorf("node sees %d, want 125", v.Raw)
	}

	if err := f.client.Write(gatt.Get(gatt.IdxLight), wr.Format.FromUint(1)); !errors.Is(err, ErrNotWritable) {
		t.Errorf("write to published attribute: %v", err)
	}
	if _, err := f.client.Read(wr); !errors.Is(err, ErrNotReadable) {
		t.Errorf("read of intake: %v", err)
	}
}

func TestHandler(t *testing.T) {
	f := newFixture(t)
	led := gatt.Get(gatt.IdxLEDState)
	if err := led.Write(f.d, led.Format.FromBool(true)); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(Handler(f.client, quietLogger()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/attributes/led")
	if err != nil {
		t.Fatal(err)
	}
	var a AttributeJSON
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if a.Value == nil || *a.Value != 1 {
		t.Errorf("led = %+v, want 1", a)
	}

	resp, err = http.Get(srv.URL + "/attributes/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown attribute status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/attributes/accel_threshold_wr", strings.NewReader(`{"value": 1.5}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	v, err := gatt.Get(gatt.IdxAccelThresholdWR).Read(f.d)
	if err != nil {
		t.Fatal(err)
	}
	if v.Raw != 1500 {
		t.Errorf("node sees %d, want 1500", v.Raw)
	}
}

func TestHandler_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(Handler(f.client, quietLogger()))
	defer srv.Close()

	wr := gatt.Get(gatt.IdxLightThresholdWR)
	for _, body := range []string{`{"value": 7000}`, `{"value": -3}`} {
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/attributes/light_threshold_wr", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PUT %s status = %d, want 400", body, resp.StatusCode)
		}

		v, err := wr.Read(f.d)
		if err != nil {
			t.Fatal(err)
		}
		if !v.IsSentinel() {
			t.Errorf("after PUT %s node sees raw 0x%x, want the untouched sentinel", body, v.Raw)
		}
	}
}
