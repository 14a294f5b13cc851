// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bluefruit speaks the Bluefruit LE AT command set over an SDEP
// transport and models the GATT characteristics the node exposes.
package bluefruit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Thermoquad/lumen/pkg/sdep"
)

// okTrailer ends every successful AT response.
var okTrailer = []byte("OK\r\n")

// Executor runs AT commands that are expected to succeed. Dispatcher is the
// production implementation.
type Executor interface {
	ExecuteOKContext(ctx context.Context, cmd string, settle time.Duration) ([]byte, error)
}

// Dispatcher owns the transport and runs one AT command at a time.
//
// Every method takes the same exclusion lock, so blocking callers (boot and
// provisioning code) and context-aware callers (scheduler units) can never
// interleave frames on the link. The lock is held through the post-command
// settle delay.
type Dispatcher struct {
	tr     *sdep.Transport
	lock   chan struct{}
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over tr.
func NewDispatcher(tr *sdep.Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tr:     tr,
		lock:   make(chan struct{}, 1),
		logger: logger.With("component", "bluefruit"),
	}
}

// Transport returns the underlying transport.
func (d *Dispatcher) Transport() *sdep.Transport {
	return d.tr
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	select {
	case d.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) release() {
	<-d.lock
}

// Execute runs cmd and returns the raw response payload. It blocks until the
// link is free.
func (d *Dispatcher) Execute(cmd string) ([]byte, error) {
	return d.ExecuteContext(context.Background(), cmd)
}

// ExecuteContext is Execute with a context. ctx bounds the wait for the link;
// once the command is on the wire it runs to completion.
func (d *Dispatcher) ExecuteContext(ctx context.Context, cmd string) ([]byte, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	return d.exchange(ctx, cmd)
}

// ExecuteOK runs cmd, waits settle for the device to apply it, and checks the
// "OK\r\n" status. It returns the bytes preceding the status, or nil if there
// are none.
func (d *Dispatcher) ExecuteOK(cmd string, settle time.Duration) ([]byte, error) {
	return d.ExecuteOKContext(context.Background(), cmd, settle)
}

// ExecuteOKContext is ExecuteOK with a context.
func (d *Dispatcher) ExecuteOKContext(ctx context.Context, cmd string, settle time.Duration) ([]byte, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	resp, err := d.exchange(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	return stripOK(cmd, resp)
}

// Initialize resets the device through the SDEP initialize request.
func (d *Dispatcher) Initialize(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	d.logger.Debug("initializing module")
	return d.tr.Initialize(context.WithoutCancel(ctx))
}

// HardReset pulses the reset line, if the link has one, then initializes.
func (d *Dispatcher) HardReset(ctx context.Context) error {
	if err := d.tr.Reset(); err != nil {
		return err
	}
	return d.Initialize(ctx)
}

// exchange sends one command and classifies the response. The caller holds
// the lock.
func (d *Dispatcher) exchange(ctx context.Context, cmd string) ([]byte, error) {
	resp, err := d.tr.SendReceive(ctx, []byte(cmd+"\n"))
	if err != nil {
		return nil, err
	}
	d.logger.Debug("command", "cmd", cmd, "type", sdep.FormatMessageType(resp.Type), "len", len(resp.Payload))

	switch resp.Type {
	case sdep.MsgResponse:
		return resp.Payload, nil
	case sdep.MsgError:
		return nil, &CommandError{Command: cmd, Type: resp.Type, Opcode: resp.Opcode, Response: resp.Payload, Err: ErrCommandRejected}
	default:
		return nil, &CommandError{Command: cmd, Type: resp.Type, Opcode: resp.Opcode, Response: resp.Payload, Err: ErrUnknownResponse}
	}
}

// stripOK removes the trailing status from a RESPONSE payload.
func stripOK(cmd string, resp []byte) ([]byte, error) {
	if !bytes.HasSuffix(resp, okTrailer) {
		return nil, &CommandError{Command: cmd, Type: sdep.MsgResponse, Opcode: sdep.OpATCommand, Response: resp, Err: ErrNotAcknowledged}
	}
	prefix := resp[:len(resp)-len(okTrailer)]
	if len(prefix) == 0 {
		return nil, nil
	}
	return prefix, nil
}

// lines splits a multi-line response into trimmed, non-empty lines.
func lines(resp []byte) []string {
	var out []string
	for _, line := range strings.Split(string(resp), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
