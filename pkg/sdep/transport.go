// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Timing holds the link delays. Zero fields take the package defaults.
type Timing struct {
	FrameDelay      time.Duration // before each outbound frame and after each inbound one
	PollInterval    time.Duration // interrupt line polling granularity
	ResponseTimeout time.Duration // how long the device has to raise the interrupt line
}

// DefaultTiming returns the delays the SPI Friend is specified for.
func DefaultTiming() Timing {
	return Timing{
		FrameDelay:      DefaultFrameDelay,
		PollInterval:    DefaultPollInterval,
		ResponseTimeout: DefaultResponseTimeout,
	}
}

func (t Timing) withDefaults() Timing {
	if t.FrameDelay <= 0 {
		t.FrameDelay = DefaultFrameDelay
	}
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = DefaultResponseTimeout
	}
	return t
}

// Options configures a Transport.
type Options struct {
	Timing Timing
	Logger *slog.Logger
}

// Response is a reassembled device reply. Type and Opcode come from the last
// frame read.
type Response struct {
	Type    uint8
	Opcode  uint16
	Payload []byte
}

// Transport turns logical messages into frame exchanges on a Link.
//
// A Transport is not safe for concurrent use: callers must serialize
// exchanges (see bluefruit.Dispatcher). Failures are reported, never retried.
type Transport struct {
	link   Link
	timing Timing
	logger *slog.Logger
	stats  *Statistics

	tx [FrameSize]byte
	rx [FrameSize]byte
}

// NewTransport creates a transport over link.
func NewTransport(link Link, opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		link:   link,
		timing: opts.Timing.withDefaults(),
		logger: logger.With("component", "sdep"),
		stats:  NewStatistics(),
	}
}

// Stats returns the live link statistics.
func (t *Transport) Stats() *Statistics {
	return t.stats
}

// Timing returns the effective link timing.
func (t *Transport) Timing() Timing {
	return t.timing
}

// SendReceive sends cmd as a sequence of COMMAND frames and collects the
// response frames the device queues up.
//
// ctx is honored until the first frame goes out. From then on the exchange
// runs to completion: a half-sent command cannot be withdrawn from the device,
// so abandoning it would only desynchronize the next one.
func (t *Transport) SendReceive(ctx context.Context, cmd []byte) (Response, error) {
	frames, err := ChunkCommand(cmd)
	if err != nil {
		t.stats.recordOversized()
		return Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	t.stats.recordCommand()

	for i, f := range frames {
		if err := sleep(ctx, t.timing.FrameDelay); err != nil {
			return Response{}, err
		}
		if i == 0 {
			ctx = context.WithoutCancel(ctx)
		}

		n, err := EncodeFrame(t.tx[:], f)
		if err != nil {
			return Response{}, err
		}
		if err := t.link.WriteFrame(t.tx[:n]); err != nil {
			t.stats.recordLinkError()
			return Response{}, fmt.Errorf("sdep: write frame: %w", err)
		}
		t.stats.recordSent(n)
		t.logger.Debug("tx", "frame", FormatFrame(f))
	}

	if err := t.awaitReady(ctx); err != nil {
		return Response{}, err
	}

	resp, err := t.collect(ctx)
	if err != nil {
		return Response{}, err
	}
	t.stats.recordResponse(resp.Type)
	return resp, nil
}

// awaitReady polls the interrupt line until it asserts or the response
// timeout elapses.
func (t *Transport) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(t.timing.ResponseTimeout)
	for {
		ready, err := t.link.Ready()
		if err != nil {
			t.stats.recordLinkError()
			return fmt.Errorf("sdep: read interrupt line: %w", err)
		}
		if ready {
			return nil
		}
		if !time.Now().Before(deadline) {
			t.stats.recordTimeout()
			return fmt.Errorf("%w after %s", ErrResponseTimeout, t.timing.ResponseTimeout)
		}
		if err := sleep(ctx, t.timing.PollInterval); err != nil {
			return err
		}
	}
}

// collect reads frames for as long as the interrupt line stays asserted. A
// malformed frame fails the exchange, but the rest of the response is still
// drained so it cannot precede the next command's reply.
func (t *Transport) collect(ctx context.Context) (Response, error) {
	var (
		resp      Response
		decodeErr error
	)
	for {
		ready, err := t.link.Ready()
		if err != nil {
			t.stats.recordLinkError()
			return Response{}, fmt.Errorf("sdep: read interrupt line: %w", err)
		}
		if !ready {
			break
		}

		if err := sleep(ctx, t.timing.PollInterval); err != nil {
			return Response{}, err
		}
		if err := t.link.ReadFrame(t.rx[:]); err != nil {
			t.stats.recordLinkError()
			return Response{}, fmt.Errorf("sdep: read frame: %w", err)
		}
		f, err := DecodeFrame(t.rx[:])
		switch {
		case err != nil:
			t.stats.recordLinkError()
			t.logger.Debug("rx malformed frame", "err", err)
			if decodeErr == nil {
				decodeErr = err
			}
		default:
			t.stats.recordReceived(HeaderSize + len(f.Payload))
			t.logger.Debug("rx", "frame", FormatFrame(f))

			resp.Type = f.Type
			resp.Opcode = f.Opcode
			resp.Payload = append(resp.Payload, f.Payload...)
		}

		if err := sleep(ctx, t.timing.FrameDelay); err != nil {
			return Response{}, err
		}
	}
	if decodeErr != nil {
		return Response{}, decodeErr
	}
	return resp, nil
}

// Initialize sends the SDEP initialize request, which resets the device, and
// waits for it to come back.
func (t *Transport) Initialize(ctx context.Context) error {
	n, err := EncodeFrame(t.tx[:], Frame{Type: MsgCommand, Opcode: OpInitialize})
	if err != nil {
		return err
	}
	if err := t.link.WriteFrame(t.tx[:n]); err != nil {
		t.stats.recordLinkError()
		return fmt.Errorf("sdep: write initialize: %w", err)
	}
	t.stats.recordSent(n)
	t.logger.Debug("initialize sent")
	return sleep(ctx, InitializeSettle)
}

// Reset pulses the hardware reset line if the link has one.
func (t *Transport) Reset() error {
	r, ok := t.link.(Resetter)
	if !ok {
		return nil
	}
	if err := r.Reset(); err != nil {
		return fmt.Errorf("sdep: reset: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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
