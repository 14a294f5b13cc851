// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Bridge request and reply codes.
//
// A bridge carries Link operations over a byte stream (a serial port to a
// USB-SPI adapter, or a WebSocket to a remote host that owns the SPI bus):
//
//	'W' n <n bytes>  write frame  -> 'K'
//	'R'              read frame   -> 'K' <20 bytes>
//	'I'              IRQ level    -> 'K' <0|1>
//	'Z'              reset        -> 'K'
//
// Any request may instead be answered with 'E' n <n bytes of message>.
const (
	bridgeWrite = 'W'
	bridgeRead  = 'R'
	bridgeIRQ   = 'I'
	bridgeReset = 'Z'
	bridgeOK    = 'K'
	bridgeError = 'E'
)

// ErrBridgeProtocol is returned when the bridge peer sends something that is
// not a valid reply or request.
var ErrBridgeProtocol = errors.New("sdep: bridge protocol error")

// BridgeError is an error reported by the far side of a bridge.
type BridgeError struct {
	Message string
}

func (e *BridgeError) Error() string {
	return "sdep: bridge peer: " + e.Message
}

// BridgeLink is a Link that forwards every operation over a byte stream to a
// ServeBridge peer.
type BridgeLink struct {
	mu  sync.Mutex
	rw  io.ReadWriter
	buf [2 + FrameSize]byte
}

// NewBridgeLink creates a link speaking the bridge protocol over rw.
func NewBridgeLink(rw io.ReadWriter) *BridgeLink {
	return &BridgeLink{rw: rw}
}

// WriteFrame implements Link.
func (b *BridgeLink) WriteFrame(frame []byte) error {
	if len(frame) > FrameSize {
		return fmt.Errorf("%w: frame of %d bytes", ErrInvalidLength, len(frame))
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[0] = bridgeWrite
	b.buf[1] = byte(len(frame))
	n := copy(b.buf[2:], frame)
	if _, err := b.rw.Write(b.buf[:2+n]); err != nil {
		return err
	}
	return b.expectOK()
}

// ReadFrame implements Link.
func (b *BridgeLink) ReadFrame(buf []byte) error {
	if len(buf) < FrameSize {
		return fmt.Errorf("%w: buffer of %d bytes", ErrShortFrame, len(buf))
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.request(bridgeRead); err != nil {
		return err
	}
	_, err := io.ReadFull(b.rw, buf[:FrameSize])
	return err
}

// Ready implements Link.
func (b *BridgeLink) Ready() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.request(bridgeIRQ); err != nil {
		return false, err
	}
	if _, err := io.ReadFull(b.rw, b.buf[:1]); err != nil {
		return false, err
	}
	return b.buf[0] != 0, nil
}

// Reset implements Resetter.
func (b *BridgeLink) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.request(bridgeReset)
}

func (b *BridgeLink) request(op byte) error {
	b.buf[0] = op
	if _, err := b.rw.Write(b.buf[:1]); err != nil {
		return err
	}
	return b.expectOK()
}

func (b *BridgeLink) expectOK() error {
	if _, err := io.ReadFull(b.rw, b.buf[:1]); err != nil {
		return err
	}
	switch b.buf[0] {
	case bridgeOK:
		return nil
	case bridgeError:
		msg, err := readShortString(b.rw)
		if err != nil {
			return err
		}
		return &BridgeError{Message: msg}
	default:
		return fmt.Errorf("%w: reply 0x%02X", ErrBridgeProtocol, b.buf[0])
	}
}

func readShortString(r io.Reader) (string, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	msg := make([]byte, n[0])
	if _, err := io.ReadFull(r, msg); err != nil {
		return "", err
	}
	return string(msg), nil
}

// ServeBridge answers bridge requests from rw against link until rw reports
// io.EOF (a clean shutdown, returns nil) or another read/write error.
func ServeBridge(rw io.ReadWriter, link Link) error {
	var op [1]byte
	var frame [FrameSize]byte
	for {
		if _, err := io.ReadFull(rw, op[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var reply []byte
		switch op[0] {
		case bridgeWrite:
			var n [1]byte
			if _, err := io.ReadFull(rw, n[:]); err != nil {
				return err
			}
			if int(n[0]) > FrameSize {
				return fmt.Errorf("%w: write of %d bytes", ErrBridgeProtocol, n[0])
			}
			if _, err := io.ReadFull(rw, frame[:n[0]]); err != nil {
				return err
			}
			if err := link.WriteFrame(frame[:n[0]]); err != nil {
				reply = errorReply(err)
				break
			}
			reply = []byte{bridgeOK}
		case bridgeRead:
			if err := link.ReadFrame(frame[:]); err != nil {
				reply = errorReply(err)
				break
			}
			reply = append([]byte{bridgeOK}, frame[:]...)
		case bridgeIRQ:
			ready, err := link.Ready()
			if err != nil {
				reply = errorReply(err)
				break
			}
			level := byte(0)
			if ready {
				level = 1
			}
			reply = []byte{bridgeOK, level}
		case bridgeReset:
			if r, ok := link.(Resetter); ok {
				if err := r.Reset(); err != nil {
					reply = errorReply(err)
					break
				}
			}
			reply = []byte{bridgeOK}
		default:
			return fmt.Errorf("%w: request 0x%02X", ErrBridgeProtocol, op[0])
		}

		if _, err := rw.Write(reply); err != nil {
			return err
		}
	}
}

func errorReply(err error) []byte {
	msg := err.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return append([]byte{bridgeError, byte(len(msg))}, msg...)
}
