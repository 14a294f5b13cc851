// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"encoding/binary"
	"fmt"
)

// Frame is one SDEP envelope.
//
// Host-to-device frames carry the opcode little-endian. Device-to-host frames
// are parsed big-endian. The opcode of a response is only used for
// diagnostics.
type Frame struct {
	Type    uint8
	Opcode  uint16
	More    bool
	Payload []byte
}

// lengthByte packs the payload length and the more flag.
func (f Frame) lengthByte() byte {
	b := byte(len(f.Payload))
	if f.More {
		b |= MoreFlag
	}
	return b
}

// EncodeFrame writes f into dst, which must hold at least FrameSize bytes.
// Unused payload bytes are zeroed. It returns the number of meaningful bytes
// (header plus payload), which is what gets clocked out on the link.
func EncodeFrame(dst []byte, f Frame) (int, error) {
	if len(f.Payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: payload of %d bytes", ErrInvalidLength, len(f.Payload))
	}
	if len(dst) < FrameSize {
		return 0, fmt.Errorf("%w: buffer of %d bytes", ErrShortFrame, len(dst))
	}

	dst[0] = f.Type
	binary.LittleEndian.PutUint16(dst[1:3], f.Opcode)
	dst[3] = f.lengthByte()
	n := copy(dst[HeaderSize:FrameSize], f.Payload)
	clear(dst[HeaderSize+n : FrameSize])

	return HeaderSize + n, nil
}

// DecodeFrame parses a device-to-host frame. The returned payload aliases src.
func DecodeFrame(src []byte) (Frame, error) {
	return decodeFrame(src, binary.BigEndian)
}

// DecodeCommandFrame parses a host-to-device frame, as written by
// EncodeFrame. The returned payload aliases src.
func DecodeCommandFrame(src []byte) (Frame, error) {
	return decodeFrame(src, binary.LittleEndian)
}

func decodeFrame(src []byte, order binary.ByteOrder) (Frame, error) {
	if len(src) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(src))
	}

	f := Frame{
		Type:   src[0],
		Opcode: order.Uint16(src[1:3]),
		More:   src[3]&MoreFlag != 0,
	}

	n := int(src[3] & lengthMask)
	if n > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: length field %d", ErrInvalidLength, n)
	}
	if len(src) < HeaderSize+n {
		return Frame{}, fmt.Errorf("%w: %d bytes for payload of %d", ErrShortFrame, len(src), n)
	}
	f.Payload = src[HeaderSize : HeaderSize+n]

	return f, nil
}

// ChunkCommand splits a logical command into COMMAND frames wrapping the AT
// opcode. An empty command still produces one (empty) frame. The payloads
// alias cmd.
func ChunkCommand(cmd []byte) ([]Frame, error) {
	if len(cmd) > MaxCommandSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrOversizedCommand, len(cmd), MaxCommandSize)
	}
	if len(cmd) == 0 {
		return []Frame{{Type: MsgCommand, Opcode: OpATCommand}}, nil
	}

	frames := make([]Frame, 0, (len(cmd)+MaxPayloadSize-1)/MaxPayloadSize)
	for pos := 0; pos < len(cmd); pos += MaxPayloadSize {
		end := min(pos+MaxPayloadSize, len(cmd))
		frames = append(frames, Frame{
			Type:    MsgCommand,
			Opcode:  OpATCommand,
			More:    end < len(cmd),
			Payload: cmd[pos:end],
		})
	}
	return frames, nil
}
