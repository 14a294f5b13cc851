// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator seeded from FUZZ_SEED (or the
// clock) and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestChunkCommand_FrameCount(t *testing.T) {
	for l := 0; l <= MaxCommandSize; l++ {
		cmd := bytes.Repeat([]byte{'A'}, l)
		frames, err := ChunkCommand(cmd)
		if err != nil {
			t.Fatalf("len %d: unexpected error: %v", l, err)
		}

		want := (l + MaxPayloadSize - 1) / MaxPayloadSize
		if l == 0 {
			want = 1
		}
		if len(frames) != want {
			t.Errorf("len %d: got %d frames, want %d", l, len(frames), want)
		}
	}
}

func TestChunkCommand_MoreFlag(t *testing.T) {
	tests := []struct {
		name string
		len  int
	}{
		{"empty", 0},
		{"single byte", 1},
		{"exactly one frame", 16},
		{"just over one frame", 17},
		{"three frames", 40},
		{"max", MaxCommandSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := ChunkCommand(bytes.Repeat([]byte{'x'}, tt.len))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i, f := range frames {
				last := i == len(frames)-1
				if f.More == last {
					t.Errorf("frame %d/%d: More = %v", i+1, len(frames), f.More)
				}
				if f.Type != MsgCommand || f.Opcode != OpATCommand {
					t.Errorf("frame %d: type 0x%02X opcode 0x%04X", i, f.Type, f.Opcode)
				}
				if !last && len(f.Payload) != MaxPayloadSize {
					t.Errorf("frame %d: non-final payload of %d bytes", i, len(f.Payload))
				}
			}
		})
	}
}

func TestChunkCommand_Oversized(t *testing.T) {
	for _, l := range []int{MaxCommandSize + 1, 130, 500} {
		_, err := ChunkCommand(make([]byte, l))
		if !errors.Is(err, ErrOversizedCommand) {
			t.Errorf("len %d: got %v, want ErrOversizedCommand", l, err)
		}
	}
}

func TestChunkCommand_Fuzz(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		cmd := make([]byte, rng.Intn(MaxCommandSize+1))
		rng.Read(cmd)

		frames, err := ChunkCommand(cmd)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}

		var joined []byte
		for _, f := range frames {
			joined = append(joined, f.Payload...)
		}
		if !bytes.Equal(joined, cmd) {
			t.Fatalf("round %d: reassembled %x, want %x", i, joined, cmd)
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	var buf [FrameSize]byte
	for i := range buf {
		buf[i] = 0xFF
	}

	n, err := EncodeFrame(buf[:], Frame{
		Type:    MsgCommand,
		Opcode:  OpATCommand,
		More:    true,
		Payload: []byte("ATI"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != HeaderSize+3 {
		t.Errorf("n = %d, want %d", n, HeaderSize+3)
	}

	want := []byte{0x10, 0x00, 0x0A, 0x83, 'A', 'T', 'I'}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("header+payload = % X, want % X", buf[:n], want)
	}
	for i := n; i < FrameSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("byte %d not zeroed: 0x%02X", i, buf[i])
		}
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	var buf [FrameSize]byte
	if _, err := EncodeFrame(buf[:], Frame{Payload: make([]byte, 17)}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("17-byte payload: got %v", err)
	}
	if _, err := EncodeFrame(buf[:10], Frame{}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short buffer: got %v", err)
	}
}

func TestDecodeCommandFrame_RoundTrip(t *testing.T) {
	var buf [FrameSize]byte
	in := Frame{Type: MsgCommand, Opcode: OpATCommand, More: true, Payload: []byte("AT+GATTLIST")}
	n, err := EncodeFrame(buf[:], in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeCommandFrame(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.Opcode != in.Opcode || out.More != in.More || !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if _, err := DecodeCommandFrame([]byte{0x10, 0x00, 0x0A, 0x05, 'A'}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("truncated payload: got %v", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		want    Frame
		wantErr error
	}{
		{
			name: "final response",
			raw:  append([]byte{0x20, 0x0A, 0x00, 0x04}, "OK\r\n"...),
			want: Frame{Type: MsgResponse, Opcode: OpATCommand, Payload: []byte("OK\r\n")},
		},
		{
			name: "continued response",
			raw:  append([]byte{0x20, 0x0A, 0x00, 0x82}, "42"...),
			want: Frame{Type: MsgResponse, Opcode: OpATCommand, More: true, Payload: []byte("42")},
		},
		{
			name: "error frame",
			raw:  []byte{0x80, 0x0A, 0x00, 0x00},
			want: Frame{Type: MsgError, Opcode: OpATCommand, Payload: []byte{}},
		},
		{
			name:    "length over 16",
			raw:     append([]byte{0x20, 0x0A, 0x00, 0x11}, make([]byte, 16)...),
			wantErr: ErrInvalidLength,
		},
		{
			name:    "truncated header",
			raw:     []byte{0x20, 0x0A},
			wantErr: ErrShortFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Type != tt.want.Type || got.Opcode != tt.want.Opcode || got.More != tt.want.More {
				t.Errorf("got %s, want %s", FormatFrame(got), FormatFrame(tt.want))
			}
			if !bytes.Equal(got.Payload, tt.want.Payload) {
				t.Errorf("payload %q, want %q", got.Payload, tt.want.Payload)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	got := FormatFrame(Frame{Type: MsgCommand, Opcode: OpATCommand, More: true, Payload: []byte("AT\n")})
	want := `COMMAND AT_WRAPPER len=3 more "AT\n"`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if s := FormatMessageType(0x33); s != "UNKNOWN(0x33)" {
		t.Errorf("unknown type formatted as %s", s)
	}
	if s := FormatOpcode(0x1234); s != "0x1234" {
		t.Errorf("unknown opcode formatted as %s", s)
	}
}
