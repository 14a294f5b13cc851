// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"fmt"
	"strconv"
)

// FormatFrame formats a frame into a human-readable single line
func FormatFrame(f Frame) string {
	more := ""
	if f.More {
		more = " more"
	}
	return fmt.Sprintf("%s %s len=%d%s %s",
		FormatMessageType(f.Type), FormatOpcode(f.Opcode), len(f.Payload), more, FormatPayload(f.Payload))
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgCommand:
		return "COMMAND"
	case MsgResponse:
		return "RESPONSE"
	case MsgAlert:
		return "ALERT"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", msgType)
	}
}

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op uint16) string {
	switch op {
	case OpInitialize:
		return "INITIALIZE"
	case OpATCommand:
		return "AT_WRAPPER"
	case OpUARTTx:
		return "UART_TX"
	case OpUARTRx:
		return "UART_RX"
	default:
		return fmt.Sprintf("0x%04X", op)
	}
}

// FormatPayload renders payload bytes as a quoted string, escaping control
// characters so CR/LF terminators stay visible.
func FormatPayload(p []byte) string {
	if len(p) == 0 {
		return `""`
	}
	return strconv.Quote(string(p))
}
