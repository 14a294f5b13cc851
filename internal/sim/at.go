// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// identity is the ATI answer of a stock SPI Friend.
var identity = []string{
	"BLESPIFRIEND",
	"nRF51822 QFACA10",
	"C5B1C9A4D0E23A7E",
	"0.8.1",
	"0.8.1",
	"Dec 13 2018",
	"S110 8.0.0, 0.2",
}

// execute runs one AT command line. It returns the response payload
// (including the OK trailer) and false if the module would reply with an
// SDEP error. The caller holds the lock.
func (d *Device) execute(line string) ([]byte, bool) {
	line = strings.TrimRight(line, "\r\n")
	name, arg, hasArg := strings.Cut(line, "=")
	name = strings.ToUpper(strings.TrimSpace(name))

	out, err := d.dispatch(name, arg, hasArg)
	if err != nil {
		d.logger.Debug("command failed", "cmd", line, "err", err)
		return nil, false
	}
	d.logger.Debug("command", "cmd", line)
	return append(out, "OK\r\n"...), true
}

func (d *Device) dispatch(name, arg string, hasArg bool) ([]byte, error) {
	switch name {
	case "AT":
		return nil, nil
	case "ATZ":
		d.connected = false
		return nil, nil
	case "ATI":
		return joinLines(identity), nil
	case "AT+FACTORYRESET":
		d.state = factoryState()
		d.connected = false
		return nil, nil
	case "AT+GAPDEVNAME":
		if !hasArg {
			return joinLines([]string{d.state.DeviceName}), nil
		}
		d.state.DeviceName = arg
		return nil, nil
	case "AT+GAPGETCONN":
		if d.connected {
			return joinLines([]string{"1"}), nil
		}
		return joinLines([]string{"0"}), nil
	case "AT+GATTADDSERVICE":
		return d.addService(arg)
	case "AT+GATTADDCHAR":
		return d.addChar(arg)
	case "AT+GATTCHAR":
		return d.gattChar(arg)
	case "AT+GATTLIST":
		return d.gattList(), nil
	case "AT+GATTCLEAR":
		d.state.Service = nil
		d.state.Attributes = nil
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown command %s", name)
	}
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

// params splits "KEY=value,KEY=value".
func params(arg string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(arg, ",") {
		k, v, _ := strings.Cut(kv, "=")
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func (d *Device) addService(arg string) ([]byte, error) {
	p := params(arg)
	raw, ok := p["UUID128"]
	if !ok {
		return nil, fmt.Errorf("missing UUID128")
	}
	u, err := uuid.Parse(strings.ReplaceAll(raw, "-", ""))
	if err != nil {
		return nil, fmt.Errorf("service uuid %q: %w", raw, err)
	}
	if d.state.Service != nil {
		return nil, fmt.Errorf("service already defined")
	}
	d.state.Service = u[:]
	return joinLines([]string{"1"}), nil
}

func (d *Device) addChar(arg string) ([]byte, error) {
	if d.state.Service == nil {
		return nil, fmt.Errorf("no service")
	}
	p := params(arg)

	u, err := strconv.ParseUint(strings.TrimPrefix(p["UUID"], "0x"), 16, 16)
	if err != nil {
		return nil, fmt.Errorf("uuid %q: %w", p["UUID"], err)
	}
	props, err := strconv.ParseUint(strings.TrimPrefix(p["PROPERTIES"], "0x"), 16, 8)
	if err != nil {
		return nil, fmt.Errorf("properties %q: %w", p["PROPERTIES"], err)
	}
	minLen, err := strconv.Atoi(p["MIN_LEN"])
	if err != nil {
		return nil, fmt.Errorf("min_len %q: %w", p["MIN_LEN"], err)
	}
	maxLen, err := strconv.Atoi(p["MAX_LEN"])
	if err != nil || maxLen < minLen || maxLen < 1 || maxLen > 20 {
		return nil, fmt.Errorf("max_len %q", p["MAX_LEN"])
	}

	a := Attribute{
		UUID:       uint16(u),
		Properties: uint8(props),
		MinLen:     minLen,
		MaxLen:     maxLen,
		Value:      make([]byte, maxLen),
	}
	if v, ok := p["VALUE"]; ok {
		if err := setValue(&a, v); err != nil {
			return nil, err
		}
	}
	d.state.Attributes = append(d.state.Attributes, a)
	return joinLines([]string{strconv.Itoa(len(d.state.Attributes))}), nil
}

func (d *Device) gattChar(arg string) ([]byte, error) {
	idxText, value, write := strings.Cut(arg, ",")
	idx, err := strconv.Atoi(strings.TrimSpace(idxText))
	if err != nil || idx < 1 || idx > len(d.state.Attributes) {
		return nil, fmt.Errorf("no characteristic %q", idxText)
	}
	a := &d.state.Attributes[idx-1]

	if write {
		return nil, setValue(a, value)
	}
	return joinLines([]string{formatValue(a.Value)}), nil
}

func (d *Device) gattList() []byte {
	if d.state.Service == nil {
		return nil
	}
	u, _ := uuid.FromBytes(d.state.Service)
	lines := []string{fmt.Sprintf("ID=01,UUID=%s", formatValue(u[:]))}
	for i, a := range d.state.Attributes {
		lines = append(lines, fmt.Sprintf("  ID=%02d,UUID=0x%04X,PROPERTIES=0x%02X,MIN_LEN=%d,MAX_LEN=%d,VALUE=%s",
			i+1, a.UUID, a.Properties, a.MinLen, a.MaxLen, formatValue(a.Value)))
	}
	return joinLines(lines)
}

// setValue parses "0x1f4" (a big-endian number padded to the attribute's
// width) or "01-F4" (explicit bytes).
func setValue(a *Attribute, text string) error {
	text = strings.TrimSpace(text)
	var b []byte
	if strings.Contains(text, "-") {
		raw, err := hex.DecodeString(strings.ReplaceAll(text, "-", ""))
		if err != nil {
			return fmt.Errorf("value %q: %w", text, err)
		}
		b = raw
	} else {
		n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(text), "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("value %q: %w", text, err)
		}
		b = make([]byte, a.MaxLen)
		for i := len(b) - 1; i >= 0; i-- {
			b[i] = byte(n)
			n >>= 8
		}
		if n != 0 {
			return fmt.Errorf("value %q exceeds %d bytes", text, a.MaxLen)
		}
	}
	if len(b) < a.MinLen || len(b) > a.MaxLen {
		return fmt.Errorf("value %q: %d bytes, want %d..%d", text, len(b), a.MinLen, a.MaxLen)
	}
	a.Value = b
	return nil
}

// formatValue renders bytes the way the module prints them: "00-00-01-F4".
func formatValue(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, "-")
}
