// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/lumen/internal/sim"
	"github.com/Thermoquad/lumen/internal/spilink"
	"github.com/Thermoquad/lumen/pkg/sdep"
)

// Connection carries the frame bridge protocol over serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// Read next message from WebSocket (non-recursive loop to avoid stack overflow)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Mark connection as closed to prevent further read attempts
			w.closed = true
			return 0, err
		}

		// The bridge protocol only uses binary messages
		if messageType != websocket.BinaryMessage {
			// Skip non-binary messages and continue loop
			continue
		}

		// Buffer the message and return what fits
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// NewWebSocketConnection wraps an accepted WebSocket connection
func NewWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{conn: conn}
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	// Create dialer with timeout
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	// Build HTTP headers with Basic auth
	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	// Connect
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("LUMEN_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// link is an open SDEP link and what it takes to release it.
type link struct {
	sdep.Link
	info  string
	sim   *sim.Device
	close func() error
}

// Close releases the link. A simulated module saves its GATT table.
func (l *link) Close() error {
	if l.sim != nil {
		if err := saveSimulator(l.sim); err != nil {
			return err
		}
	}
	if l.close != nil {
		return l.close()
	}
	return nil
}

// OpenLink opens the link selected by the settings: SPI, WebSocket bridge,
// serial bridge, or simulator, in that order
func OpenLink(logger *slog.Logger) (*link, error) {
	lc := cfg.Link
	switch {
	case lc.SPI.Device != "":
		l, err := spilink.Open(spilink.Config{
			Device:   lc.SPI.Device,
			IRQ:      lc.SPI.IRQ,
			Reset:    lc.SPI.Reset,
			SpeedKHz: lc.SPI.SpeedKHz,
		})
		if err != nil {
			return nil, err
		}
		return &link{Link: l, info: fmt.Sprintf("SPI: %s", l), close: l.Close}, nil

	case lc.URL != "":
		password := ""
		if lc.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}
		conn, err := OpenWebSocketConnection(lc.URL, lc.Username, password, lc.NoSSLVerify)
		if err != nil {
			return nil, err
		}
		return &link{Link: sdep.NewBridgeLink(conn), info: fmt.Sprintf("WebSocket: %s", lc.URL), close: conn.Close}, nil

	case lc.Port != "":
		conn, err := OpenSerialConnection(lc.Port, lc.Baud)
		if err != nil {
			return nil, err
		}
		return &link{
			Link:  sdep.NewBridgeLink(conn),
			info:  fmt.Sprintf("Serial: %s @ %d baud", lc.Port, lc.Baud),
			close: conn.Close,
		}, nil

	case lc.Simulate:
		dev, err := openSimulator(logger)
		if err != nil {
			return nil, err
		}
		return &link{Link: dev, info: "Simulated module", sim: dev}, nil
	}

	return nil, fmt.Errorf("one of --spi, --url, --port, or --simulate must be specified")
}

// openSimulator creates a simulated module with its saved GATT table.
func openSimulator(logger *slog.Logger) (*sim.Device, error) {
	dev := sim.NewDevice(logger)
	if cfg.Files.SimState != "" {
		if err := dev.LoadFile(cfg.Files.SimState); err != nil {
			return nil, fmt.Errorf("load simulator state: %w", err)
		}
	}
	return dev, nil
}

// saveSimulator writes the module's GATT table to the state file.
func saveSimulator(dev *sim.Device) error {
	if cfg.Files.SimState == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Files.SimState), 0o755); err != nil {
		return err
	}
	if err := dev.SaveFile(cfg.Files.SimState); err != nil {
		return fmt.Errorf("save simulator state: %w", err)
	}
	return nil
}
