// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/lumen/pkg/sdep"
)

// traceLink prints every frame crossing the link.
type traceLink struct {
	sdep.Link
}

func newTraceLink(l sdep.Link) sdep.Link {
	if r, ok := l.(sdep.Resetter); ok {
		return &traceResetLink{traceLink: traceLink{Link: l}, r: r}
	}
	return &traceLink{Link: l}
}

func (t *traceLink) WriteFrame(frame []byte) error {
	printFrame("TX", frame, true)
	return t.Link.WriteFrame(frame)
}

func (t *traceLink) ReadFrame(buf []byte) error {
	if err := t.Link.ReadFrame(buf); err != nil {
		return err
	}
	printFrame("RX", buf, false)
	return nil
}

// traceResetLink keeps the wrapped link's Reset visible to the transport.
type traceResetLink struct {
	traceLink
	r sdep.Resetter
}

func (t *traceResetLink) Reset() error {
	fmt.Printf("[%s] RESET\n", time.Now().Format("15:04:05.000"))
	return t.r.Reset()
}

func printFrame(dir string, raw []byte, tx bool) {
	ts := time.Now().Format("15:04:05.000")
	var (
		f   sdep.Frame
		err error
	)
	if tx {
		f, err = sdep.DecodeCommandFrame(raw)
	} else {
		f, err = sdep.DecodeFrame(raw)
	}
	if err != nil {
		fmt.Printf("[%s] %s [ERROR] %v: %x\n", ts, dir, err, raw)
		return
	}
	fmt.Printf("[%s] %s %s\n", ts, dir, sdep.FormatFrame(f))
}
