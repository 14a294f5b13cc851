// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdep

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the link statistics.
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	Commands       uint64
	FramesSent     uint64
	BytesSent      uint64
	FramesReceived uint64
	BytesReceived  uint64

	Responses    uint64
	RemoteErrors uint64 // ERROR frames
	OtherReplies uint64 // ALERT or unknown frame types
	Timeouts     uint64
	Oversized    uint64
	LinkErrors   uint64

	// Rates (calculated)
	CommandRate float64 // commands/sec
	ErrorRate   float64 // errors/sec
}

// Errors is the total of all failure counters.
func (c Counters) Errors() uint64 {
	return c.RemoteErrors + c.OtherReplies + c.Timeouts + c.Oversized + c.LinkErrors
}

// Statistics tracks traffic and failures on one transport. It is safe for
// concurrent use; the monitor reads it while units drive the link.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

func (s *Statistics) update(fn func(c *Counters)) {
	s.mu.Lock()
	fn(&s.c)
	s.c.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

func (s *Statistics) recordCommand()   { s.update(func(c *Counters) { c.Commands++ }) }
func (s *Statistics) recordTimeout()   { s.update(func(c *Counters) { c.Timeouts++ }) }
func (s *Statistics) recordOversized() { s.update(func(c *Counters) { c.Oversized++ }) }
func (s *Statistics) recordLinkError() { s.update(func(c *Counters) { c.LinkErrors++ }) }

func (s *Statistics) recordSent(n int) {
	s.update(func(c *Counters) {
		c.FramesSent++
		c.BytesSent += uint64(n)
	})
}

func (s *Statistics) recordReceived(n int) {
	s.update(func(c *Counters) {
		c.FramesReceived++
		c.BytesReceived += uint64(n)
	})
}

func (s *Statistics) recordResponse(msgType uint8) {
	s.update(func(c *Counters) {
		switch msgType {
		case MsgResponse:
			c.Responses++
		case MsgError:
			c.RemoteErrors++
		default:
			c.OtherReplies++
		}
	})
}

// Snapshot returns a copy of the counters with rates filled in.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.CommandRate = float64(c.Commands) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var okPercent, errPercent float64
	if c.Commands > 0 {
		okPercent = float64(c.Responses) * 100.0 / float64(c.Commands)
		errPercent = float64(c.Errors()) * 100.0 / float64(c.Commands)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands:        %8d\n", c.Commands)
	result += fmt.Sprintf("Responses:       %8d (%.1f%%)\n", c.Responses, okPercent)
	result += fmt.Sprintf("Frames TX/RX:    %8d / %d\n", c.FramesSent, c.FramesReceived)
	result += fmt.Sprintf("Bytes TX/RX:     %8d / %d\n", c.BytesSent, c.BytesReceived)

	if c.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", c.Errors(), errPercent)
		if c.RemoteErrors > 0 {
			result += fmt.Sprintf("  Rejected:         %5d\n", c.RemoteErrors)
		}
		if c.OtherReplies > 0 {
			result += fmt.Sprintf("  Unexpected type:  %5d\n", c.OtherReplies)
		}
		if c.Timeouts > 0 {
			result += fmt.Sprintf("  Timeouts:         %5d\n", c.Timeouts)
		}
		if c.Oversized > 0 {
			result += fmt.Sprintf("  Oversized:        %5d\n", c.Oversized)
		}
		if c.LinkErrors > 0 {
			result += fmt.Sprintf("  Link errors:      %5d\n", c.LinkErrors)
		}
	}

	result += fmt.Sprintf("Command Rate:    %8.1f cmds/sec\n", c.CommandRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "=====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
