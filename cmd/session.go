// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"log/slog"

	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
	"github.com/Thermoquad/lumen/pkg/sdep"
)

// session is an open link with its transport and dispatcher.
type session struct {
	link *link
	tr   *sdep.Transport
	d    *bluefruit.Dispatcher
}

// openSession opens the configured link and wraps it for AT commands. With
// trace set, every frame is printed.
func openSession(logger *slog.Logger, trace bool) (*session, error) {
	l, err := OpenLink(logger)
	if err != nil {
		return nil, err
	}

	var phys sdep.Link = l.Link
	if trace {
		phys = newTraceLink(phys)
	}
	tr := sdep.NewTransport(phys, sdep.Options{
		Timing: sdep.Timing{
			FrameDelay:      cfg.Timing.FrameDelay,
			PollInterval:    cfg.Timing.PollInterval,
			ResponseTimeout: cfg.Timing.ResponseTimeout,
		},
		Logger: logger,
	})
	return &session{link: l, tr: tr, d: bluefruit.NewDispatcher(tr, logger)}, nil
}

// provision factory-resets the module with the node's GATT service.
func (s *session) provision(ctx context.Context, deviceName string, logger *slog.Logger) error {
	p := gatt.Provisioning(deviceName, cfg.Timing.ResetSettle)
	return gatt.Characteristics.FactoryReset(ctx, s.d, p, logger)
}

func (s *session) Close() error {
	return s.link.Close()
}
