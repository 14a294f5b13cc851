// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

// BootOptions locates the files read at boot.
type BootOptions struct {
	// Bootstrap is the option file. A missing file leaves the defaults.
	Bootstrap string
	// ResetMarker requests a factory reset of the BLE module when it exists
	// as a regular file. It is removed once the reset succeeds.
	ResetMarker string
	// Settle is the delay after each module reset.
	Settle time.Duration
}

// Boot loads the options, prepares the BLE module, counts the boot, and arms
// the watchdog. It returns the new boot count.
func (n *Node) Boot(ctx context.Context, opts BootOptions) (uint32, error) {
	n.loadOptions(opts.Bootstrap)

	if n.resetRequested(opts.ResetMarker) {
		p := gatt.Provisioning(n.store.String(config.DeviceName), opts.Settle)
		if err := gatt.Characteristics.FactoryReset(ctx, n.ex, p, n.logger); err != nil {
			return 0, err
		}
		if err := os.Remove(opts.ResetMarker); err != nil {
			return 0, fmt.Errorf("remove reset marker: %w", err)
		}
	}

	bootCount := gatt.Get(gatt.IdxBootCount)
	prev, err := bootCount.ReadContext(ctx, n.ex)
	if err != nil {
		return 0, fmt.Errorf("read boot count: %w", err)
	}

	if err := gatt.Characteristics.WriteDefaults(ctx, n.ex, n.logger); err != nil {
		return 0, fmt.Errorf("set initial values: %w", err)
	}
	if _, err := bluefruit.DumpInfo(ctx, n.ex, n.logger); err != nil {
		return 0, fmt.Errorf("dump module info: %w", err)
	}

	count := uint32(prev.Uint())
	if prev.IsSentinel() {
		count = 0
	}
	count++
	if err := bootCount.WriteContext(ctx, n.ex, bootCount.Format.FromUint(uint64(count))); err != nil {
		return 0, fmt.Errorf("write boot count: %w", err)
	}
	n.logger.Debug("boot count", "count", count)

	timeout := seconds(n.store.Float(config.WatchdogTimeout))
	n.logger.Debug("arming watchdog", "timeout", timeout)
	if err := n.hw.Watchdog.Arm(timeout); err != nil {
		return 0, fmt.Errorf("arm watchdog: %w", err)
	}
	return count, nil
}

func (n *Node) loadOptions(path string) {
	n.logger.Info("initializing the configuration")
	if path != "" {
		applied, err := n.store.BootstrapFile(path)
		switch {
		case err != nil:
			n.logger.Warn("failed to open the configuration file", "path", path, "err", err)
		default:
			n.logger.Debug("applied configuration file", "path", path, "options", applied)
		}
	}
	n.store.Dump()
}

func (n *Node) resetRequested(marker string) bool {
	if marker == "" {
		return false
	}
	fi, err := os.Stat(marker)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		n.logger.Debug("no reset marker", "path", marker)
		return false
	case err != nil:
		n.logger.Warn("cannot stat reset marker", "path", marker, "err", err)
		return false
	case !fi.Mode().IsRegular():
		n.logger.Debug("reset marker exists but is not a regular file", "path", marker)
		return false
	}
	n.logger.Debug("found reset marker, will factory reset", "path", marker)
	return true
}
