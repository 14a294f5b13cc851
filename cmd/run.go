// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/node"
	"github.com/Thermoquad/lumen/internal/sim"
)

var (
	runLux          float64
	runBatteryVolts float64
	runPixels       int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor node",
	Long: `Boot the sensor node and run its units until interrupted.

Boot reads the bootstrap file, factory resets the module if the reset marker
exists, writes every characteristic's default, and counts the boot. The units
then sample light and motion, publish readings, and apply thresholds written
by a central.

Sensors, LED, pixels, and watchdog are simulated; --lux, --battery-volts,
and --pixels set what they report.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Float64Var(&runLux, "lux", 100, "Simulated ambient light")
	runCmd.Flags().Float64Var(&runBatteryVolts, "battery-volts", 3.9, "Simulated battery voltage")
	runCmd.Flags().IntVar(&runPixels, "pixels", 8, "Simulated pixel strip length")
}

func runNode(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	sess, err := openSession(logger, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	if err := sess.d.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize module: %w", err)
	}

	hw := node.Peripherals{
		Light:    sim.NewLightSensor(runLux),
		Accel:    &sim.Accelerometer{},
		Battery:  sim.NewBattery(runBatteryVolts),
		LED:      &sim.LED{},
		Pixels:   sim.NewPixels(runPixels, 1),
		Watchdog: &sim.Watchdog{},
	}
	store := config.NewStore(config.Options, logger)
	n := node.New(store, sess.d, hw, node.DefaultPeriods(), logger)

	count, err := n.Boot(ctx, node.BootOptions{
		Bootstrap:   cfg.Files.Bootstrap,
		ResetMarker: cfg.Files.ResetMarker,
		Settle:      cfg.Timing.ResetSettle,
	})
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	logger.Info("node started", "boot", count, "link", sess.link.info)

	sched := n.Scheduler()
	err = sched.Run(ctx)
	for _, st := range sched.Status() {
		logger.Debug("unit", "name", st.Name, "state", st.State, "runs", st.Runs)
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("stopped")
		return nil
	}
	return err
}
