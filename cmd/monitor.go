// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive view of the module's characteristics",
	Long: `Poll every characteristic of the node's GATT service and show the
values alongside link statistics.

Select an intake characteristic and press 'e' to write a new value, as a
central would. Log output is discarded while the view is open.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "Time between polls")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// Log lines would tear the alternate screen
	logger := slog.New(slog.DiscardHandler)

	sess, err := openSession(logger, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.d.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("initialize module: %w", err)
	}

	p := tea.NewProgram(initialMonitorModel(sess, monitorInterval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
