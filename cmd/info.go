// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the module's identity, GATT table, and connection state",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	sess, err := openSession(logger, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	info, err := bluefruit.DumpInfo(ctx, sess.d, logger)
	if err != nil {
		return err
	}
	connected, err := bluefruit.Connected(ctx, sess.d)
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n", sess.link.info)
	printInfo(info)
	if connected {
		fmt.Printf("Central:    connected\n")
	} else {
		fmt.Printf("Central:    none\n")
	}
	return nil
}

func printInfo(info bluefruit.Info) {
	fmt.Printf("Identity:\n")
	for _, line := range info.Identity {
		fmt.Printf("  %s\n", line)
	}
	if len(info.Services) == 0 {
		fmt.Printf("GATT:       no services\n")
		return
	}
	fmt.Printf("GATT:\n")
	for _, line := range info.Services {
		fmt.Printf("  %s\n", line)
	}
}
