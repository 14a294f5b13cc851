// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/scheduler"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending AT and waiting for OK",
	Long: `Send the bare "AT" command repeatedly and check each reply is OK.

Exit codes:
  0 - Every command was acknowledged
  1 - At least one command failed or timed out
  2 - Connection error

Useful for checking a bridge board or SPI wiring before provisioning.`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "Number of commands to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 500*time.Millisecond, "Delay between commands")
}

func runPing(cmd *cobra.Command, args []string) error {
	sess, err := openSession(slog.Default(), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Lumen - Link Test\n")
	fmt.Printf("Connection: %s\n", sess.link.info)
	fmt.Printf("Sending %d commands...\n\n", pingCount)

	ctx := cmd.Context()
	failed := 0
	for i := 1; i <= pingCount; i++ {
		start := time.Now()
		_, err := sess.d.ExecuteOKContext(ctx, "AT", 0)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			failed++
			fmt.Printf("%3d: FAILED: %v\n", i, err)
		} else {
			fmt.Printf("%3d: OK in %s\n", i, time.Since(start).Round(time.Microsecond))
		}
		if i < pingCount {
			if err := scheduler.Sleep(ctx, pingInterval); err != nil {
				break
			}
		}
	}

	fmt.Printf("\n%s", sess.tr.Stats())
	closeErr := sess.Close()

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d commands failed\n", failed, pingCount)
		os.Exit(1)
	}
	return closeErr
}
