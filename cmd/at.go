// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

var (
	atTrace bool
	atInit  bool
)

var atCmd = &cobra.Command{
	Use:   "at [COMMAND...]",
	Short: "Send AT commands to the module",
	Long: `Send AT commands to the module and print the raw responses.

With arguments, each argument is sent as one command. Without arguments,
commands are read from standard input, one per line, until EOF.

Use --trace to print every SDEP frame on the link.`,
	Example: `  lumen at --port /dev/ttyUSB0 ATI
  lumen at --simulate AT+GATTLIST "AT+GATTCHAR=3"`,
	RunE: runAT,
}

func init() {
	rootCmd.AddCommand(atCmd)
	atCmd.Flags().BoolVar(&atTrace, "trace", false, "Print every frame")
	atCmd.Flags().BoolVar(&atInit, "init", false, "Initialize the module before the first command")
}

func runAT(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	sess, err := openSession(logger, atTrace)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	if atInit {
		if err := sess.d.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize module: %w", err)
		}
	}

	if len(args) > 0 {
		for _, line := range args {
			if err := sendAT(ctx, sess.d, line); err != nil {
				return err
			}
		}
		return nil
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Lumen - AT Console\n")
		fmt.Printf("Connection: %s\n", sess.link.info)
		fmt.Printf("Press Ctrl+D to exit\n\n")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sendAT(ctx, sess.d, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
	return scanner.Err()
}

// sendAT runs one command and prints the response the way the module sent
// it. A rejected command prints ERROR rather than failing.
func sendAT(ctx context.Context, d *bluefruit.Dispatcher, line string) error {
	resp, err := d.ExecuteContext(ctx, line)
	var cmdErr *bluefruit.CommandError
	if errors.As(err, &cmdErr) && errors.Is(err, bluefruit.ErrCommandRejected) {
		fmt.Printf("ERROR (opcode %04X)\n", cmdErr.Opcode)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Print(strings.ReplaceAll(string(resp), "\r\n", "\n"))
	return nil
}
