// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

var provisionName string

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Factory reset the module and install the node's GATT service",
	Long: `Factory reset the module, set its device name, add the node's service
and characteristics, and write every characteristic's default value.

The device name comes from --name, or DEVICE_NAME in the bootstrap file.
This erases anything the module has stored, including the boot count.`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().StringVar(&provisionName, "name", "", "GAP device name (default from the bootstrap file)")
}

func runProvision(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	name := provisionName
	if name == "" {
		store := config.NewStore(config.Options, logger)
		if _, err := store.BootstrapFile(cfg.Files.Bootstrap); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		name = store.String(config.DeviceName)
	}

	sess, err := openSession(logger, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("Lumen - Provision\n")
	fmt.Printf("Connection: %s\n", sess.link.info)
	fmt.Printf("Device name: %s\n\n", name)

	ctx := cmd.Context()
	if err := sess.provision(ctx, name, logger); err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	if err := gatt.Characteristics.WriteDefaults(ctx, sess.d, logger); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	info, err := bluefruit.DumpInfo(ctx, sess.d, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Provisioned %d characteristics\n", gatt.Characteristics.Len())
	printInfo(info)
	return nil
}
