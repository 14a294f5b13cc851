// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/config"
	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/internal/hostble"
)

var (
	hostName     string
	hostScanTime time.Duration
	hostListen   string
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Talk to a running node over Bluetooth LE, as a central",
	Long: `Scan for a node by its device name, connect, and read or write its
characteristics over the air.

With --simulate, the central talks to the simulated module from the state
file instead of the host's Bluetooth adapter.`,
}

var hostReadCmd = &cobra.Command{
	Use:   "read [CHAR]",
	Short: "Read one or every published characteristic",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHostRead,
}

var hostWriteCmd = &cobra.Command{
	Use:     "write CHAR VALUE",
	Short:   "Write an intake characteristic",
	Example: `  lumen host write light_threshold_wr 25 --name "Porch"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runHostWrite,
}

var hostServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the node's characteristics as a JSON API",
	Long: `Stay connected to the node and serve its characteristics over HTTP:

  GET /attributes          every published characteristic
  GET /attributes/{name}   one characteristic
  PUT /attributes/{name}   write an intake characteristic, body {"value": 25}`,
	Args: cobra.NoArgs,
	RunE: runHostServe,
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.AddCommand(hostReadCmd, hostWriteCmd, hostServeCmd)
	hostCmd.PersistentFlags().StringVar(&hostName, "name", "", "Device name to scan for (default DEVICE_NAME from the bootstrap file)")
	hostCmd.PersistentFlags().DurationVar(&hostScanTime, "scan-time", 10*time.Second, "How long to scan before giving up")
	hostServeCmd.Flags().StringVar(&hostListen, "listen", ":8090", "HTTP listen address")
}

// dialNode scans for and connects to the node. The returned function
// disconnects and, for a simulated module, saves its state.
func dialNode(ctx context.Context, logger *slog.Logger) (*hostble.Client, func(), error) {
	name := hostName
	if name == "" {
		store := config.NewStore(config.Options, logger)
		if _, err := store.BootstrapFile(cfg.Files.Bootstrap); err != nil {
			logger.Debug("no bootstrap file, using default device name", "err", err)
		}
		name = store.String(config.DeviceName)
	}

	var (
		adapter hostble.Adapter
		save    = func() {}
	)
	if cfg.Link.Simulate {
		dev, err := openSimulator(logger)
		if err != nil {
			return nil, nil, err
		}
		dev.SetConnected(true)
		adapter = hostble.NewSimAdapter(dev)
		save = func() {
			if err := saveSimulator(dev); err != nil {
				logger.Error("failed to save simulator state", "err", err)
			}
		}
	} else {
		adapter = hostble.NewTinyGoAdapter()
	}

	scanCtx, cancel := context.WithTimeout(ctx, hostScanTime)
	defer cancel()
	c, err := hostble.Dial(scanCtx, adapter, name, gatt.Service, gatt.Characteristics, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		save()
	}, nil
}

func runHostRead(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	c, closeFn, err := dialNode(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if len(args) == 1 {
		ch, err := lookupChar(args[0])
		if err != nil {
			return err
		}
		r, err := c.Read(ch)
		if err != nil {
			return err
		}
		fmt.Println(r)
		return nil
	}

	readings, err := c.ReadAll()
	if err != nil {
		return err
	}
	for _, r := range readings {
		fmt.Printf("%-20s %s\n", r.Characteristic.Name, r)
	}
	return nil
}

func runHostWrite(cmd *cobra.Command, args []string) error {
	ch, err := lookupChar(args[0])
	if err != nil {
		return err
	}
	v, err := parseCharValue(ch, args[1])
	if err != nil {
		return err
	}

	logger := slog.Default()
	c, closeFn, err := dialNode(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Write(ch, v); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", ch.Name, formatCharValue(ch, v))
	return nil
}

func runHostServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	ctx := cmd.Context()
	c, closeFn, err := dialNode(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	hs := &http.Server{
		Addr:              hostListen,
		Handler:           hostble.Handler(c, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hs.Shutdown(shutdownCtx)
	}()

	logger.Info("serving attribute API", "addr", hostListen)
	if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
