// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/internal/scheduler"
	"github.com/Thermoquad/lumen/internal/sim"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
	"github.com/Thermoquad/lumen/pkg/sdep"
)

var (
	simListen    string
	simPath      string
	simServePort string
	simProvision string
	simConnected bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve a simulated module over the frame bridge protocol",
	Long: `Run a simulated Bluefruit module and expose it as a frame bridge, so the
other commands can reach it with --url or --port.

The module's GATT table is loaded from and saved to the simulator state file.
One bridge client is served at a time.`,
	Example: `  lumen sim --listen :8080 --provision "Porch"
  lumen info --url ws://localhost:8080/sdep`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.Flags().StringVar(&simListen, "listen", ":8080", "WebSocket listen address (empty to disable)")
	simCmd.Flags().StringVar(&simPath, "path", "/sdep", "WebSocket endpoint path")
	simCmd.Flags().StringVar(&simServePort, "serve-port", "", "Also serve the bridge on this serial port")
	simCmd.Flags().StringVar(&simProvision, "provision", "", "Factory reset with this device name before serving")
	simCmd.Flags().BoolVar(&simConnected, "connected", false, "Report a connected central")
}

// bridgeServer serves one bridge client at a time against dev.
type bridgeServer struct {
	mu     sync.Mutex
	dev    *sim.Device
	logger *slog.Logger
}

func (b *bridgeServer) serve(rw Connection, peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("bridge client connected", "peer", peer)
	err := sdep.ServeBridge(rw, b.dev)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		b.logger.Warn("bridge client failed", "peer", peer, "err", err)
	}
	b.logger.Info("bridge client disconnected", "peer", peer)
	if err := saveSimulator(b.dev); err != nil {
		b.logger.Error("failed to save simulator state", "err", err)
	}
}

func (b *bridgeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "peer", r.RemoteAddr, "err", err)
		return
	}
	c := NewWebSocketConnection(conn)
	defer c.Close()
	b.serve(c, r.RemoteAddr)
}

func runSim(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	if simListen == "" && simServePort == "" {
		return fmt.Errorf("one of --listen or --serve-port must be set")
	}

	dev, err := openSimulator(logger)
	if err != nil {
		return err
	}
	dev.SetConnected(simConnected)

	ctx := cmd.Context()
	if simProvision != "" {
		if err := provisionSimulator(ctx, dev, simProvision, logger); err != nil {
			return err
		}
		logger.Info("provisioned simulator", "name", simProvision)
	}

	srv := &bridgeServer{dev: dev, logger: logger}
	g, gctx := errgroup.WithContext(ctx)

	if simListen != "" {
		mux := http.NewServeMux()
		mux.Handle(simPath, srv)
		hs := &http.Server{Addr: simListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("serving bridge", "addr", simListen, "path", simPath)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	if simServePort != "" {
		port, err := serial.Open(simServePort, &serial.Mode{BaudRate: cfg.Link.Baud})
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", simServePort, err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return port.Close()
		})
		g.Go(func() error {
			logger.Info("serving bridge", "port", simServePort, "baud", cfg.Link.Baud)
			for {
				srv.serve(&SerialConnection{port: port}, simServePort)
				if err := scheduler.Sleep(gctx, 100*time.Millisecond); err != nil {
					return nil
				}
			}
		})
	}

	err = g.Wait()
	if saveErr := saveSimulator(dev); err == nil {
		err = saveErr
	}
	return err
}

// provisionSimulator factory-resets dev with the node's GATT service.
func provisionSimulator(ctx context.Context, dev *sim.Device, name string, logger *slog.Logger) error {
	tr := sdep.NewTransport(dev, sdep.Options{Logger: logger})
	d := bluefruit.NewDispatcher(tr, logger)
	if err := gatt.Characteristics.FactoryReset(ctx, d, gatt.Provisioning(name, 0), logger); err != nil {
		return err
	}
	return gatt.Characteristics.WriteDefaults(ctx, d, logger)
}
