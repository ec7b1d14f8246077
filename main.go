// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pombreda/modbus-device/internal/config"
	"github.com/pombreda/modbus-device/internal/device"
	"github.com/pombreda/modbus-device/internal/slave"
	"github.com/pombreda/modbus-device/internal/store/persistence"
	"github.com/pombreda/modbus-device/modbus"
	"github.com/pombreda/modbus-device/transport"
	"github.com/pombreda/modbus-device/transport/rtu"
	"github.com/pombreda/modbus-device/transport/tcp"
)

// errWrongSlaveID suppresses responses to requests addressed to other
// nodes on a shared bus.
var errWrongSlaveID = errors.New("request addressed to another slave")

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus device...", "slaveID", cfg.SlaveID)

	// Shared device state: one control block and one access table for the
	// whole process, handed to every request path.
	control := device.NewControlBlock()
	seedIdentity(control.Identity(), cfg.Device.Identity)
	access := device.NewAccessControl()
	access.Add(cfg.Device.AllowedHosts...)

	storage := newStorage(cfg.Device.Persistence)
	model, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persisted registers, starting with fresh model", "err", err)
		storage = persistence.NewMemoryStorage()
		model, _ = storage.Load()
	}

	s := slave.NewSlave(model, storage, control)

	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		// Slave ID 0 is a broadcast; everything else must match.
		if slaveID != 0 && slaveID != cfg.SlaveID {
			return modbus.ProtocolDataUnit{}, errWrongSlaveID
		}
		return s.Process(pdu)
	}

	var servers []transport.Server
	for _, lst := range cfg.Listeners {
		switch lst.Type {
		case "tcp":
			servers = append(servers, tcp.NewServer(lst.Tcp.Address, access))
		case "rtu":
			servers = append(servers, rtu.NewServer(lst.Serial))
		default:
			slog.Error("Unknown listener type", "type", lst.Type)
		}
	}

	if len(servers) == 0 {
		slog.Error("No valid listeners configured. Exiting.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(srv transport.Server) {
			defer wg.Done()
			if err := srv.Start(ctx, handler); err != nil {
				slog.Error("Server stopped with error", "err", err)
			}
		}(srv)
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()

	if err := storage.Save(model); err != nil {
		slog.Error("Failed to save registers on shutdown", "err", err)
	}
	if closer, ok := storage.(interface{ Close() error }); ok {
		closer.Close()
	}
	slog.Info("Goodbye.")
}

func newStorage(cfg config.PersistenceConfig) persistence.Storage {
	switch cfg.Type {
	case "file":
		slog.Info("Using file persistence", "path", cfg.Path)
		return persistence.NewFileStorage(cfg.Path)
	case "mmap":
		slog.Info("Using mmap persistence", "path", cfg.Path)
		return persistence.NewMmapStorage(cfg.Path)
	case "sql":
		// Note: the driver must be imported in this package
		// (e.g. _ "github.com/mattn/go-sqlite3")
		slog.Info("Using SQL persistence", "driver", cfg.Driver, "dsn", cfg.Path)
		return persistence.NewSQLStorage(cfg.Driver, cfg.Path)
	default:
		slog.Info("Using memory storage (non-persistent)")
		return persistence.NewMemoryStorage()
	}
}

func seedIdentity(id *device.Identity, cfg config.IdentityConfig) {
	id.SetVendorName(cfg.VendorName)
	id.SetProductCode(cfg.ProductCode)
	id.SetMajorMinorRevision(cfg.MajorMinorRevision)
	id.SetVendorURL(cfg.VendorURL)
	id.SetProductName(cfg.ProductName)
	id.SetModelName(cfg.ModelName)
	id.SetUserApplicationName(cfg.UserApplicationName)
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
