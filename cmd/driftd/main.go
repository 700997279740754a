// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command driftd starts the Aleutian Drift replica daemon.
//
// Aleutian Drift provides local-first replicated documents with:
//   - Conflict-free document kinds (registers, counters, maps, graphs,
//     sequences, trees)
//   - Offline operation with deterministic convergence on reconnect
//   - Snapshot sync over HTTP, websocket sessions, and shared folders
//
// Usage:
//
//	go run ./cmd/driftd
//	go run ./cmd/driftd -port 9090 -data-dir ~/.aleutian/drift-data
//	go run ./cmd/driftd -sync-dir ~/Dropbox/drift
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8890/v1/drift/health
//
//	# Create a replicated map
//	curl -X POST http://localhost:8890/v1/drift/docs \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "prefs", "kind": "map"}'
//
//	# Apply operations
//	curl -X POST http://localhost:8890/v1/drift/docs/prefs/ops \
//	  -H "Content-Type: application/json" \
//	  -d '{"ops": [{"action": "set", "key": "theme", "value": "dark"}]}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianDrift/pkg/logging"
	"github.com/AleutianAI/AleutianDrift/services/drift"
	"github.com/AleutianAI/AleutianDrift/services/drift/config"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/resolve"
	"github.com/AleutianAI/AleutianDrift/services/drift/filesync"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage/badger"
	"github.com/AleutianAI/AleutianDrift/services/drift/telemetry"
)

// replicaKey stores the replica identity so restarts keep it stable.
const replicaKey = "meta/replica"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	dataDir := flag.String("data-dir", "", "BadgerDB directory (overrides config; empty = in-memory)")
	syncDir := flag.String("sync-dir", "", "Shared folder for snapshot sync (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *syncDir != "" {
		cfg.Sync.Enabled = true
		cfg.Sync.Dir = *syncDir
	}
	if *debug {
		cfg.Server.Debug = true
	}

	logLevel := logging.LevelInfo
	if cfg.Server.Debug {
		logLevel = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   logLevel,
		LogDir:  cfg.Logging.Dir,
		Service: "driftd",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	if cfg.Telemetry.TraceExporter != "" {
		tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		slog.Error("Failed to init telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	store, err := openStore(cfg.Storage.DataDir)
	if err != nil {
		slog.Error("Failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	replica, err := loadReplica(ctx, store)
	if err != nil {
		slog.Error("Failed to establish replica identity", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("Replica identity", slog.String("replica", replica.String()))

	svc := drift.NewService(replica, store, slog.Default())
	strategy, err := resolve.ParseStrategy(cfg.Resolve.Strategy)
	if err != nil {
		slog.Error("Failed to parse resolve strategy", slog.String("error", err.Error()))
		os.Exit(1)
	}
	svc.SetResolveStrategy(strategy)
	if err := svc.Load(ctx); err != nil {
		slog.Error("Failed to load documents", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hub := drift.NewHub(svc, slog.Default())
	handlers := drift.NewHandlers(svc, hub)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware("driftd"))
	router.Use(telemetry.MetricsMiddleware())
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	drift.RegisterRoutes(v1, handlers)
	drift.RegisterSyncRoutes(router, hub)

	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	printBanner(cfg.Server.Port, replica.String(), cfg.Sync.Enabled)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("Starting Aleutian Drift server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down Aleutian Drift server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Sync.Enabled {
		syncer, err := filesync.NewSyncer(cfg.Sync.Dir, svc, slog.Default())
		if err != nil {
			slog.Error("Failed to start folder sync", slog.String("error", err.Error()))
			os.Exit(1)
		}
		svc.OnChange(func(name string) {
			if err := syncer.Export(context.Background(), name); err != nil {
				slog.Warn("Folder sync export failed",
					slog.String("doc", name), slog.String("error", err.Error()))
			}
		})
		group.Go(func() error {
			return syncer.Run(gctx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openStore opens the badger-backed store, or an in-memory store when
// no data directory is configured.
func openStore(dataDir string) (storage.SnapshotStore, error) {
	if dataDir == "" {
		slog.Warn("No data-dir configured; documents will not survive restart")
		return storage.NewMemory(), nil
	}
	bcfg := badger.DefaultConfig()
	bcfg.Path = dataDir
	bcfg.Logger = slog.Default()
	return badger.Open(bcfg)
}

// loadReplica reads the persisted replica identity, minting and storing
// one on first run.
func loadReplica(ctx context.Context, store storage.SnapshotStore) (crdt.ReplicaID, error) {
	data, found, err := store.Get(ctx, replicaKey)
	if err != nil {
		return crdt.ReplicaID{}, err
	}
	if found {
		return crdt.ParseReplicaID(string(data))
	}
	replica := crdt.NewReplicaID()
	if err := store.Set(ctx, replicaKey, []byte(replica.String())); err != nil {
		return crdt.ReplicaID{}, err
	}
	return replica, nil
}

func printBanner(port int, replica string, folderSync bool) {
	syncStatus := "DISABLED (set -sync-dir to enable)"
	if folderSync {
		syncStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                      ALEUTIAN DRIFT DAEMON                        ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Local-first replicated documents with automatic convergence.     ║
║  Replica: %-55s ║
║  Folder Sync: %-51s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/drift/health                  │  ║
║  │                                                             │  ║
║  │ # Create a replicated map                                   │  ║
║  │ curl -X POST http://localhost:%d/v1/drift/docs \          │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"name": "prefs", "kind": "map"}'                     │  ║
║  │                                                             │  ║
║  │ # Apply an operation                                        │  ║
║  │ curl -X POST http://localhost:%d/v1/drift/docs/prefs/ops \│  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"ops":[{"action":"set","key":"k","value":"v"}]}'     │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Kinds: register counter pncounter map awgraph rwgraph rga tree   ║
║  Sync:  POST /merge, GET /snapshot, ws://…/ws/drift/:name         ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, replica, syncStatus, port, port, port)
}
