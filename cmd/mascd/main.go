// Command mascd runs the coordination server: it loads configuration,
// opens the configured storage backend, and serves the Streamable-HTTP
// and legacy SSE transports until SIGINT/SIGTERM, grounded on
// r3e-network-service_layer's cmd/appserver/main.go for the
// flag-parse → build → Start → signal.Notify → bounded-Shutdown shape.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/masc-dev/masc/internal/config"
	"github.com/masc-dev/masc/internal/jsonrpc"
	"github.com/masc-dev/masc/internal/ratelimit"
	"github.com/masc-dev/masc/internal/retention"
	"github.com/masc-dev/masc/internal/room"
	"github.com/masc-dev/masc/internal/session"
	"github.com/masc-dev/masc/internal/storage"
	"github.com/masc-dev/masc/internal/storage/fsstore"
	"github.com/masc-dev/masc/internal/storage/pgstore"
	"github.com/masc-dev/masc/internal/storage/redisstore"
	"github.com/masc-dev/masc/internal/tempo"
	"github.com/masc-dev/masc/internal/tools"
	"github.com/masc-dev/masc/internal/transport"
)

// version is stamped at release time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("mascd: configuration error: %v", err)
	}

	slog.SetLogLoggerLevel(parseLevel(cfg.LogLevel))

	backend, err := openBackend(context.Background(), cfg)
	if err != nil {
		log.Fatalf("mascd: opening %s storage backend: %v", cfg.StorageKind, err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			slog.Error("mascd: closing storage backend", "error", cerr)
		}
	}()

	hub := session.NewHub(cfg.RoomName, cfg.SSERingSize)
	r := room.New(cfg.RoomName, backend, hub)
	r.RetryBound = cfg.RetryBound
	r.RetryBackoff = cfg.RetryBackoff

	loop := tempo.New(r)
	cleanup := retention.New(retention.Config{
		Interval:            cfg.RetentionInterval,
		TaskRetention:       cfg.TaskRetention,
		CheckpointRetention: cfg.CheckpointRetention,
		MessageKeepCount:    cfg.MessageKeepCount,
	}, r)
	gate := ratelimit.NewGate()
	registry, dispatcher := tools.Build(gate, loop)
	rpc := jsonrpc.NewHandler(registry, dispatcher)

	srv := transport.NewServer(version, cfg.AllowedOrigins)
	srv.AddRoom(cfg.RoomName, &transport.RoomContext{
		Room:        r,
		Hub:         hub,
		Registry:    registry,
		Dispatcher:  dispatcher,
		RPC:         rpc,
		AuthEnabled: cfg.AuthEnabled,
		BackendKind: string(cfg.StorageKind),
		Mode:        tools.ModeConfig{Mode: tools.ModeFull},
	})

	loop.Start(context.Background())
	cleanup.Start(context.Background())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()
	slog.Info("mascd: listening", "addr", cfg.HTTPAddr, "room", cfg.RoomName, "storage", cfg.StorageKind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("mascd: server error: %v", err)
	case sig := <-sigCh:
		slog.Info("mascd: received signal, shutting down", "signal", sig)
	}

	loop.Stop()
	cleanup.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("mascd: graceful shutdown failed: %v", err)
	}
	slog.Info("mascd: shutdown complete")
}

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.StorageKind {
	case storage.KindFS:
		return fsstore.New(cfg.BasePath)
	case storage.KindRedis:
		return redisstore.New(ctx, cfg.RedisURL)
	case storage.KindPostgres:
		return pgstore.New(ctx, pgstore.Config{DSN: cfg.PostgresDSN})
	default:
		return nil, fmt.Errorf("mascd: unknown storage kind %q", cfg.StorageKind)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
