// Package main implements the Data Hub daemon: it wires a hub.Hub over a
// NATS connection, exposes Prometheus metrics, and serves until an
// interrupt or terminate signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/c360/datahub/config"
	"github.com/c360/datahub/hub"
	"github.com/c360/datahub/metric"
	"github.com/c360/datahub/persistence"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

const appName = "datahubd"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("datahubd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the hub's YAML configuration file")
	flag.Parse()

	logger := slog.Default()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("%s: %w", appName, err)
		}
		cfg = loaded
	}

	registry := metric.NewMetricsRegistry()

	var store *persistence.Store
	if cfg.NATS.URL != "" {
		s, err := connectPersistence(cfg.NATS, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", appName, err)
		}
		store = s
	}

	h := hub.New(hub.Config{
		MaxResourcesPerClient:         cfg.MaxResourcesPerClient,
		ObservationBufferMaxCount:     cfg.ObservationBufferMaxCount,
		ObservationBufferMaxWindowSec: cfg.ObservationBufferMaxWindowSec,
		DefaultUnits:                  cfg.DefaultUnits,
	}, registry, noopIdentity{}, noopSink{logger}, logger)

	return runWithSignalHandling(context.Background(), h, store, registry, cfg, *configPath, logger)
}

// connectPersistence dials NATS and resolves the JetStream KV bucket
// backing the optional Observation persistence collaborator.
func connectPersistence(cfg config.NATSConfig, logger *slog.Logger) (*persistence.Store, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %q: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bucket, err := js.KeyValue(ctx, cfg.KVBucket)
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %q: %w", cfg.KVBucket, err)
	}
	logger.Info("persistence connected", "bucket", cfg.KVBucket)
	return persistence.New(bucket), nil
}

func runWithSignalHandling(ctx context.Context, h *hub.Hub, store *persistence.Store, registry *metric.MetricsRegistry, cfg config.Config, configPath string, logger *slog.Logger) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	g, gctx := errgroup.WithContext(signalCtx)

	if configPath != "" {
		g.Go(func() error {
			return runReloadLoop(gctx, h, configPath, logger)
		})
	}

	if cfg.Metrics.Enabled {
		server := metric.NewServer(metricsPort(cfg.Metrics.Addr, logger), "/metrics", registry)
		g.Go(func() error {
			if err := server.Start(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return server.Stop()
		})
	}

	if store != nil {
		g.Go(func() error {
			return runPersistenceFlushLoop(gctx, h, store, logger)
		})
	}

	logger.Info("datahubd started")

	groupDone := make(chan error, 1)
	go func() { groupDone <- g.Wait() }()

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown signal received")
		signalCancel()
		if err := <-groupDone; err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	case err := <-groupDone:
		if err != nil {
			return fmt.Errorf("background task failed: %w", err)
		}
	}

	logger.Info("datahubd shutdown complete")
	return nil
}

// runPersistenceFlushLoop periodically snapshots every Observation buffer
// under the hub's root and saves it to store, until ctx is cancelled.
func runPersistenceFlushLoop(ctx context.Context, h *hub.Hub, store *persistence.Store, logger *slog.Logger) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	flush := func() {
		for _, e := range h.ObservationEntries() {
			buf := e.Buffer()
			if buf == nil {
				continue
			}
			if err := store.Save(ctx, e.Path(), buf.Snapshot()); err != nil {
				logger.Warn("persistence flush failed", "path", e.Path(), "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case <-ticker.C:
			flush()
		}
	}
}

// runReloadLoop reloads the hub's administrative configuration from
// configPath every time the process receives SIGHUP, until ctx is
// cancelled. A failed read or an invalid config is logged and skipped; the
// hub keeps running on its previous configuration.
func runReloadLoop(ctx context.Context, h *hub.Hub, configPath string, logger *slog.Logger) error {
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hupCh:
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Warn("config reload failed", "path", configPath, "error", err)
				continue
			}
			err = h.Reload(hub.Config{
				MaxResourcesPerClient:         cfg.MaxResourcesPerClient,
				ObservationBufferMaxCount:     cfg.ObservationBufferMaxCount,
				ObservationBufferMaxWindowSec: cfg.ObservationBufferMaxWindowSec,
				DefaultUnits:                  cfg.DefaultUnits,
			})
			if err != nil {
				logger.Warn("config reload rejected", "path", configPath, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", configPath)
		}
	}
}

// metricsPort extracts the numeric port from a ":9090"-style address,
// falling back to 0 (metric.NewServer's own default) if addr is malformed.
func metricsPort(addr string, logger *slog.Logger) int {
	if addr == "" {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Warn("invalid metrics address, using default port", "addr", addr, "error", err)
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Warn("invalid metrics port, using default", "addr", addr, "error", err)
		return 0
	}
	return port
}

type noopIdentity struct{}

func (noopIdentity) IdentifyClient(sessionHandle any) (string, error) {
	id, ok := sessionHandle.(string)
	if !ok {
		return "", fmt.Errorf("datahubd: session handle is not a client id: %v", sessionHandle)
	}
	return id, nil
}

type noopSink struct {
	logger *slog.Logger
}

func (s noopSink) KillClient(sessionHandle any, reason string) {
	s.logger.Warn("client session killed", "session", sessionHandle, "reason", reason)
}
