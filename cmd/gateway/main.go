// unified-agent-gateway multiplexes browser attachments across Claude,
// Codex, Gemini, and mock backend sessions behind one wire protocol.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
	"github.com/ronaldeddings/unified-agent/internal/backendsandbox"
	"github.com/ronaldeddings/unified-agent/internal/config"
	"github.com/ronaldeddings/unified-agent/internal/eventlog"
	"github.com/ronaldeddings/unified-agent/internal/identity"
	"github.com/ronaldeddings/unified-agent/internal/metrics"
	"github.com/ronaldeddings/unified-agent/internal/middleware"
	"github.com/ronaldeddings/unified-agent/internal/policy"
	"github.com/ronaldeddings/unified-agent/internal/session"
	"github.com/ronaldeddings/unified-agent/internal/statestore"
	"github.com/ronaldeddings/unified-agent/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting gateway", "port", cfg.Port, "dev", cfg.IsDevelopment())

	recorder := metrics.NewRecorder()

	eventsDir := filepath.Join(cfg.DataDir, "events")
	jsonl, err := eventlog.NewJSONLWriter(eventsDir)
	if err != nil {
		slog.Error("failed to initialize event log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := jsonl.Close(); closeErr != nil {
			slog.Error("failed to close event log", "error", closeErr)
		}
	}()

	indexedStore, err := eventlog.Open(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		slog.Error("failed to open indexed event store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := indexedStore.Close(); closeErr != nil {
			slog.Error("failed to close indexed event store", "error", closeErr)
		}
	}()

	eventSink := &eventlog.Sink{JSONL: jsonl, Store: indexedStore}
	stateStore := statestore.New(filepath.Join(cfg.DataDir, "sessions.json"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var relayHost adapter.RelayHost
	if cfg.Sandbox.Enabled {
		host, err := backendsandbox.NewHost(backendsandbox.Config{
			Image:         cfg.Sandbox.Image,
			MemoryLimit:   cfg.Sandbox.MemoryLimit,
			CPUQuota:      cfg.Sandbox.CPUQuota,
			PidsLimit:     cfg.Sandbox.PidsLimit,
			TTL:           cfg.Sandbox.TTL,
			ReapInterval:  cfg.Sandbox.ReapInterval,
			CreateTimeout: cfg.Sandbox.CreateTimeout,
		})
		if err != nil {
			slog.Error("failed to initialize backend sandbox", "error", err)
			os.Exit(1)
		}
		relayHost = host
		go host.RunReaper(ctx)
		slog.Info("backend sandbox enabled", "image", cfg.Sandbox.Image)
	}

	adapters := &adapter.Factory{RelayHost: relayHost, RelayTimeout: adapter.DefaultRelayTimeout}

	registry := session.NewRegistry()
	if records, err := stateStore.Load(session.KnownProvider); err != nil {
		slog.Error("failed to load session snapshot", "error", err)
	} else if len(records) > 0 {
		registry.Restore(records)
		slog.Info("restored sessions from snapshot", "count", len(records))
	}

	router := session.NewRouter(registry, adapters)
	router.Limiter = policy.NewRateLimiter(cfg.Policy.RateLimit, cfg.Policy.RateWindow)
	router.BrainURLs = policy.NewBrainURLPolicy(cfg.Policy.BrainURLAllowPlainWS, cfg.Policy.BrainURLAllowList)
	router.PayloadCapBytes = cfg.Policy.PayloadCapBytes
	router.CanUseToolDefault = cfg.Policy.CanUseToolDefault
	router.Events = eventSink
	router.States = stateStore
	router.Metrics = recorder

	watchdog := session.NewWatchdog(registry)
	watchdog.HeartbeatInterval = cfg.Watchdog.HeartbeatInterval
	watchdog.StalenessBound = cfg.Watchdog.StalenessBound
	watchdog.RelaunchGrace = cfg.Watchdog.RelaunchGrace
	go watchdog.Run(ctx)

	pusher := metrics.NewPusher(recorder, cfg.OTLP.Endpoint, cfg.OTLP.Interval)
	go pusher.Run(ctx)

	bus := transport.NewBus()
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			slog.Error("failed to close transport bus", "error", closeErr)
		}
	}()

	attachHandler := transport.NewAttachHandler(router, bus, watchdog, cfg.FrontendURL, cfg.IsDevelopment())
	profiles := transport.NewEnvProfiles(filepath.Join(cfg.DataDir, "env-profiles.json"))
	httpHandler := transport.NewHTTPHandler(registry, adapters, profiles, recorder.Handler())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	httpHandler.RegisterRoutes(r)
	r.Get("/attach", attachHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket attaches are long-lived
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("shutting down gracefully...")

	if err := stateStore.Save(registry.Snapshot()); err != nil {
		slog.Error("failed to save final session snapshot", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped successfully")
}
