// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command analytics starts the Cairn comparative effectiveness engine.
//
// The engine maintains effectiveness benchmarks for therapeutic
// techniques, rebuilds the technique effectiveness database on a weekly
// cadence, generates comparative insights daily, and serves the results
// over a versioned HTTP API.
//
// Usage:
//
//	go run ./cmd/analytics
//	go run ./cmd/analytics -port 9090 -config analytics.yaml
//	go run ./cmd/analytics -in-memory
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/analytics/health
//
//	# Comparative view for an indication
//	curl http://localhost:8080/v1/analytics/indication/anxiety
//
//	# Trigger a refresh cycle now
//	curl -X POST http://localhost:8080/v1/analytics/refresh
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/CairnHealth/CairnAnalytics/pkg/logging"
	"github.com/CairnHealth/CairnAnalytics/services/analytics"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/cache"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/config"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/efficacy"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/scheduler"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/seeder"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/store"
	storebadger "github.com/CairnHealth/CairnAnalytics/services/analytics/store/badger"
	"github.com/CairnHealth/CairnAnalytics/services/analytics/telemetry"
)

const (
	benchmarkRefreshDelay  = 5 * time.Second
	insightGenerationDelay = 15 * time.Second
	shutdownTimeout        = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	dataDir := flag.String("data-dir", "", "Storage directory (overrides config)")
	inMemory := flag.Bool("in-memory", false, "Disable durable storage")
	debug := flag.Bool("debug", false, "Enable debug logging and Gin debug mode")
	flag.Parse()

	if err := run(*configPath, *port, *dataDir, *inMemory, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "analytics:", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, dataDir string, inMemory, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if inMemory {
		cfg.Storage.InMemory = true
	}

	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "analytics",
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// --- Storage ---
	var db *storebadger.DB
	if cfg.Storage.InMemory {
		logger.Info("durable storage disabled, running in-memory")
	} else {
		badgerCfg := storebadger.DefaultConfig()
		badgerCfg.Path = cfg.Storage.DataDir
		badgerCfg.Logger = slogger
		db, err = storebadger.Open(badgerCfg)
		if err != nil {
			// Degraded mode: serve from memory rather than refuse to start.
			logger.Error("durable storage unavailable, continuing in-memory",
				"path", cfg.Storage.DataDir, "error", err)
			db = nil
		}
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("close storage", "error", err)
			}
		}()
	}

	st := store.New(db, slogger)
	if _, err := st.Initialize(ctx); err != nil {
		return fmt.Errorf("hydrate store: %w", err)
	}

	if benchmarks, techniques, insights := st.Counts(); benchmarks+techniques+insights == 0 {
		logger.Info("store is empty, seeding starter dataset")
		if err := seeder.New(st, slogger).Seed(ctx); err != nil {
			return fmt.Errorf("seed store: %w", err)
		}
	}

	// --- Engine ---
	resultCache := cache.NewMemory(
		cache.WithTTL(cfg.Cache.TTL.Std()),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	)
	source := efficacy.NewStaticSource(efficacy.SampleStats())
	svc := analytics.NewService(st, source, resultCache, slogger,
		analytics.WithMinSampleSize(cfg.Analytics.MinSampleSizeForInsights))

	sched := scheduler.New(slogger,
		scheduler.Job{
			Name:         "benchmark-refresh",
			InitialDelay: benchmarkRefreshDelay,
			Interval:     cfg.Analytics.BenchmarkRefreshFrequency.Std(),
			Run:          svc.RunBenchmarkRefresh,
		},
		scheduler.Job{
			Name:         "insight-generation",
			InitialDelay: insightGenerationDelay,
			Interval:     cfg.Analytics.InsightGenerationFrequency.Std(),
			Run:          svc.RunInsightGeneration,
		},
	)
	sched.Start(ctx)
	defer sched.Stop()

	// --- Config hot reload ---
	if configPath != "" {
		stopWatch, err := config.Watch(configPath, slogger, func(updated *config.Config) {
			svc.SetMinSampleSize(updated.Analytics.MinSampleSizeForInsights)
		})
		if err != nil {
			logger.Warn("config watch unavailable", "path", configPath, "error", err)
		} else {
			defer stopWatch()
		}
	}

	// --- HTTP API ---
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("cairn-analytics"))
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	handlers := analytics.NewHandlers(svc).WithScheduler(sched)
	analytics.RegisterRoutes(v1, handlers)

	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("analytics engine listening",
			"address", server.Addr,
			"durable", st.Durable(),
			"min_sample_size", cfg.Analytics.MinSampleSizeForInsights)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
