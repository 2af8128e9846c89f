// Package main is the entry point for the billing tracker API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (from env vars or a .env file)
// 2. Create dependencies (logger, store, cache, metrics)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// This project has two: cmd/server (the HTTP API) and cmd/billingctl
// (maintenance commands run by an operator).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/config"
	"github.com/sakif/billing-tracker/internal/metrics"
	"github.com/sakif/billing-tracker/internal/server"
	"github.com/sakif/billing-tracker/internal/store"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads .env (if present) and the environment. Every bad
	// value is reported at once, so there is no logger yet: print and exit.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_LEVEL picks the minimum level (debug, info, warn, error) and
	// LOG_FORMAT picks text for terminals or json for log shippers.
	logger := cfg.NewLogger()

	// === 3. OPEN THE STORE ===
	// sqlite runs its migrations on open; mongo creates its indexes.
	// Without a store there is nothing to serve, so failure is fatal.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Open(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open store",
			slog.String("store", store.Describe(cfg)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. STREET CACHE ===
	// Redis is optional. If REDIS_ADDR is unset or unreachable, street
	// summaries are computed on every request.
	var streets cache.StreetCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StreetCacheTTL)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, street cache disabled",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			defer rc.Close()
			streets = rc
		}
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		App:     cfg,
		Store:   db,
		Cache:   streets,
		Metrics: metrics.New(),
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		db.Close()
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
