// cmd/main.go is the application entry point.
// It wires together all layers, starts the outbox dispatcher and the HTTP
// server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/auth"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/config"
	"github.com/Shivanand-hulikatti/bookable/internal/database"
	"github.com/Shivanand-hulikatti/bookable/internal/handler"
	"github.com/Shivanand-hulikatti/bookable/internal/obs"
	"github.com/Shivanand-hulikatti/bookable/internal/outbox"
	"github.com/Shivanand-hulikatti/bookable/internal/ratelimit"
	"github.com/Shivanand-hulikatti/bookable/internal/repository"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bookable: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	// ── 1. Configuration, logging, tracing ───────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracer, err := obs.InitTracer(ctx, "bookable", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// ── 2. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.DB, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if cfg.MigrateOnStart {
		if err := database.Migrate(pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	clk := clock.Real{}
	store := repository.NewStore(pool, logger)
	tokens := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TTL, clk)

	h := handler.NewHandler(handler.Services{
		Items:        service.NewItemService(store, clk, logger),
		Bookings:     service.NewBookingEngine(store, clk, logger),
		Availability: service.NewAvailabilityCalculator(store).WithSlotting(cfg.Slots.SlotDuration, cfg.Slots.SlotBuffer),
		Users:        service.NewUserService(store, clk, logger),
		Store:        store,
	}, tokens, logger)

	// ── 4. Outbox dispatcher ─────────────────────────────────────────────
	notifier, closeNotifier, err := outbox.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeNotifier() }()

	dispatcher := outbox.NewDispatcher(store, notifier, clk, logger, outbox.Config{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxRetries:  cfg.Outbox.MaxRetries,
		SendTimeout: cfg.Outbox.SendTimeout,
		StuckAfter:  cfg.Outbox.StuckAfter,
	})
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox dispatcher stopped", zap.Error(err))
		}
	}()

	// ── 5. Rate limiting (optional, Redis-backed) ────────────────────────
	var limiter handler.Limiter
	if cfg.RateLimit.Enabled && cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiter will fail open", zap.Error(err))
		}
		limiter = ratelimit.NewLimiter(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window, clk)
	} else {
		logger.Info("rate limiting disabled")
	}

	// ── 6. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h.Routes(limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("outbox dispatcher did not stop in time", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
