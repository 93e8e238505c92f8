package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/chefsplan/backend/internal/auth"
	"github.com/chefsplan/backend/internal/config"
	"github.com/chefsplan/backend/internal/events"
	"github.com/chefsplan/backend/internal/handlers"
	"github.com/chefsplan/backend/internal/metrics"
	"github.com/chefsplan/backend/internal/repository"
	"github.com/chefsplan/backend/internal/router"
	"github.com/chefsplan/backend/internal/services"
	"github.com/chefsplan/backend/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	// Event fan-out: redis when configured, otherwise silent.
	var pub events.Publisher = events.Nop{}
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		pub = events.NewRedisPublisher(goredis.NewClient(opts), cfg.EventChan)
		slog.Info("Publishing events to redis", "channel", cfg.EventChan)
	}

	shiftRepo := repository.NewShiftRepo(pool)
	escrowRepo := repository.NewEscrowRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	reputationRepo := repository.NewReputationRepo(pool)

	vault := services.NewVault(escrowRepo, walletRepo, pub, met, logger, services.VaultConfig{
		TrustedLedger:  cfg.LedgerAddress,
		Admin:          cfg.AdminAddress,
		ReleaseWindow:  cfg.ReleaseWindow,
		DisputeCooling: cfg.DisputeCooling,
	})
	reputation := services.NewReputationLedger(reputationRepo, met, logger, cfg.AdminAddress)
	shifts := services.NewShiftLedger(shiftRepo, vault, reputation, pub, met, logger, services.ShiftLedgerConfig{
		Self:            cfg.LedgerAddress,
		MinPaymentCents: cfg.MinPaymentCents,
		ApplyCutoff:     cfg.ApplyCutoff,
		MaxDuration:     cfg.MaxShiftDuration,
	})

	// The shift ledger must be able to write ratings and completion counts.
	if err := reputation.Authorize(ctx, cfg.AdminAddress, cfg.LedgerAddress); err != nil {
		slog.Error("Failed to authorize shift ledger as reputation writer", "error", err)
		os.Exit(1)
	}

	// Sweep worker: periodically releases escrows whose deadline has passed.
	workers := river.NewWorkers()
	river.AddWorker(workers, sweep.NewAutoReleaseWorker(pool, escrowRepo, vault, met, logger, cfg.SweeperAddress))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return sweep.AutoReleaseArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)

	apiRouter := router.New(router.Handlers{
		Auth:       &handlers.AuthHandler{Tokens: tokens, Logger: logger},
		Shifts:     &handlers.ShiftHandler{Shifts: shifts, Logger: logger},
		Escrows:    &handlers.EscrowHandler{Pool: pool, Vault: vault, Logger: logger},
		Reputation: &handlers.ReputationHandler{Reputation: reputation, Logger: logger},
		Wallets:    &handlers.WalletHandler{Wallets: walletRepo, Logger: logger},
		Admin:      &handlers.AdminHandler{Vault: vault, Reputation: reputation, Logger: logger},
	}, tokens, cfg.AdminTokenHash, cfg.AdminAddress, reg)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	go func() {
		if err := riverClient.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: corsHandler,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown failed", "error", err)
	}
}
