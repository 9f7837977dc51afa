package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/piki/wager-engine/internal/api"
	"github.com/piki/wager-engine/internal/auth"
	"github.com/piki/wager-engine/internal/config"
	"github.com/piki/wager-engine/internal/ledger"
	"github.com/piki/wager-engine/internal/limits"
	"github.com/piki/wager-engine/internal/market"
	"github.com/piki/wager-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Storage.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Storage.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.Storage.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Storage.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Storage.CacheTTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Markets ---
	catalog, err := market.NewCatalog(cfg.Markets, cfg.DefaultMarket)
	if err != nil {
		slog.Error("invalid market configuration", "err", err)
		os.Exit(1)
	}
	for _, m := range catalog.List() {
		lo, hi := m.Strategy().Range()
		slog.Info("market loaded", "id", m.ID(), "strategy", m.Strategy().Name(), "lo", lo, "hi", hi)
	}

	// --- Stake limits ---
	limiter := limits.NewStakeLimiter(cfg.Ledger.MaxStakePerMarket, cfg.Ledger.MaxStakeTotal)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Ledger ---
	l := ledger.New(st, catalog, ledger.Options{
		StartingBalance: cfg.Ledger.StartingBalance,
		Limiter:         limiter,
		Notifier:        wsHub,
	})

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		slog.Error("auth setup failed", "err", err)
		os.Exit(1)
	}

	// --- HTTP router ---
	router := api.NewRouter(api.NewHandler(l, issuer), issuer, wsHub)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("wager-engine listening", "port", cfg.Server.Port, "default_market", catalog.Default().ID())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}
