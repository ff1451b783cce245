// Command spendgate runs the transfer-authorization service: rule-set
// commitment, delegation custody and the multi-step spend-request workflow,
// exposed over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/spendgate/pkg/api"
	"github.com/Mindburn-Labs/spendgate/pkg/config"
	"github.com/Mindburn-Labs/spendgate/pkg/engine"
	"github.com/Mindburn-Labs/spendgate/pkg/identity"
	"github.com/Mindburn-Labs/spendgate/pkg/observability"
	"github.com/Mindburn-Labs/spendgate/pkg/receipt"
	"github.com/Mindburn-Labs/spendgate/pkg/spend"
	"github.com/Mindburn-Labs/spendgate/pkg/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.ProfilesDir != "" && cfg.Profile != "" {
		profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.Profile)
		if err != nil {
			return fmt.Errorf("load deployment profile: %w", err)
		}
		profile.Apply(cfg)
		logger.Info("deployment profile applied", "profile", profile.Code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "spendgate",
		Environment:  cfg.Profile,
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      os.Getenv("OTLP_ENDPOINT") != "",
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	locks, err := openLocks(ctx, cfg, logger)
	if err != nil {
		return err
	}

	bank := spend.NewMemoryBank()
	var signers spend.SignerOracle
	if cfg.SignerSecret != "" {
		tm, err := identity.NewTokenManager([]byte(cfg.SignerSecret))
		if err != nil {
			return fmt.Errorf("init signer oracle: %w", err)
		}
		signers = tm
		logger.Info("signer credentials via JWT")
	} else {
		signers = spend.NewStaticSigners()
		logger.Warn("no SIGNER_SECRET set, using static signer table")
	}

	eng, err := engine.New(engine.Options{
		Store:        st,
		Locks:        locks,
		Balances:     bank,
		Signers:      signers,
		Executor:     bank,
		Receipts:     receipt.NewLog(),
		Logger:       logger,
		Telemetry:    obs,
		LedgerSlots:  cfg.LedgerSlots,
		MaxRules:     cfg.MaxRules,
		MaxTreeBytes: cfg.MaxTreeBytes,
		AutoApprove:  !cfg.RequireApproval,
	})
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	srv := api.NewServer(eng, logger)
	httpServer := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: srv.Router(api.RouterOptions{
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("spendgate listening", "port", cfg.Port, "store", cfg.StoreBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openLocks selects the request lock backend. An explicit LockBackend wins;
// otherwise redis is used whenever a redis address is configured.
func openLocks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.RequestLock, error) {
	backend := cfg.LockBackend
	if backend == "" {
		if cfg.RedisAddr != "" {
			backend = "redis"
		} else {
			backend = "memory"
		}
	}
	switch backend {
	case "memory":
		return store.NewMemoryLock(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis lock backend requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		ttl := time.Duration(cfg.LockTTLMillis) * time.Millisecond
		logger.Info("request locks on redis", "addr", cfg.RedisAddr, "ttl", ttl)
		return store.NewRedisLock(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", backend)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(cfg.SQLitePath)
	case "postgres":
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
