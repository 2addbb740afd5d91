package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/byaboneka/byaboneka/internal/auth"
	"github.com/byaboneka/byaboneka/internal/claims"
	"github.com/byaboneka/byaboneka/internal/config"
	"github.com/byaboneka/byaboneka/internal/fraud"
	"github.com/byaboneka/byaboneka/internal/handover"
	"github.com/byaboneka/byaboneka/internal/jobs"
	"github.com/byaboneka/byaboneka/internal/matching"
	"github.com/byaboneka/byaboneka/internal/notify"
	"github.com/byaboneka/byaboneka/internal/ratelimit"
	"github.com/byaboneka/byaboneka/internal/secrets"
	"github.com/byaboneka/byaboneka/internal/server"
	"github.com/byaboneka/byaboneka/internal/storage"
	"github.com/byaboneka/byaboneka/internal/telemetry"
	"github.com/byaboneka/byaboneka/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("BYABONEKA_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("byaboneka starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Environment: cfg.Environment,
		Insecure:    !cfg.Production(),
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.MaxConns, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Redis backs rate limiting; without it limits are disabled.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limits disabled", "error", err)
			redisClient = nil
		}
	}
	limiter := ratelimit.New(redisClient, logger)
	defer limiter.Close()

	jwtMgr, err := auth.NewJWTManager(
		[]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
	)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}

	gate := fraud.NewGate(db, logger)
	secretStore := secrets.NewStore(db)
	matcher := matching.New(db, logger)
	claimsSvc := claims.New(db, secretStore, gate, logger)
	handoverSvc := handover.New(db, gate, logger)
	notifier := notify.NewMailer(notify.Config{
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
		SMTPUser: cfg.SMTPUser,
		SMTPPass: cfg.SMTPPassword,
		SMTPFrom: cfg.SMTPFrom,
		BaseURL:  cfg.BaseURL,
	}, logger)

	queue := jobs.NewQueue(cfg.QueueSize, cfg.QueueWorkers, logger)
	queue.Start(ctx)

	reaper := jobs.NewReaper(db, logger, cfg.ReaperInterval)
	reaper.Start(ctx)

	handlers := server.NewHandlers(server.HandlersDeps{
		DB:       db,
		JWTMgr:   jwtMgr,
		Matcher:  matcher,
		Claims:   claimsSvc,
		Handover: handoverSvc,
		Gate:     gate,
		Notifier: notifier,
		BaseURL:  cfg.BaseURL,
		Queue:    queue,
		Logger:   logger,
		Version:  version,
	})

	srv := server.New(server.Config{
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	}, handlers, limiter, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	// Drain in order: stop accepting requests, stop the reaper, then
	// let queued background tasks finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	reaper.Stop(shutdownCtx)
	queue.Drain(shutdownCtx)

	logger.Info("byaboneka stopped")
	return nil
}
