package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/capsulesync/internal/config"
	"github.com/prudhvinik1/capsulesync/internal/database"
	"github.com/prudhvinik1/capsulesync/internal/handlers"
	"github.com/prudhvinik1/capsulesync/internal/repositories"
	"github.com/prudhvinik1/capsulesync/internal/services"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer postgresPool.Close()

	if err := database.RunPostgresMigrations(postgresPool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	cacheDB, err := database.NewSQLiteDB(ctx, cfg.LocalCachePath)
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}
	defer cacheDB.Close()

	cache := repositories.NewSQLiteCapsuleCache(cacheDB)
	if err := cache.Init(ctx); err != nil {
		return err
	}

	// Repositories
	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient)
	capsuleRepo := repositories.NewPostgresCapsuleRepository(postgresPool)
	remote := repositories.NewCapsuleStore(capsuleRepo, repositories.NewRedisChangeFeed(redisClient), logger)
	schedule := repositories.NewRedisNotificationSchedule(redisClient)

	// Services
	authService := services.NewAuthService(accountRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiry)
	capsuleService := services.NewCapsuleService(remote, cache, schedule, accountRepo, cfg.NotifyTimeout, logger)
	defer capsuleService.WaitForNotifications()

	notifier := services.NewUnlockNotifier(schedule, remote, cfg.UnlockPollInterval, logger)
	notifierDone := make(chan struct{})
	go func() {
		defer close(notifierDone)
		notifier.Start(ctx)
	}()
	defer func() { <-notifierDone }()

	h := handlers.NewHandler(authService, capsuleService, services.ContextIdentityProvider{}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           handlers.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.ServerPort)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		stop()
		return fmt.Errorf("server error: %w", err)
	}
	<-shutdownDone

	logger.Info("server stopped gracefully")
	return nil
}
