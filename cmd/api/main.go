package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eventapp "github.com/go-events-sync/internal/application/event"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-events-sync/internal/infrastructure/jwt"
	"github.com/go-events-sync/internal/infrastructure/push"
	s3infra "github.com/go-events-sync/internal/infrastructure/s3"
	"github.com/go-events-sync/internal/infrastructure/sns"
	transporthttp "github.com/go-events-sync/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()
	logger := slog.Default()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	repo := dynamo.NewEventRepo(dynamoClient, cfg.DynamoTables.Events)

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.AWSRegion)
	if err != nil {
		return err
	}
	assets := s3infra.NewStore(s3infra.NewClient(awsCfg, cfg), cfg.S3BucketName, cfg.AssetPrefix)

	// SNS fan-out is optional; nil when no topic is configured.
	var publisher eventapp.PushPublisher
	snsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return err
	}
	if p := sns.NewPublisher(snsCfg, cfg); p != nil {
		publisher = p
	} else {
		slog.Warn("SNS topic not configured, OS push fan-out disabled")
	}

	// JWT provider (optional: without it mutations and the admin room are closed).
	deps := &transporthttp.Deps{Assets: assets, Logger: logger}
	var hub *push.Hub
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.Verifier = p
		hub = push.NewHub(p, logger)
	} else {
		slog.Warn("JWT provider not available", "error", err)
		hub = push.NewHub(nil, logger)
	}
	defer hub.Close()
	deps.Hub = hub
	deps.Events = eventapp.NewService(repo, hub, publisher, logger)

	router, stop := transporthttp.NewRouter(cfg, deps)
	defer stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
