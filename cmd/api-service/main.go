package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/image-worker/internal/api/handler"
	"github.com/cuongbtq/image-worker/internal/api/router"
	"github.com/cuongbtq/image-worker/internal/api/storage"
	"github.com/cuongbtq/image-worker/internal/config"
	"github.com/cuongbtq/image-worker/shared/logger"
	"github.com/cuongbtq/image-worker/shared/postgresql"
	"github.com/cuongbtq/image-worker/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	jobStore := storage.NewStorage(dbClient.GetDB())
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = jobStore.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return err
	}

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:    appLogger.Logger,
		Store:     jobStore,
		Publisher: rabbitClient,
		Checks: map[string]handler.HealthChecker{
			"database": dbClient,
			"rabbitmq": rabbitClient,
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running", slog.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
