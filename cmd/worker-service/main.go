package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/cuongbtq/image-worker/internal/config"
	"github.com/cuongbtq/image-worker/internal/worker"
	"github.com/cuongbtq/image-worker/internal/worker/fetcher"
	"github.com/cuongbtq/image-worker/internal/worker/lock"
	"github.com/cuongbtq/image-worker/internal/worker/queue"
	"github.com/cuongbtq/image-worker/internal/worker/sink"
	"github.com/cuongbtq/image-worker/internal/worker/storage"
	"github.com/cuongbtq/image-worker/internal/worker/transform"
	"github.com/cuongbtq/image-worker/shared/logger"
	"github.com/cuongbtq/image-worker/shared/postgresql"
	"github.com/cuongbtq/image-worker/shared/rabbitmq"
	"github.com/cuongbtq/image-worker/shared/redis"
	"github.com/google/uuid"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := cfg.Worker.ID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	derivatives, originals, closeSinks, err := initSinks(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	cleanups = append(cleanups, closeSinks)

	var transport queue.Transport
	if cfg.Queue.Driver == config.QueueDriverRabbitMQ {
		rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		cleanups = append(cleanups, func() { rabbitClient.Close() })

		consumerTag := cfg.RabbitMQ.Consumer.Tag
		if consumerTag == "" {
			consumerTag = workerID
		}
		prefetch := cfg.RabbitMQ.Consumer.PrefetchCount
		if prefetch <= 0 {
			prefetch = cfg.Worker.Concurrency
		}
		transport = queue.NewRabbitTransport(rabbitClient, consumerTag, prefetch, appLogger.Logger)
		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Warn("No queue configured, worker will idle")
	}

	var journal worker.Journal
	if cfg.Database.Enabled {
		dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		cleanups = append(cleanups, func() { dbClient.Close() })

		store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = store
		appLogger.Info("Database connection established")
	}

	var locker lock.Locker
	if cfg.Redis.Enabled {
		redisClient, err := redis.Connect(ctx, cfg.Redis.URL, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		cleanups = append(cleanups, func() { redisClient.Close() })

		locker = lock.NewRedisLocker(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockRetryInterval, cfg.Redis.LockWaitTimeout)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:    appLogger.Logger,
		Transport: transport,
		Fetcher: fetcher.New(&fetcher.Config{
			Logger:    appLogger.Logger,
			Timeout:   cfg.Worker.FetchTimeout,
			UserAgent: cfg.Worker.UserAgent,
			MaxBytes:  cfg.Worker.MaxBytes,
		}),
		Transformer: transform.New(&transform.Config{
			Logger:      appLogger.Logger,
			Sink:        derivatives,
			JPEGQuality: cfg.Worker.JPEGQuality,
			MaxPixels:   cfg.Worker.MaxPixels,
		}),
		Originals:         originals,
		Journal:           journal,
		Locker:            locker,
		WorkerID:          workerID,
		Concurrency:       cfg.Worker.Concurrency,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		MaxDimension:      cfg.Worker.MaxDimension,
		PollWait:          cfg.Worker.PollWait,
		IdleDelay:         cfg.Worker.IdleDelay,
		JobTimeout:        cfg.Worker.JobTimeout,
		SettleTimeout:     cfg.Worker.SettleTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, draining in-flight jobs",
		slog.String("signal", sig.String()),
	)

	// Stop polling; jobs already running finish on their own context
	cancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, unsettled jobs will be redelivered")
	}

	stats := workerInstance.Stats()
	appLogger.Info("Worker service shutdown complete",
		slog.Int64("processed", stats.Processed),
		slog.Int64("acknowledged", stats.Acknowledged),
		slog.Int64("released", stats.Released),
		slog.Int64("dead_lettered", stats.DeadLettered),
	)
	return nil
}

// initSinks builds the derivative sink and, when originals are kept, the archive sink
func initSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink.Sink, sink.Sink, func(), error) {
	var originals sink.Sink

	switch cfg.Storage.Driver {
	case config.StorageDriverGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		closeFn := func() { client.Close() }

		derivatives := sink.NewGCSSink(client, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.OutputPrefix, logger)
		if cfg.Worker.KeepOriginals {
			originals = sink.NewGCSSink(client, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.OriginalsPrefix, logger)
		}
		return derivatives, originals, closeFn, nil

	default:
		derivatives, err := sink.NewFileSink(cfg.Storage.OutputDir, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Worker.KeepOriginals {
			archive, err := sink.NewFileSink(cfg.Storage.OriginalsDir, logger)
			if err != nil {
				return nil, nil, nil, err
			}
			originals = archive
		}
		return derivatives, originals, func() {}, nil
	}
}
