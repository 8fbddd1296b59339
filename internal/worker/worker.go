package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/cuongbtq/image-worker/internal/worker/lock"
	"github.com/cuongbtq/image-worker/internal/worker/queue"
	"github.com/cuongbtq/image-worker/internal/worker/sink"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPollWait      = 20 * time.Second
	defaultIdleDelay     = time.Second
	defaultJobTimeout    = 5 * time.Minute
	defaultHeartbeat     = 10 * time.Second
	defaultSettleTimeout = 30 * time.Second
)

// Fetcher downloads the source image of a job
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.FetchedImage, error)
}

// Transformer produces and publishes the derivative of a fetched image
type Transformer interface {
	Transform(ctx context.Context, id string, img *domain.FetchedImage, maxDimension int) (*domain.Derivative, error)
}

// Journal records attempt progress. Journal failures never change a decision.
type Journal interface {
	MarkRunning(ctx context.Context, job *domain.Job, workerID string) error
	RecordOutcome(ctx context.Context, jobID, status, derivativeKey, errorMsg string) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Transport   queue.Transport // nil keeps the loop idling
	Fetcher     Fetcher
	Transformer Transformer
	Originals   sink.Sink   // optional archive of fetched bytes
	Journal     Journal     // optional
	Locker      lock.Locker // optional cross-node guard

	WorkerID          string
	Concurrency       int
	MaxAttempts       int
	MaxDimension      int
	PollWait          time.Duration
	IdleDelay         time.Duration
	JobTimeout        time.Duration
	SettleTimeout     time.Duration // bounds applying the queue decision
	HeartbeatInterval time.Duration
}

// Stats counts settled deliveries
type Stats struct {
	Processed    int64
	Acknowledged int64
	Released     int64
	DeadLettered int64
}

// Worker polls the queue and processes image jobs
type Worker struct {
	logger      *slog.Logger
	transport   queue.Transport
	fetcher     Fetcher
	transformer Transformer
	originals   sink.Sink
	journal     Journal
	locker      lock.Locker

	workerID          string
	concurrency       int
	maxAttempts       int
	maxDimension      int
	pollWait          time.Duration
	idleDelay         time.Duration
	jobTimeout        time.Duration
	settleTimeout     time.Duration
	heartbeatInterval time.Duration

	slots    chan struct{}
	inflight singleflight.Group
	wg       sync.WaitGroup
	started  atomic.Bool

	processed    atomic.Int64
	acknowledged atomic.Int64
	released     atomic.Int64
	deadLettered atomic.Int64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		transport:         cfg.Transport,
		fetcher:           cfg.Fetcher,
		transformer:       cfg.Transformer,
		originals:         cfg.Originals,
		journal:           cfg.Journal,
		locker:            cfg.Locker,
		workerID:          cfg.WorkerID,
		concurrency:       cfg.Concurrency,
		maxAttempts:       cfg.MaxAttempts,
		maxDimension:      cfg.MaxDimension,
		pollWait:          cfg.PollWait,
		idleDelay:         cfg.IdleDelay,
		jobTimeout:        cfg.JobTimeout,
		settleTimeout:     cfg.SettleTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = domain.DefaultMaxAttempts
	}
	if w.maxDimension <= 0 {
		w.maxDimension = domain.DefaultMaxDimension
	}
	if w.pollWait <= 0 {
		w.pollWait = defaultPollWait
	}
	if w.idleDelay <= 0 {
		w.idleDelay = defaultIdleDelay
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.settleTimeout <= 0 {
		w.settleTimeout = defaultSettleTimeout
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = defaultHeartbeat
	}

	w.slots = make(chan struct{}, w.concurrency)
	return w
}

// Start launches the polling loop and returns immediately. Canceling ctx
// begins draining: no new polls are issued, jobs already being processed
// run to completion and have their decision applied.
func (w *Worker) Start(ctx context.Context) error {
	if w.fetcher == nil || w.transformer == nil {
		return errors.New("worker requires a fetcher and a transformer")
	}
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("worker already started")
	}

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_attempts", w.maxAttempts),
		slog.Int("max_dimension", w.maxDimension),
		slog.Duration("poll_wait", w.pollWait),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Bool("transport_configured", w.transport != nil),
	)

	w.wg.Add(1)
	go w.pollLoop(ctx)

	return nil
}

// Stop waits until the polling loop has exited and every in-flight job is settled
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.wg.Wait()
	w.logger.Info("Worker stopped",
		slog.Int64("processed", w.processed.Load()),
	)
}

// Stats returns delivery counters
func (w *Worker) Stats() Stats {
	return Stats{
		Processed:    w.processed.Load(),
		Acknowledged: w.acknowledged.Load(),
		Released:     w.released.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}
