package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
)

// pollLoop is the dispatcher. A poll is issued only once a pool goroutine is
// free, so no job sits received but unstarted while the pool is busy.
func (w *Worker) pollLoop(ctx context.Context) {
	defer w.wg.Done()

	jobsChan := make(chan *domain.Job)
	w.spawnWorkerPool(ctx, jobsChan)
	defer close(jobsChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Draining - polling stopped", slog.String("worker_id", w.workerID))
			return
		case w.slots <- struct{}{}:
		}

		job, err := w.poll(ctx)
		if err != nil || job == nil {
			<-w.slots
			if err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to poll queue", slog.String("error", err.Error()))
				w.sleep(ctx, w.idleDelay)
			}
			continue
		}

		jobsChan <- job
	}
}

func (w *Worker) poll(ctx context.Context) (*domain.Job, error) {
	if w.transport == nil {
		w.logger.Debug("No queue configured, idling", slog.Duration("idle_delay", w.idleDelay))
		w.sleep(ctx, w.idleDelay)
		return nil, nil
	}

	job, err := w.transport.Poll(ctx, w.pollWait)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, nil
		}
		return nil, err
	}
	if job == nil {
		w.logger.Debug("No messages in the queue")
	}

	return job, nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context, jobsChan <-chan *domain.Job) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i, jobsChan)
	}
}

// workerLoop processes jobs until the dispatcher closes jobsChan. Jobs run on a
// context detached from ctx so that draining lets them finish.
func (w *Worker) workerLoop(ctx context.Context, workerNum int, jobsChan <-chan *domain.Job) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started", slog.String("worker_name", workerName))

	for job := range jobsChan {
		w.logger.Info("Worker received job",
			slog.String("worker_name", workerName),
			slog.String("job_id", job.ID),
			slog.Int("delivery_count", job.DeliveryCount),
		)

		w.handle(context.WithoutCancel(ctx), job)
		<-w.slots
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed", slog.String("worker_name", workerName))
}
