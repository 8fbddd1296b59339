package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/cuongbtq/image-worker/internal/worker/lock"
	"github.com/cuongbtq/image-worker/internal/worker/policy"
)

type attemptResult struct {
	outcome    domain.Outcome
	derivative *domain.Derivative
}

// handle runs one attempt for a received job and applies the resulting queue decision
func (w *Worker) handle(ctx context.Context, job *domain.Job) {
	w.processed.Add(1)
	logger := w.logger.With(
		slog.String("job_id", job.ID),
		slog.Int("delivery_count", job.DeliveryCount),
	)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	start := time.Now()
	result := w.process(jobCtx, logger, job)
	cancel()

	decision := policy.Decide(result.outcome, job.DeliveryCount, w.maxAttempts)
	logger.Debug("Attempt finished",
		slog.String("outcome", result.outcome.Kind.String()),
		slog.String("decision", decision.String()),
		slog.Duration("duration", time.Since(start)),
	)

	settleCtx, settleCancel := context.WithTimeout(ctx, w.settleTimeout)
	defer settleCancel()
	w.apply(settleCtx, logger, job, result, decision)
}

// process guarantees at most one attempt per job id inside this process.
// A duplicate delivery arriving mid-attempt shares the running attempt's result.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *domain.Job) attemptResult {
	if err := job.Validate(); err != nil {
		return attemptResult{outcome: policy.Classify(err, nil)}
	}

	v, _, shared := w.inflight.Do(job.ID, func() (any, error) {
		return w.attempt(ctx, logger, job), nil
	})
	if shared {
		logger.Info("Duplicate delivery joined in-flight attempt")
	}

	return v.(attemptResult)
}

func (w *Worker) attempt(ctx context.Context, logger *slog.Logger, job *domain.Job) (result attemptResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while processing job",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			result = attemptResult{outcome: policy.Classify(nil, fmt.Errorf("%w: panic: %v", domain.ErrUnexpected, r))}
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if w.locker != nil {
		lease, err := w.locker.Acquire(ctx, job.ID)
		if err != nil {
			return attemptResult{outcome: policy.Classify(nil, fmt.Errorf("%w: %v", domain.ErrUnexpected, err))}
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release job lock", slog.String("error", err.Error()))
			}
		}()

		heartbeatDone := make(chan struct{})
		defer close(heartbeatDone)
		go w.sendLockHeartbeat(ctx, logger, lease, cancel, heartbeatDone)
	}

	w.markRunning(ctx, logger, job)

	img, err := w.fetcher.Fetch(ctx, job.ImageURL)
	if err != nil {
		return attemptResult{outcome: policy.Classify(w.withCause(ctx, err), nil)}
	}

	if w.originals != nil {
		key := domain.DerivativeKey(job.ID, img.Subtype)
		if err := w.originals.Put(ctx, key, "image/"+img.Subtype, img.Data); err != nil {
			logger.Warn("Failed to archive original image",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	derivative, err := w.transformer.Transform(ctx, job.ID, img, w.maxDimension)
	if err != nil {
		return attemptResult{outcome: policy.Classify(nil, w.withCause(ctx, err))}
	}

	return attemptResult{outcome: domain.Success(), derivative: derivative}
}

// withCause attaches the reason the attempt context was canceled, such as a lost lock
func (w *Worker) withCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(err, cause) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w (%v)", err, cause)
}

// sendLockHeartbeat keeps the lease alive while the attempt runs. Losing the
// lease cancels the attempt so another node never overlaps with it.
func (w *Worker) sendLockHeartbeat(ctx context.Context, logger *slog.Logger, lease lock.Lease, cancel context.CancelCauseFunc, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lease.Refresh(ctx)
			if err == nil {
				continue
			}
			if errors.Is(err, lock.ErrLockLost) {
				logger.Error("Job lock lost, aborting attempt", slog.String("error", err.Error()))
				cancel(err)
				return
			}
			logger.Warn("Failed to refresh job lock", slog.String("error", err.Error()))
		}
	}
}

// apply performs the queue action for a decision. A failed dead-letter publish
// releases the message instead so the job is never lost.
func (w *Worker) apply(ctx context.Context, logger *slog.Logger, job *domain.Job, result attemptResult, decision domain.Decision) {
	reason := result.outcome.ReasonString()

	switch decision {
	case domain.DecisionAcknowledge:
		if err := w.transport.Acknowledge(ctx, job); err != nil {
			logger.Error("Failed to acknowledge job", slog.String("error", err.Error()))
			return
		}
		w.acknowledged.Add(1)

		key := ""
		if result.derivative != nil {
			key = result.derivative.Key
			logger.Info("Job completed successfully",
				slog.String("derivative_key", key),
				slog.Int("width", result.derivative.Width),
				slog.Int("height", result.derivative.Height),
			)
		}
		w.recordOutcome(ctx, logger, job, domain.JobStatusCompleted, key, "")

	case domain.DecisionRelease:
		logger.Warn("Job failed, releasing for redelivery",
			slog.String("reason", reason),
			slog.Int("max_attempts", w.maxAttempts),
		)
		w.release(ctx, logger, job, reason)

	case domain.DecisionDeadLetter:
		logger.Error("Job dead-lettered",
			slog.String("reason", reason),
			slog.String("outcome", result.outcome.Kind.String()),
		)
		if err := w.transport.DeadLetter(ctx, job, reason); err != nil {
			logger.Error("Failed to publish to dead-letter queue, releasing job instead",
				slog.String("error", err.Error()),
			)
			w.release(ctx, logger, job, reason)
			return
		}
		if err := w.transport.Acknowledge(ctx, job); err != nil {
			logger.Error("Failed to acknowledge dead-lettered job", slog.String("error", err.Error()))
		}
		w.deadLettered.Add(1)
		w.recordOutcome(ctx, logger, job, domain.JobStatusDeadLettered, "", reason)
	}
}

func (w *Worker) release(ctx context.Context, logger *slog.Logger, job *domain.Job, reason string) {
	if err := w.transport.Release(ctx, job); err != nil {
		logger.Error("Failed to release job", slog.String("error", err.Error()))
		return
	}
	w.released.Add(1)
	w.recordOutcome(ctx, logger, job, domain.JobStatusRetrying, "", reason)
}

func (w *Worker) markRunning(ctx context.Context, logger *slog.Logger, job *domain.Job) {
	if w.journal == nil {
		return
	}
	if err := w.journal.MarkRunning(ctx, job, w.workerID); err != nil {
		logger.Warn("Failed to mark job running", slog.String("error", err.Error()))
	}
}

func (w *Worker) recordOutcome(ctx context.Context, logger *slog.Logger, job *domain.Job, status, derivativeKey, errorMsg string) {
	if w.journal == nil || job.ID == "" {
		return
	}
	if err := w.journal.RecordOutcome(ctx, job.ID, status, derivativeKey, errorMsg); err != nil {
		logger.Warn("Failed to record job outcome",
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
}
