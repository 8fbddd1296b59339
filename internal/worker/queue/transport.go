package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
)

// ErrUnknownReceipt is returned when a receipt token does not belong to an in-flight delivery
var ErrUnknownReceipt = errors.New("unknown or already settled receipt")

// Transport is the queue as seen by the processing loop
type Transport interface {
	// Poll waits up to wait for one job. It returns nil, nil when nothing
	// became visible or ctx was canceled while waiting.
	Poll(ctx context.Context, wait time.Duration) (*domain.Job, error)

	// Acknowledge removes the delivery from the queue.
	Acknowledge(ctx context.Context, job *domain.Job) error

	// Release makes the delivery visible again immediately.
	Release(ctx context.Context, job *domain.Job) error

	// DeadLetter publishes the job to the terminal queue. The caller still
	// acknowledges the original delivery afterwards.
	DeadLetter(ctx context.Context, job *domain.Job, reason string) error
}
