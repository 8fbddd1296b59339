package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
)

type memoryMessage struct {
	body       []byte
	deliveries int
}

// DeadLetterRecord is a message routed to the in-memory dead-letter queue
type DeadLetterRecord struct {
	JobID         string
	Body          []byte
	Reason        string
	DeliveryCount int
}

// MemoryTransport is an in-process queue with redelivery counting
type MemoryTransport struct {
	mu           sync.Mutex
	ready        []*memoryMessage
	inFlight     map[uint64]*memoryMessage
	nextReceipt  uint64
	notify       chan struct{}
	acked        []string
	released     []string
	deadLettered []DeadLetterRecord
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		ready:    make([]*memoryMessage, 0, 32),
		inFlight: make(map[uint64]*memoryMessage),
		notify:   make(chan struct{}, 1),
	}
}

// Publish enqueues a raw message body
func (q *MemoryTransport) Publish(body []byte) {
	q.mu.Lock()
	q.ready = append(q.ready, &memoryMessage{body: slices.Clone(body)})
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryTransport) Poll(ctx context.Context, wait time.Duration) (*domain.Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if job := q.next(); job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryTransport) next() *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil
	}

	msg := q.ready[0]
	q.ready = q.ready[1:]
	msg.deliveries++

	q.nextReceipt++
	receipt := q.nextReceipt
	q.inFlight[receipt] = msg

	return domain.NewJob(msg.body, msg.deliveries, receipt)
}

func (q *MemoryTransport) settle(job *domain.Job) (*memoryMessage, error) {
	receipt, ok := job.ReceiptToken.(uint64)
	if !ok {
		return nil, ErrUnknownReceipt
	}
	msg, ok := q.inFlight[receipt]
	if !ok {
		return nil, ErrUnknownReceipt
	}
	delete(q.inFlight, receipt)
	return msg, nil
}

func (q *MemoryTransport) Acknowledge(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.settle(job); err != nil {
		return err
	}
	q.acked = append(q.acked, job.ID)
	return nil
}

func (q *MemoryTransport) Release(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	msg, err := q.settle(job)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	q.ready = append(q.ready, msg)
	q.released = append(q.released, job.ID)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *MemoryTransport) DeadLetter(_ context.Context, job *domain.Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.deadLettered = append(q.deadLettered, DeadLetterRecord{
		JobID:         job.ID,
		Body:          slices.Clone(job.Body),
		Reason:        reason,
		DeliveryCount: job.DeliveryCount,
	})
	return nil
}

func (q *MemoryTransport) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of messages waiting to be delivered
func (q *MemoryTransport) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// InFlight returns the number of delivered, unsettled messages
func (q *MemoryTransport) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *MemoryTransport) Acked() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.acked)
}

func (q *MemoryTransport) Released() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.released)
}

func (q *MemoryTransport) DeadLettered() []DeadLetterRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.deadLettered)
}
