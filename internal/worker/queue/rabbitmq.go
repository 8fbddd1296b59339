package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/cuongbtq/image-worker/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	headerDeliveryCount   = "x-delivery-count"
	headerDeadLetterCause = "x-image-worker-reason"
	headerDeliveries      = "x-image-worker-deliveries"
)

// ErrConsumerClosed is returned when the broker closed the delivery channel
var ErrConsumerClosed = errors.New("rabbitmq delivery channel closed")

// RabbitTransport adapts a RabbitMQ consumer to the Transport interface.
// The receipt token of a job is its amqp.Delivery.
type RabbitTransport struct {
	client        *rabbitmq.Client
	logger        *slog.Logger
	consumerTag   string
	prefetchCount int

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitTransport creates a transport; consuming starts on the first Poll
func NewRabbitTransport(client *rabbitmq.Client, consumerTag string, prefetchCount int, logger *slog.Logger) *RabbitTransport {
	return &RabbitTransport{
		client:        client,
		logger:        logger,
		consumerTag:   consumerTag,
		prefetchCount: prefetchCount,
	}
}

func (t *RabbitTransport) consumer() (<-chan amqp.Delivery, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.deliveries != nil {
		return t.deliveries, nil
	}

	if err := t.client.EnsureConnected(); err != nil {
		return nil, err
	}

	deliveries, err := t.client.Consume(t.consumerTag, t.prefetchCount)
	if err != nil {
		return nil, err
	}
	t.deliveries = deliveries
	return deliveries, nil
}

func (t *RabbitTransport) resetConsumer() {
	t.mu.Lock()
	t.deliveries = nil
	t.mu.Unlock()
}

func (t *RabbitTransport) Poll(ctx context.Context, wait time.Duration) (*domain.Job, error) {
	deliveries, err := t.consumer()
	if err != nil {
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
		return nil, nil
	case delivery, ok := <-deliveries:
		if !ok {
			t.resetConsumer()
			return nil, ErrConsumerClosed
		}
		return domain.NewJob(delivery.Body, DeliveryCount(delivery), delivery), nil
	}
}

func (t *RabbitTransport) delivery(job *domain.Job) (amqp.Delivery, error) {
	delivery, ok := job.ReceiptToken.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, ErrUnknownReceipt
	}
	return delivery, nil
}

func (t *RabbitTransport) Acknowledge(_ context.Context, job *domain.Job) error {
	delivery, err := t.delivery(job)
	if err != nil {
		return err
	}
	if err := delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", delivery.DeliveryTag, err)
	}
	return nil
}

func (t *RabbitTransport) Release(_ context.Context, job *domain.Job) error {
	delivery, err := t.delivery(job)
	if err != nil {
		return err
	}
	if err := delivery.Nack(false, true); err != nil {
		return fmt.Errorf("failed to nack delivery %d: %w", delivery.DeliveryTag, err)
	}
	return nil
}

func (t *RabbitTransport) DeadLetter(ctx context.Context, job *domain.Job, reason string) error {
	delivery, err := t.delivery(job)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	headers[headerDeadLetterCause] = reason
	headers[headerDeliveries] = int64(job.DeliveryCount)

	contentType := delivery.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	if err := t.client.PublishDeadLetter(ctx, delivery.Body, contentType, headers); err != nil {
		return fmt.Errorf("failed to publish to dead-letter queue: %w", err)
	}
	return nil
}

// DeliveryCount derives the 1-based delivery count of a message. Quorum
// queues report previous deliveries in x-delivery-count; classic queues only
// expose the redelivered flag.
func DeliveryCount(delivery amqp.Delivery) int {
	if raw, ok := delivery.Headers[headerDeliveryCount]; ok {
		if previous, ok := toInt(raw); ok && previous >= 0 {
			return previous + 1
		}
	}
	if delivery.Redelivered {
		return 2
	}
	return 1
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
