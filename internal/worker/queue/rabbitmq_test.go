package queue

import (
	"context"
	"testing"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryCount(t *testing.T) {
	tests := []struct {
		name     string
		delivery amqp.Delivery
		expected int
	}{
		{"first delivery", amqp.Delivery{}, 1},
		{"classic redelivery", amqp.Delivery{Redelivered: true}, 2},
		{"quorum header int64", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int64(10)}, Redelivered: true}, 11},
		{"quorum header int32", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int32(2)}}, 3},
		{"quorum header zero", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": int64(0)}}, 1},
		{"garbage header ignored", amqp.Delivery{Headers: amqp.Table{"x-delivery-count": "many"}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeliveryCount(tt.delivery))
		})
	}
}

func TestRabbitTransport_RejectsForeignReceipts(t *testing.T) {
	transport := NewRabbitTransport(nil, "test", 1, nil)
	job := &domain.Job{ID: "job-1", ReceiptToken: uint64(1)}
	ctx := context.Background()

	assert.ErrorIs(t, transport.Acknowledge(ctx, job), ErrUnknownReceipt)
	assert.ErrorIs(t, transport.Release(ctx, job), ErrUnknownReceipt)
	assert.ErrorIs(t, transport.DeadLetter(ctx, job, "reason"), ErrUnknownReceipt)
}
