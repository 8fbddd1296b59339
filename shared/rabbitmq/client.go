package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected is returned when an operation needs a live channel
	ErrNotConnected = errors.New("not connected to RabbitMQ")

	// ErrPublishNacked is returned when the broker refuses a publish
	ErrPublishNacked = errors.New("publish nacked by RabbitMQ")
)

// confirmation is satisfied by *amqp.DeferredConfirmation
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool
	QueueName          string
	QueueType          string // quorum or classic
	QueueDurable       bool
	QueueAutoDelete    bool
	QueueExclusive     bool
	DeliveryLimit      int
	RoutingKey         string

	// Dead-letter topology. The main queue dead-letters into it as well, so
	// messages the broker gives up on end up next to the ones the worker routes.
	DeadLetterExchange   string
	DeadLetterQueue      string
	DeadLetterRoutingKey string

	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	ConnectionTimeout  time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
}

// Client represents a RabbitMQ client
type Client struct {
	config      *Config
	mu          sync.RWMutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger,
		closeChan:   make(chan *amqp.Error),
		isConnected: false,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// DSN returns the AMQP URL without exposing it in logs
func (c *Config) DSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.VHost,
	)
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(c.config.DSN(), amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	// Publishes are only reported successful once the broker confirms them.
	if err := c.channel.Confirm(false); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	c.closeChan = make(chan *amqp.Error, 1)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("dead_letter_queue", c.config.DeadLetterQueue),
	)

	return nil
}

// setup declares the work and dead-letter exchanges, queues and bindings
func (c *Client) setup() error {
	if c.config.DeadLetterExchange != "" {
		if err := c.declareBoundQueue(
			c.config.DeadLetterExchange,
			c.config.DeadLetterQueue,
			c.config.DeadLetterRoutingKey,
			c.queueArgs(false),
		); err != nil {
			return fmt.Errorf("dead-letter topology: %w", err)
		}
	}

	return c.declareBoundQueue(
		c.config.ExchangeName,
		c.config.QueueName,
		c.config.RoutingKey,
		c.queueArgs(true),
	)
}

func (c *Client) declareBoundQueue(exchange, queue, routingKey string, args amqp.Table) error {
	err := c.channel.ExchangeDeclare(
		exchange,                    // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	_, err = c.channel.QueueDeclare(
		queue,                    // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		args,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	err = c.channel.QueueBind(
		queue,      // queue name
		routingKey, // routing key
		exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	return nil
}

// queueArgs builds the x-arguments of a queue declaration
func (c *Client) queueArgs(work bool) amqp.Table {
	args := amqp.Table{}
	if c.config.QueueType != "" {
		args[amqp.QueueTypeArg] = c.config.QueueType
	}
	if work {
		if c.config.DeadLetterExchange != "" {
			args["x-dead-letter-exchange"] = c.config.DeadLetterExchange
			args["x-dead-letter-routing-key"] = c.config.DeadLetterRoutingKey
		}
		if c.config.DeliveryLimit > 0 {
			args[amqp.QueueTypeArg] = amqp.QueueTypeQuorum
			args["x-delivery-limit"] = c.config.DeliveryLimit
		}
	}
	return args
}

// Publish publishes a message to the work exchange
func (c *Client) Publish(ctx context.Context, body []byte, contentType string) error {
	return c.PublishWithRetry(ctx, c.config.ExchangeName, c.config.RoutingKey, amqp.Publishing{
		ContentType: contentType,
		Body:        body,
	})
}

// PublishDeadLetter publishes a message to the dead-letter exchange
func (c *Client) PublishDeadLetter(ctx context.Context, body []byte, contentType string, headers amqp.Table) error {
	if c.config.DeadLetterExchange == "" {
		return errors.New("dead-letter exchange is not configured")
	}

	return c.PublishWithRetry(ctx, c.config.DeadLetterExchange, c.config.DeadLetterRoutingKey, amqp.Publishing{
		ContentType: contentType,
		Headers:     headers,
		Body:        body,
	})
}

// Consume starts consuming messages from the work queue with manual acknowledgement
func (c *Client) Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error) {
	channel := c.GetChannel()
	if channel == nil {
		return nil, ErrNotConnected
	}

	if prefetchCount > 0 {
		if err := channel.Qos(prefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	messages, err := channel.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetchCount),
	)

	return messages, nil
}

// EnsureConnected reconnects when the connection or channel was closed
func (c *Client) EnsureConnected() error {
	if c.IsConnected() {
		return nil
	}

	c.logger.Warn("RabbitMQ connection lost, reconnecting")
	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	return c.connect()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

// HealthCheck reports whether the connection and channel are open
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// GetChannel returns the channel for advanced operations
func (c *Client) GetChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isConnected {
		return nil
	}
	return c.channel
}

// PublishWithRetry publishes a persistent message with retry logic and exponential backoff.
// An attempt succeeds only when the broker confirms the message.
func (c *Client) PublishWithRetry(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	channel := c.GetChannel()
	if channel == nil {
		return ErrNotConnected
	}

	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3 // default
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond // default
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0 // default
	}

	msg.DeliveryMode = amqp.Persistent
	msg.Timestamp = time.Now()

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		dc, err := channel.PublishWithDeferredConfirmWithContext(
			ctx,
			exchange,   // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			msg,
		)
		if err == nil {
			if dc == nil {
				err = errors.New("channel is not in confirm mode")
			} else {
				err = awaitConfirm(ctx, dc)
			}
		}

		if err == nil {
			if attempt > 0 {
				c.logger.Info("Successfully published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.Int("body_size", len(msg.Body)),
				)
			} else {
				c.logger.Debug("Message published to RabbitMQ",
					slog.String("exchange", exchange),
					slog.Int("body_size", len(msg.Body)),
					slog.String("content_type", msg.ContentType),
				)
			}
			return nil
		}

		lastErr = err

		if attempt < maxRetries {
			c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", maxRetries),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("publish canceled: %w", ctx.Err())
			}
			delay = time.Duration(float64(delay) * backoffMult)
		}
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// awaitConfirm blocks until the broker acks or nacks the publish
func awaitConfirm(ctx context.Context, confirm confirmation) error {
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}
