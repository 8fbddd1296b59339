package config

import (
	"time"

	"github.com/cuongbtq/image-worker/shared/logger"
	"github.com/cuongbtq/image-worker/shared/postgresql"
	"github.com/cuongbtq/image-worker/shared/rabbitmq"
)

// LoggerConfig maps logging settings onto the shared logger
func (c *LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:        c.Level,
		Format:       c.Format,
		Output:       c.Output,
		EnableSource: c.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}

// ClientConfig maps database settings onto the shared PostgreSQL client
func (c *DatabaseConfig) ClientConfig() *postgresql.Config {
	return &postgresql.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ClientConfig maps broker settings onto the shared RabbitMQ client
func (c *RabbitMQConfig) ClientConfig() *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:                 c.Host,
		Port:                 c.Port,
		User:                 c.User,
		Password:             c.Password,
		VHost:                c.VHost,
		ExchangeName:         c.Exchange.Name,
		ExchangeType:         c.Exchange.Type,
		ExchangeDurable:      c.Exchange.Durable,
		ExchangeAutoDelete:   c.Exchange.AutoDelete,
		QueueName:            c.Queue.Name,
		QueueType:            c.Queue.Type,
		QueueDurable:         c.Queue.Durable,
		QueueAutoDelete:      c.Queue.AutoDelete,
		QueueExclusive:       c.Queue.Exclusive,
		DeliveryLimit:        c.Queue.DeliveryLimit,
		RoutingKey:           c.RoutingKey,
		DeadLetterExchange:   c.DeadLetter.Exchange,
		DeadLetterQueue:      c.DeadLetter.Queue,
		DeadLetterRoutingKey: c.DeadLetter.RoutingKey,
		RetryAttempts:        c.Connection.RetryAttempts,
		RetryInterval:        c.Connection.RetryInterval,
		Heartbeat:            c.Connection.Heartbeat,
		ConnectionTimeout:    c.Connection.ConnectionTimeout,
		PublishRetries:       c.Publish.RetryAttempts,
		PublishRetryDelay:    c.Publish.RetryInterval,
		PublishBackoffMult:   c.Publish.BackoffMultiplier,
	}
}
