package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Queue drivers
const (
	QueueDriverRabbitMQ = "rabbitmq"
	QueueDriverNone     = "none"
)

// Storage drivers
const (
	StorageDriverFile = "file"
	StorageDriverGCS  = "gcs"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Queue    QueueDriver    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. The worker only
// writes the job journal when Enabled is set.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"` // quorum or classic
	Durable       bool   `yaml:"durable"`
	AutoDelete    bool   `yaml:"auto_delete"`
	Exclusive     bool   `yaml:"exclusive"`
	DeliveryLimit int    `yaml:"delivery_limit"`
}

// DeadLetterConfig holds the terminal queue topology
type DeadLetterConfig struct {
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// RedisConfig holds the cross-node job lock settings
type RedisConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval"`
	LockWaitTimeout   time.Duration `yaml:"lock_wait_timeout"`
}

// StorageConfig selects where derivatives and archived originals are written
type StorageConfig struct {
	Driver       string    `yaml:"driver"` // file or gcs
	OutputDir    string    `yaml:"output_dir"`
	OriginalsDir string    `yaml:"originals_dir"`
	GCS          GCSConfig `yaml:"gcs"`
}

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	OutputPrefix    string `yaml:"output_prefix"`
	OriginalsPrefix string `yaml:"originals_prefix"`
}

// QueueDriver selects the worker's transport
type QueueDriver struct {
	Driver string `yaml:"driver"` // rabbitmq or none
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID                string        `yaml:"id"`
	Concurrency       int           `yaml:"concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	MaxDimension      int           `yaml:"max_dimension"`
	PollWait          time.Duration `yaml:"poll_wait"`
	IdleDelay         time.Duration `yaml:"idle_delay"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	SettleTimeout     time.Duration `yaml:"settle_timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	UserAgent         string        `yaml:"user_agent"`
	MaxBytes          int64         `yaml:"max_bytes"`
	MaxPixels         int           `yaml:"max_pixels"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
	KeepOriginals     bool          `yaml:"keep_originals"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"` // must cover job_timeout + settle_timeout
}

// Default returns the configuration used for every key the file leaves out
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:         5432,
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		RabbitMQ: RabbitMQConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "image_jobs",
				Type:    "direct",
				Durable: true,
			},
			Queue: QueueConfig{
				Name:    "image_jobs",
				Type:    "quorum",
				Durable: true,
			},
			RoutingKey: "image.process",
			DeadLetter: DeadLetterConfig{
				Exchange:   "image_jobs.dlx",
				Queue:      "image_jobs.dead",
				RoutingKey: "image.dead",
			},
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
		Redis: RedisConfig{
			LockTTL:           30 * time.Second,
			LockRetryInterval: 200 * time.Millisecond,
			LockWaitTimeout:   10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:       StorageDriverFile,
			OutputDir:    "output",
			OriginalsDir: "originals",
		},
		Queue: QueueDriver{Driver: QueueDriverRabbitMQ},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Worker: WorkerConfig{
			Concurrency:       1,
			MaxAttempts:       11,
			MaxDimension:      256,
			PollWait:          20 * time.Second,
			IdleDelay:         time.Second,
			JobTimeout:        2 * time.Minute,
			SettleTimeout:     30 * time.Second,
			FetchTimeout:      30 * time.Second,
			MaxBytes:          32 << 20,
			MaxPixels:         40_000_000,
			JPEGQuality:       75,
			HeartbeatInterval: 10 * time.Second,
			ShutdownTimeout:   3 * time.Minute,
		},
	}
}

// Load reads and parses the configuration file, then applies environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	textVars := []struct {
		key    string
		target *string
	}{
		{"QUEUE_NAME", &c.RabbitMQ.Queue.Name},
		{"DEAD_LETTER_QUEUE_NAME", &c.RabbitMQ.DeadLetter.Queue},
		{"RABBITMQ_HOST", &c.RabbitMQ.Host},
		{"RABBITMQ_USER", &c.RabbitMQ.User},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
		{"DATABASE_HOST", &c.Database.Host},
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"REDIS_URL", &c.Redis.URL},
		{"GCS_BUCKET", &c.Storage.GCS.Bucket},
		{"OUTPUT_DIR", &c.Storage.OutputDir},
	}
	for _, s := range textVars {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.target = v
		}
	}

	intVars := []struct {
		key    string
		target *int
	}{
		{"MAX_ATTEMPTS", &c.Worker.MaxAttempts},
		{"MAX_DIMENSION", &c.Worker.MaxDimension},
		{"WORKER_CONCURRENCY", &c.Worker.Concurrency},
	}
	for _, i := range intVars {
		v, ok := lookup(i.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", i.key, err)
		}
		*i.target = n
	}

	secondVars := []struct {
		key    string
		target *time.Duration
	}{
		{"POLL_WAIT_SECONDS", &c.Worker.PollWait},
		{"IDLE_DELAY_SECONDS", &c.Worker.IdleDelay},
	}
	for _, s := range secondVars {
		v, ok := lookup(s.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", s.key, err)
		}
		*s.target = time.Duration(n * float64(time.Second))
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	return c.validateRabbitMQ()
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	w := c.Worker

	if w.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if w.MaxAttempts <= 0 {
		return fmt.Errorf("worker max_attempts must be greater than 0")
	}

	if w.MaxDimension <= 0 {
		return fmt.Errorf("worker max_dimension must be greater than 0")
	}

	if w.PollWait <= 0 {
		return fmt.Errorf("worker poll_wait must be greater than 0")
	}

	if w.IdleDelay <= 0 {
		return fmt.Errorf("worker idle_delay must be greater than 0")
	}

	if w.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if w.SettleTimeout <= 0 {
		return fmt.Errorf("worker settle_timeout must be greater than 0")
	}

	// Draining waits for the slowest legal attempt plus its queue decision.
	if w.ShutdownTimeout < w.JobTimeout+w.SettleTimeout {
		return fmt.Errorf("worker shutdown_timeout %s must be at least job_timeout + settle_timeout (%s)",
			w.ShutdownTimeout, w.JobTimeout+w.SettleTimeout)
	}

	if w.MaxBytes <= 0 {
		return fmt.Errorf("worker max_bytes must be greater than 0")
	}

	if w.MaxPixels <= 0 {
		return fmt.Errorf("worker max_pixels must be greater than 0")
	}

	if w.JPEGQuality < 1 || w.JPEGQuality > 100 {
		return fmt.Errorf("worker jpeg_quality must be between 1 and 100")
	}

	switch c.Queue.Driver {
	case QueueDriverRabbitMQ:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		if c.RabbitMQ.DeadLetter.Exchange == "" || c.RabbitMQ.DeadLetter.Queue == "" {
			return fmt.Errorf("rabbitmq dead_letter exchange and queue are required")
		}
		// Classic queues do not count redeliveries, so retries would never end.
		if c.RabbitMQ.Queue.Type == "classic" {
			return fmt.Errorf("rabbitmq queue type must be quorum for the worker")
		}
		// The worker dead-letters at delivery max_attempts+1; the broker limit must not fire first.
		if limit := c.RabbitMQ.Queue.DeliveryLimit; limit > 0 && limit <= w.MaxAttempts+1 {
			return fmt.Errorf("rabbitmq queue delivery_limit %d must be greater than worker max_attempts + 1 (%d)",
				limit, w.MaxAttempts+1)
		}
	case QueueDriverNone:
	default:
		return fmt.Errorf("unknown queue driver: %q", c.Queue.Driver)
	}

	switch c.Storage.Driver {
	case StorageDriverFile:
		if c.Storage.OutputDir == "" {
			return fmt.Errorf("storage output_dir is required")
		}
		if w.KeepOriginals && c.Storage.OriginalsDir == "" {
			return fmt.Errorf("storage originals_dir is required when keep_originals is set")
		}
	case StorageDriverGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage gcs bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.Redis.Enabled {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis url is required when redis is enabled")
		}
		if c.Redis.LockTTL <= w.HeartbeatInterval {
			return fmt.Errorf("redis lock_ttl must be longer than worker heartbeat_interval")
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
