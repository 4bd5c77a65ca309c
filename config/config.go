package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/finch-technologies/go-sqs-listener/adapters"
	"github.com/finch-technologies/go-sqs-listener/listener"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/memory"
	"github.com/finch-technologies/go-sqs-listener/queue/redis"
	"github.com/finch-technologies/go-sqs-listener/queue/sqs"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Driver string

const (
	DriverSQS    Driver = "sqs"
	DriverRedis  Driver = "redis"
	DriverMemory Driver = "memory"
)

type Config struct {
	Driver Driver `mapstructure:"QUEUE_DRIVER"`

	Queue                  string        `mapstructure:"SQS_QUEUE"`
	QueueURL               string        `mapstructure:"SQS_QUEUE_URL"`
	Interval               int           `mapstructure:"SQS_INTERVAL"`
	VisibilityTimeout      int           `mapstructure:"SQS_VISIBILITY_TIMEOUT"`
	ErrorQueue             string        `mapstructure:"SQS_ERROR_QUEUE"`
	ErrorVisibilityTimeout int           `mapstructure:"SQS_ERROR_VISIBILITY_TIMEOUT"`
	MessageAttributeNames  []string      `mapstructure:"SQS_MESSAGE_ATTRIBUTE_NAMES"`
	AttributeNames         []string      `mapstructure:"SQS_ATTRIBUTE_NAMES"`
	ForceDelete            bool          `mapstructure:"SQS_FORCE_DELETE"`
	WaitTime               int           `mapstructure:"SQS_WAIT_TIME"`
	MaxNumberOfMessages    int           `mapstructure:"SQS_MAX_NUMBER_OF_MESSAGES"`
	CreateQueue            bool          `mapstructure:"SQS_CREATE_QUEUE"`
	ErrorBackoff           time.Duration `mapstructure:"SQS_ERROR_BACKOFF"`
	MaxReceiveErrors       int           `mapstructure:"SQS_MAX_RECEIVE_ERRORS"`

	// AWS
	Region    string `mapstructure:"AWS_REGION"`
	Endpoint  string `mapstructure:"SQS_ENDPOINT"`
	AccessKey string `mapstructure:"AWS_ACCESS_KEY_ID"`
	SecretKey string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	AccountID string `mapstructure:"AWS_ACCOUNT_ID"`

	// Redis
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisScheme   string `mapstructure:"REDIS_SCHEME"`

	MetricsAddr  string `mapstructure:"METRICS_ADDR"`
	OtlpEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtlpProtocol string `mapstructure:"OTEL_EXPORTER_OTLP_PROTOCOL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("QUEUE_DRIVER", string(DriverSQS))

	v.SetDefault("SQS_QUEUE", "")
	v.SetDefault("SQS_QUEUE_URL", "")
	v.SetDefault("SQS_INTERVAL", listener.DefaultInterval)
	v.SetDefault("SQS_VISIBILITY_TIMEOUT", listener.DefaultVisibilityTimeout)
	v.SetDefault("SQS_ERROR_QUEUE", "")
	v.SetDefault("SQS_ERROR_VISIBILITY_TIMEOUT", listener.DefaultErrorVisibilityTimeout)
	v.SetDefault("SQS_MESSAGE_ATTRIBUTE_NAMES", "")
	v.SetDefault("SQS_ATTRIBUTE_NAMES", "")
	v.SetDefault("SQS_FORCE_DELETE", false)
	v.SetDefault("SQS_WAIT_TIME", 0)
	v.SetDefault("SQS_MAX_NUMBER_OF_MESSAGES", listener.DefaultMaxNumberOfMessages)
	v.SetDefault("SQS_CREATE_QUEUE", true)
	v.SetDefault("SQS_ERROR_BACKOFF", listener.DefaultErrorBackoff)
	v.SetDefault("SQS_MAX_RECEIVE_ERRORS", 0)

	v.SetDefault("AWS_REGION", "")
	v.SetDefault("SQS_ENDPOINT", "")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_ACCOUNT_ID", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 4)
	v.SetDefault("REDIS_SCHEME", "")

	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
}

// Load reads the configuration from the environment, a .env file in the
// working directory and, when path is set, an env-format config file.
// Environment variables win over the file.
func Load(path string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return cfg, nil
}

// ListenerConfig returns the listener settings for queueName, or for the
// configured queue when queueName is empty.
func (c Config) ListenerConfig(queueName string) listener.Config {
	cfg := listener.Config{
		Queue:                  c.Queue,
		QueueURL:               c.QueueURL,
		Interval:               c.Interval,
		VisibilityTimeout:      c.VisibilityTimeout,
		ErrorQueue:             c.ErrorQueue,
		ErrorVisibilityTimeout: c.ErrorVisibilityTimeout,
		MessageAttributeNames:  c.MessageAttributeNames,
		AttributeNames:         c.AttributeNames,
		ForceDelete:            c.ForceDelete,
		WaitTime:               c.WaitTime,
		MaxNumberOfMessages:    c.MaxNumberOfMessages,
		DisableQueueCreation:   !c.CreateQueue,
		ErrorBackoff:           c.ErrorBackoff,
		MaxReceiveErrors:       c.MaxReceiveErrors,
	}
	if queueName != "" {
		cfg.Queue = queueName
		cfg.QueueURL = ""
	}
	return cfg
}

func (c Config) SQSConfig() sqs.SQSConfig {
	return sqs.SQSConfig{
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		AccountID: c.AccountID,
	}
}

func (c Config) RedisConfig() adapters.RedisConfig {
	return adapters.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TLS:      c.RedisScheme == "tls",
	}
}

// Backend builds the queue backend selected by QUEUE_DRIVER.
func (c Config) Backend(ctx context.Context) (queue.Backend, error) {
	switch c.Driver {
	case DriverSQS:
		backend, err := sqs.New(ctx, c.SQSConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create sqs backend: %w", err)
		}
		return backend, nil
	case DriverRedis:
		return redis.New(adapters.GetRedisClient(c.RedisConfig())), nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown queue driver %q", queue.ErrConfiguration, c.Driver)
	}
}
