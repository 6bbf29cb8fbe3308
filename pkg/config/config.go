package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the ingestion service.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Queue   QueueConfig
	Consume ConsumerConfig
	Sink    SinkConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"floodgate-ingestion"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type QueueConfig struct {
	Capacity int `env:"QUEUE_CAPACITY" envDefault:"10000"`
}

type ConsumerConfig struct {
	Count int `env:"CONSUMER_COUNT" envDefault:"4"`
	// Simulated downstream processing latency per event.
	DrainLatency time.Duration `env:"CONSUMER_DRAIN_LATENCY" envDefault:"1ms"`
}

type SinkConfig struct {
	Enabled          bool          `env:"SINK_ENABLED" envDefault:"false"`
	Brokers          []string      `env:"SINK_KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic            string        `env:"SINK_KAFKA_TOPIC" envDefault:"floodgate.events"`
	Retries          int           `env:"SINK_KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"SINK_KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"SINK_KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"SINK_KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=floodgate"`
}

// StorageConfig holds object-store credentials for s3:// payload sources on
// the generator side.
type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage parses the object-store environment variables.
func LoadStorage() (*StorageConfig, error) {
	cfg := &StorageConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
