package sink

import (
	"context"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Kafka forwards drained events to a Kafka topic.
type Kafka struct {
	writer *kafkago.Writer
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafkago.Compression
	RequiredAcks kafkago.RequiredAcks
	MaxAttempts  int
}

// NewKafka constructs a Kafka sink from the given configuration.
func NewKafka(cfg KafkaConfig) *Kafka {
	return &Kafka{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: cfg.RequiredAcks,
			Compression:  cfg.Compression,
			MaxAttempts:  cfg.MaxAttempts,
		},
	}
}

// Deliver publishes one event with optional headers.
func (k *Kafka) Deliver(ctx context.Context, key, value []byte, headers map[string]string) error {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}

	for hk, hv := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: hk, Value: []byte(hv)})
	}

	return k.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close(ctx context.Context) error {
	return k.writer.Close()
}

// CompressionFromString maps textual codec to kafka-go value.
func CompressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "snappy":
		return kafkago.Snappy
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
