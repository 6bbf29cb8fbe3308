package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/floodgate/internal/ingest"
	"github.com/your-org/floodgate/pkg/config"
	"github.com/your-org/floodgate/pkg/logger"
	"github.com/your-org/floodgate/pkg/sink"
	"github.com/your-org/floodgate/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	var downstream sink.Sink = sink.Nop{}
	if cfg.Sink.Enabled {
		downstream = sink.NewKafka(sink.KafkaConfig{
			Brokers:      cfg.Sink.Brokers,
			Topic:        cfg.Sink.Topic,
			BatchSize:    cfg.Sink.BatchSize,
			BatchTimeout: cfg.Sink.BatchTimeout,
			Compression:  sink.CompressionFromString(cfg.Sink.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Sink.Retries,
		})
	}

	queue := ingest.NewQueue(cfg.Queue.Capacity)
	metrics := ingest.NewMetrics()

	service := ingest.NewService(ingest.Params{
		Queue:   queue,
		Metrics: metrics,
		Logger:  logr,
	})

	pool := ingest.NewConsumerPool(ingest.ConsumerPoolParams{
		Queue:   queue,
		Metrics: metrics,
		Sink:    downstream,
		Logger:  logr,
		Size:    cfg.Consume.Count,
		Latency: cfg.Consume.DrainLatency,
	})
	// Consumers span the service lifetime; they stop through pool.Stop, not
	// through the signal context.
	pool.Start(context.Background())

	handler := ingest.NewHTTPHandler(service, logr)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		// Strict ordering: cancel every consumer, await them all, then close
		// the sink. Only after that is the service stopped.
		if err := pool.Stop(); err != nil {
			logr.Error("consumer pool shutdown failed", zap.Error(err))
		}
		if err := downstream.Close(shutdownCtx); err != nil {
			logr.Error("sink close failed", zap.Error(err))
		}
	}()

	logr.Info("ingestion service starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Int("queue_capacity", queue.Capacity()),
		zap.Int("consumers", cfg.Consume.Count),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
	<-shutdownDone
	logr.Info("ingestion service stopped")
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
