package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/floodgate/pkg/sink"
)

// Defaults for the consumer pool.
const (
	DefaultConsumerCount = 4
	DefaultDrainLatency  = time.Millisecond
)

// ConsumerPool runs a fixed number of long-lived consumers that drain the
// queue for the whole service lifetime, independent of request handling.
// Each consumer blocks on the queue, simulates downstream latency, hands the
// event to the sink, and marks it done.
type ConsumerPool struct {
	queue   *Queue
	metrics *Metrics
	sink    sink.Sink
	clock   clockwork.Clock
	logger  *zap.Logger
	size    int
	latency time.Duration

	cancel context.CancelFunc
	group  *errgroup.Group
}

type ConsumerPoolParams struct {
	Queue   *Queue
	Metrics *Metrics
	Sink    sink.Sink
	Clock   clockwork.Clock
	Logger  *zap.Logger
	Size    int
	Latency time.Duration
}

// NewConsumerPool constructs a stopped pool. Queue is required.
func NewConsumerPool(p ConsumerPoolParams) *ConsumerPool {
	if p.Metrics == nil {
		p.Metrics = NewMetrics()
	}
	if p.Sink == nil {
		p.Sink = sink.Nop{}
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Size <= 0 {
		p.Size = DefaultConsumerCount
	}
	if p.Latency < 0 {
		p.Latency = DefaultDrainLatency
	}
	return &ConsumerPool{
		queue:   p.Queue,
		metrics: p.Metrics,
		sink:    p.Sink,
		clock:   p.Clock,
		logger:  p.Logger,
		size:    p.Size,
		latency: p.Latency,
	}
}

// Start launches the consumers. They run until Stop is called or ctx is
// cancelled.
func (cp *ConsumerPool) Start(ctx context.Context) {
	ctx, cp.cancel = context.WithCancel(ctx)
	cp.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < cp.size; i++ {
		id := i
		cp.group.Go(func() error {
			return cp.consume(ctx, id)
		})
	}
	cp.logger.Info("consumer pool started", zap.Int("consumers", cp.size))
}

// Stop cancels every consumer, then waits for all of them to exit.
// Cancellation-induced errors are suppressed. After Stop returns no consumer
// is running or holding a queue item.
func (cp *ConsumerPool) Stop() error {
	if cp.cancel == nil {
		return nil
	}
	cp.cancel()
	if err := cp.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer pool shutdown: %w", err)
	}
	cp.logger.Info("consumer pool stopped")
	return nil
}

func (cp *ConsumerPool) consume(ctx context.Context, id int) error {
	logger := cp.logger.With(zap.Int("consumer", id))
	for {
		event, err := cp.queue.Get(ctx)
		if err != nil {
			return err
		}

		cp.process(ctx, logger, event)

		// The event left the queue above; always release its pending mark,
		// even when cancelled mid-processing.
		cp.queue.MarkDone()
		cp.metrics.EventsConsumed.Inc()
		cp.metrics.QueueDepth.Set(float64(cp.queue.Depth()))
	}
}

func (cp *ConsumerPool) process(ctx context.Context, logger *zap.Logger, event Event) {
	if cp.latency > 0 {
		select {
		case <-ctx.Done():
			return
		case <-cp.clock.After(cp.latency):
		}
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.Warn("event not serializable, dropping", zap.Error(err))
		return
	}

	var key []byte
	if src, ok := event[MetaSource].(string); ok {
		key = []byte(src)
	}
	headers := map[string]string{"content-type": "application/json"}

	if err := cp.sink.Deliver(ctx, key, value, headers); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("sink delivery failed", zap.Error(err))
	}
}
