// Package generator implements the concurrent rate-limited dispatch engine.
package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PayloadProvider supplies one event payload per call. Implementations must
// be safe for concurrent workers.
type PayloadProvider interface {
	Payload(ctx context.Context) (map[string]any, error)
}

// Options control a dispatch run.
type Options struct {
	// Rate is the aggregate target requests per second across all workers.
	// Rate <= 0 means unpaced: workers send as fast as the transport
	// allows, yielding cooperatively between iterations.
	Rate float64
	// Duration bounds the run; <= 0 runs until the context is cancelled.
	Duration time.Duration
	// Concurrency is the fixed worker count; <= 0 is treated as 1.
	Concurrency int
	// BatchSize is events per request; < 1 is treated as 1.
	BatchSize int
	// JitterBound caps the uniform random delay added to each pacing
	// sleep; <= 0 disables jitter.
	JitterBound time.Duration
}

// Dispatcher fans a shared aggregate rate out over a fixed pool of workers.
type Dispatcher struct {
	transport Transport
	provider  PayloadProvider
	clock     clockwork.Clock
	logger    *zap.Logger
	onFailure FailureHook
	opts      Options
}

type DispatcherParams struct {
	Transport Transport
	Provider  PayloadProvider
	Clock     clockwork.Clock
	Logger    *zap.Logger
	OnFailure FailureHook
	Options   Options
}

// NewDispatcher constructs a Dispatcher. Transport and Provider are
// required; the default failure hook logs through the dispatcher's logger.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Options.Concurrency <= 0 {
		p.Options.Concurrency = 1
	}
	if p.Options.BatchSize < 1 {
		p.Options.BatchSize = 1
	}
	d := &Dispatcher{
		transport: p.Transport,
		provider:  p.Provider,
		clock:     p.Clock,
		logger:    p.Logger,
		onFailure: p.OnFailure,
		opts:      p.Options,
	}
	if d.onFailure == nil {
		d.onFailure = d.logFailure
	}
	return d
}

// WorkerRate is the per-worker target rate: the aggregate rate split evenly
// across the pool.
func (d *Dispatcher) WorkerRate() float64 {
	if d.opts.Rate <= 0 {
		return 0
	}
	return d.opts.Rate / float64(d.opts.Concurrency)
}

// Run starts the worker pool and blocks until every worker has finished.
// The report is produced once, after that barrier; there is no streaming
// total.
//
// A payload source failure aborts its worker and propagates out of Run,
// cancelling the remaining workers. Transport failures never do; they are
// classified through the failure hook and the loop continues. Either way the
// returned report reflects everything attempted before the run ended.
func (d *Dispatcher) Run(ctx context.Context) (*Report, error) {
	stats := newStats()
	workerRate := d.WorkerRate()
	start := d.clock.Now()

	d.logger.Info("dispatch run starting",
		zap.Float64("aggregate_rate", d.opts.Rate),
		zap.Float64("worker_rate", workerRate),
		zap.Int("concurrency", d.opts.Concurrency),
		zap.Int("batch_size", d.opts.BatchSize),
		zap.Duration("duration", d.opts.Duration),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.opts.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return d.worker(gctx, id, workerRate, start, stats)
		})
	}

	err := g.Wait()
	report := stats.report(d.clock.Since(start))

	d.logger.Info("dispatch run finished",
		zap.Int64("total_sent", report.TotalSent),
		zap.Int64("errors", report.Errors),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, err
}

func (d *Dispatcher) worker(ctx context.Context, id int, rate float64, start time.Time, stats *Stats) error {
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}

	var deadline time.Time
	if d.opts.Duration > 0 {
		deadline = start.Add(d.opts.Duration)
	}

	for deadline.IsZero() || d.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil
		}

		batch := make([]map[string]any, 0, d.opts.BatchSize)
		for len(batch) < d.opts.BatchSize {
			p, err := d.provider.Payload(ctx)
			if err != nil {
				d.onFailure(id, FailurePayload, err)
				return fmt.Errorf("worker %d: %w", id, err)
			}
			batch = append(batch, p)
		}

		begin := d.clock.Now()
		resp, err := d.transport.Send(ctx, batch)
		// The iteration counts as sent either way: attempted, not
		// necessarily delivered.
		stats.RecordSend(d.opts.BatchSize, d.clock.Since(begin))
		if err != nil {
			stats.RecordFailure()
			if ctx.Err() == nil {
				d.onFailure(id, FailureTransport, err)
			}
		} else {
			stats.RecordResponse(resp, d.opts.BatchSize)
		}

		if err := d.pace(ctx, interval); err != nil {
			return nil
		}
	}
	return nil
}

// pace sleeps for interval plus jitter through the injected clock, or yields
// cooperatively when unpaced. Returns non-nil only on context cancellation.
func (d *Dispatcher) pace(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			runtime.Gosched()
			return nil
		}
	}

	sleep := interval
	if d.opts.JitterBound > 0 {
		sleep += time.Duration(rand.Int64N(int64(d.opts.JitterBound) + 1))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.clock.After(sleep):
		return nil
	}
}

func (d *Dispatcher) logFailure(workerID int, class FailureClass, err error) {
	d.logger.Warn("worker iteration failed",
		zap.Int("worker", workerID),
		zap.String("class", string(class)),
		zap.Error(err),
	)
}
