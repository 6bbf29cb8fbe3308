package ingest

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Service owns the explicit per-instance state of the ingestion pipeline:
// the bounded queue, metrics, and the metadata defaults applied to every
// event. It is constructed at startup and handed to the HTTP layer and the
// consumer pool; there is no package-level queue.
type Service struct {
	queue   *Queue
	metrics *Metrics
	clock   clockwork.Clock
	logger  *zap.Logger
	source  string
}

type Params struct {
	Queue   *Queue
	Metrics *Metrics
	Clock   clockwork.Clock
	Logger  *zap.Logger
	Source  string
}

// NewService constructs an ingestion Service. Queue is required; everything
// else has working defaults.
func NewService(p Params) *Service {
	if p.Queue == nil {
		p.Queue = NewQueue(DefaultQueueCapacity)
	}
	if p.Metrics == nil {
		p.Metrics = NewMetrics()
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Source == "" {
		p.Source = DefaultSource
	}
	return &Service{
		queue:   p.Queue,
		metrics: p.Metrics,
		clock:   p.Clock,
		logger:  p.Logger,
		source:  p.Source,
	}
}

// Ingest normalizes each event in submission order and enqueues it without
// blocking. The first rejection stops the batch: remaining events are
// dropped, not retried, not reordered. Queue-full is not an error to the
// caller; it shows up as accepted < submitted.
func (s *Service) Ingest(events []Event) IngestResponse {
	accepted := 0
	for _, event := range events {
		event.Normalize(s.clock.Now(), s.source)
		if err := s.queue.TryPut(event); err != nil {
			s.metrics.EventsRejected.Add(float64(len(events) - accepted))
			s.logger.Debug("queue full, rejecting remainder of batch",
				zap.Int("accepted", accepted),
				zap.Int("submitted", len(events)),
			)
			break
		}
		accepted++
	}

	s.metrics.EventsAccepted.Add(float64(accepted))
	s.metrics.QueueDepth.Set(float64(s.queue.Depth()))

	return IngestResponse{
		Accepted:   accepted,
		QueuedSize: s.queue.Depth(),
		Timestamp:  FormatTimestamp(s.clock.Now()),
	}
}

// Queue exposes the backing queue for the consumer pool.
func (s *Service) Queue() *Queue {
	return s.queue
}

// Metrics exposes the service collectors for the HTTP layer and consumers.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}
