package generator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/your-org/floodgate/internal/ingest"
)

// Stats accumulates run counters across workers. Counters are atomics; the
// latency histogram has its own lock (hdrhistogram is not goroutine-safe).
type Stats struct {
	sent     atomic.Int64 // events attempted, in batch increments
	requests atomic.Int64
	errors   atomic.Int64
	accepted atomic.Int64 // per server responses
	rejected atomic.Int64

	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newStats() *Stats {
	// 1µs..60s at 3 significant figures
	return &Stats{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// RecordSend counts one completed iteration: batch events attempted, whether
// or not the request was delivered.
func (s *Stats) RecordSend(batch int, latency time.Duration) {
	s.sent.Add(int64(batch))
	s.requests.Add(1)

	s.mu.Lock()
	_ = s.hist.RecordValue(latency.Microseconds())
	s.mu.Unlock()
}

// RecordResponse folds in a successful ingest response.
func (s *Stats) RecordResponse(resp *ingest.IngestResponse, batch int) {
	s.accepted.Add(int64(resp.Accepted))
	if dropped := batch - resp.Accepted; dropped > 0 {
		s.rejected.Add(int64(dropped))
	}
}

// RecordFailure counts a failed send.
func (s *Stats) RecordFailure() {
	s.errors.Add(1)
}

// TotalSent reports events attempted so far.
func (s *Stats) TotalSent() int64 {
	return s.sent.Load()
}

// Report is the immutable end-of-run summary, available only after every
// worker has finished.
type Report struct {
	TotalSent int64
	Requests  int64
	Errors    int64
	Accepted  int64
	Rejected  int64
	Elapsed   time.Duration

	LatencyP50 time.Duration
	LatencyP90 time.Duration
	LatencyP99 time.Duration
	LatencyMax time.Duration
}

// EffectiveRate is the achieved events-per-second over the run.
func (r *Report) EffectiveRate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.TotalSent) / r.Elapsed.Seconds()
}

func (s *Stats) report(elapsed time.Duration) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Report{
		TotalSent:  s.sent.Load(),
		Requests:   s.requests.Load(),
		Errors:     s.errors.Load(),
		Accepted:   s.accepted.Load(),
		Rejected:   s.rejected.Load(),
		Elapsed:    elapsed,
		LatencyP50: time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond,
		LatencyP90: time.Duration(s.hist.ValueAtQuantile(90)) * time.Microsecond,
		LatencyP99: time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond,
		LatencyMax: time.Duration(s.hist.Max()) * time.Microsecond,
	}
}
