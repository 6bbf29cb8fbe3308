package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/your-org/floodgate/internal/ingest"
)

// requestTimeout is the fixed per-request deadline on outbound sends. There
// is no other timeout or cancellation propagation into in-flight requests.
const requestTimeout = 10 * time.Second

// Transport sends one ingestion request per dispatch iteration. It must be
// safe for concurrent use by all workers.
type Transport interface {
	Send(ctx context.Context, events []map[string]any) (*ingest.IngestResponse, error)
}

// HTTPTransport posts JSON event batches to the ingest endpoint over a
// shared connection-pooled client.
type HTTPTransport struct {
	client *http.Client
	url    string
}

// NewHTTPTransport builds a transport for the given endpoint, sized for the
// given worker concurrency.
func NewHTTPTransport(url string, concurrency int) *HTTPTransport {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &HTTPTransport{
		url: url,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        concurrency * 2,
				MaxIdleConnsPerHost: concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Send posts the batch. A single-element batch is sent as a bare object,
// larger batches as an array. Network failures, non-2xx statuses, and
// undecodable responses are all TransportError.
func (t *HTTPTransport) Send(ctx context.Context, events []map[string]any) (*ingest.IngestResponse, error) {
	var body any = events
	if len(events) == 1 {
		body = events[0]
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{URL: t.url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{URL: t.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: t.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{URL: t.url, Status: resp.StatusCode}
	}

	var decoded ingest.IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{URL: t.url, Err: err}
	}
	return &decoded, nil
}
