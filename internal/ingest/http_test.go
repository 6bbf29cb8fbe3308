package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	queue   *Queue
	service *Service
	server  *httptest.Server
}

// newTestEnv builds a full service with no consumers attached, so queued
// events stay queued and backpressure is observable.
func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()
	queue := NewQueue(capacity)
	service := NewService(Params{
		Queue: queue,
		Clock: clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 123_000_000, time.UTC)),
	})
	handler := NewHTTPHandler(service, zap.NewNop())
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return &testEnv{queue: queue, service: service, server: server}
}

func (env *testEnv) post(t *testing.T, body string) (int, IngestResponse, map[string]string) {
	t.Helper()
	resp, err := http.Post(env.server.URL+"/events", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var ok IngestResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
		return resp.StatusCode, ok, nil
	}
	var detail map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	return resp.StatusCode, IngestResponse{}, detail
}

func TestIngestBackpressureSequential(t *testing.T) {
	// Capacity 2, no consumers: third single-event POST is rejected.
	env := newTestEnv(t, 2)

	wantAccepted := []int{1, 1, 0}
	wantQueued := []int{1, 2, 2}
	for i := 0; i < 3; i++ {
		status, resp, _ := env.post(t, fmt.Sprintf(`{"n":%d}`, i))
		assert.Equal(t, http.StatusOK, status, "queue-full is not an HTTP error")
		assert.Equal(t, wantAccepted[i], resp.Accepted, "post %d", i)
		assert.Equal(t, wantQueued[i], resp.QueuedSize, "post %d", i)
	}
}

func TestIngestBatchStopsAtFirstRejection(t *testing.T) {
	// One free slot left; a batch of 3 gets exactly one event in and the
	// remaining two are dropped.
	env := newTestEnv(t, 2)
	_, resp, _ := env.post(t, `{"seed":true}`)
	require.Equal(t, 1, resp.Accepted)

	status, resp, _ := env.post(t, `[{"a":1},{"b":2},{"c":3}]`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, env.queue.Capacity(), resp.QueuedSize)

	// The dropped events are gone, not queued behind.
	assert.Equal(t, 2, env.queue.Depth())
}

func TestIngestSingleObjectAndOneElementArrayEquivalent(t *testing.T) {
	envObj := newTestEnv(t, 10)
	envArr := newTestEnv(t, 10)

	const event = `{"event_type":"click","user_id":"u1"}`
	_, respObj, _ := envObj.post(t, event)
	_, respArr, _ := envArr.post(t, `[`+event+`]`)

	assert.Equal(t, 1, respObj.Accepted)
	assert.Equal(t, 1, respArr.Accepted)

	stored1, err := envObj.queue.Get(context.Background())
	require.NoError(t, err)
	stored2, err := envArr.queue.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored1, stored2)
}

func TestIngestMetadataNonDestructive(t *testing.T) {
	env := newTestEnv(t, 10)

	_, resp, _ := env.post(t, `{"_source":"my-agent","k":"v"}`)
	require.Equal(t, 1, resp.Accepted)

	stored, err := env.queue.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-agent", stored[MetaSource])
	assert.Equal(t, "2024-01-01T00:00:00.123Z", stored[MetaReceivedAt])
}

func TestIngestMetadataDefaults(t *testing.T) {
	env := newTestEnv(t, 10)

	_, resp, _ := env.post(t, `{"k":"v"}`)
	require.Equal(t, 1, resp.Accepted)
	assert.Equal(t, "2024-01-01T00:00:00.123Z", resp.Timestamp)

	stored, err := env.queue.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSource, stored[MetaSource])
	assert.Equal(t, "2024-01-01T00:00:00.123Z", stored[MetaReceivedAt])
}

func TestIngestRejectsMalformedBodies(t *testing.T) {
	env := newTestEnv(t, 10)

	cases := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"broken":`},
		{"array with number", `[{"ok":1}, 7]`},
		{"bare string", `"nope"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _, detail := env.post(t, tc.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, detail["detail"])
		})
	}

	// Nothing reached the queue.
	assert.Equal(t, 0, env.queue.Depth())
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	_, err = time.Parse("2006-01-02T15:04:05.000Z", body["time"])
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 10)
	env.post(t, `{"n":1}`)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
