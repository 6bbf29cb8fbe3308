package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingServer struct {
	mu     sync.Mutex
	bodies [][]byte
	server *httptest.Server
}

func newRecordingServer(t *testing.T, status int, response string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, body)
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response)) //nolint:errcheck
	}))
	t.Cleanup(rs.server.Close)
	return rs
}

func (rs *recordingServer) lastBody() []byte {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.bodies[len(rs.bodies)-1]
}

func TestTransportSingleEventSentAsObject(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"accepted":1,"queued_size":1,"timestamp":"2024-01-01T00:00:00.000Z"}`)
	tr := NewHTTPTransport(rs.server.URL, 1)

	resp, err := tr.Send(context.Background(), []map[string]any{{"n": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(rs.lastBody(), &obj), "single-event batch must be a bare object")
	assert.Equal(t, float64(1), obj["n"])
}

func TestTransportBatchSentAsArray(t *testing.T) {
	rs := newRecordingServer(t, http.StatusOK, `{"accepted":3,"queued_size":3,"timestamp":"2024-01-01T00:00:00.000Z"}`)
	tr := NewHTTPTransport(rs.server.URL, 1)

	resp, err := tr.Send(context.Background(), []map[string]any{{"n": 1}, {"n": 2}, {"n": 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Accepted)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal(rs.lastBody(), &arr), "multi-event batch must be an array")
	assert.Len(t, arr, 3)
}

func TestTransportNonSuccessStatusIsError(t *testing.T) {
	rs := newRecordingServer(t, http.StatusBadRequest, `{"detail":"bad"}`)
	tr := NewHTTPTransport(rs.server.URL, 1)

	_, err := tr.Send(context.Background(), []map[string]any{{"n": 1}})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.Status)
}

func TestTransportConnectionFailureIsError(t *testing.T) {
	tr := NewHTTPTransport("http://127.0.0.1:1", 1)

	_, err := tr.Send(context.Background(), []map[string]any{{"n": 1}})
	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
}
