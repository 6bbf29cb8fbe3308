package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Event is an arbitrary JSON object flowing through the pipeline.
type Event map[string]any

// Metadata fields stamped onto every event on ingest.
//
// "_recieved_at" is misspelled on the wire; downstream consumers already
// key on it, so it stays.
const (
	MetaReceivedAt = "_recieved_at"
	MetaSource     = "_source"

	DefaultSource = "events-generator"
)

// Normalize stamps default metadata onto the event. Caller-supplied values
// are never overwritten.
func (e Event) Normalize(now time.Time, source string) {
	if _, ok := e[MetaReceivedAt]; !ok {
		e[MetaReceivedAt] = FormatTimestamp(now)
	}
	if _, ok := e[MetaSource]; !ok {
		e[MetaSource] = source
	}
}

// FormatTimestamp renders t as RFC3339 UTC with millisecond precision,
// e.g. 2024-01-01T00:00:00.123Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// IngestResponse is returned for every well-formed POST /events body.
type IngestResponse struct {
	Accepted   int    `json:"accepted"`
	QueuedSize int    `json:"queued_size"`
	Timestamp  string `json:"timestamp"`
}

// RequestBody is the decoded /events payload. Exactly one of Object or
// Array is populated; every other body shape is rejected at decode time.
type RequestBody struct {
	Object Event
	Array  []Event
}

// Events flattens the body into the list of events to ingest, wrapping a
// single object in a one-element slice.
func (b RequestBody) Events() []Event {
	if b.Object != nil {
		return []Event{b.Object}
	}
	return b.Array
}

// DecodeRequestBody parses data as either a single JSON object or an array
// of JSON objects. Arrays containing non-objects, scalars, and malformed
// JSON all fail.
func DecodeRequestBody(data []byte) (RequestBody, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return RequestBody{}, fmt.Errorf("invalid JSON: empty body")
	}

	switch trimmed[0] {
	case '{':
		var obj Event
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return RequestBody{}, fmt.Errorf("invalid JSON: %w", err)
		}
		return RequestBody{Object: obj}, nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return RequestBody{}, fmt.Errorf("invalid JSON: %w", err)
		}
		events := make([]Event, 0, len(raw))
		for i, msg := range raw {
			var obj Event
			if err := json.Unmarshal(msg, &obj); err != nil || obj == nil {
				return RequestBody{}, fmt.Errorf("element %d is not a JSON object", i)
			}
			events = append(events, obj)
		}
		return RequestBody{Array: events}, nil
	default:
		return RequestBody{}, fmt.Errorf("body must be a JSON object or array of objects")
	}
}
