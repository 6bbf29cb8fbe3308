package generator

import "fmt"

// TransportError is a failed send: network error, timeout, or non-2xx
// status. It never stops a worker's loop; the next scheduled iteration is
// the de facto retry.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("send to %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("send to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FailureClass labels worker-loop failures for the failure hook.
type FailureClass string

const (
	// FailurePayload: the payload source could not be resolved. Fatal to
	// the worker.
	FailurePayload FailureClass = "payload"
	// FailureTransport: a send failed. Logged and skipped.
	FailureTransport FailureClass = "transport"
)

// FailureHook observes classified worker failures. The dispatcher installs a
// logging hook by default; tests install their own to assert on failures
// without scraping log output.
type FailureHook func(workerID int, class FailureClass, err error)
