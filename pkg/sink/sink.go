// Package sink delivers drained events to a downstream system. The consumer
// pool hands every event it processes to a Sink; the default sink discards
// them, the Kafka sink forwards them.
package sink

import "context"

// Sink receives events after the consumer pool has processed them.
// Implementations must be safe for concurrent use by multiple consumers.
type Sink interface {
	Deliver(ctx context.Context, key, value []byte, headers map[string]string) error
	Close(ctx context.Context) error
}

// Nop discards everything. Used when the service runs standalone.
type Nop struct{}

func (Nop) Deliver(ctx context.Context, key, value []byte, headers map[string]string) error {
	return nil
}

func (Nop) Close(ctx context.Context) error {
	return nil
}
