package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueCapacityInvariant(t *testing.T) {
	q := NewQueue(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.TryPut(Event{"n": i}))
		assert.LessOrEqual(t, q.Depth(), q.Capacity())
	}

	// At capacity: insert fails immediately, does not wait, does not grow.
	err := q.TryPut(Event{"n": 3})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 3, q.Depth())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.Get(ctx)
		require.NoError(t, err)
		q.MarkDone()
		assert.GreaterOrEqual(t, q.Depth(), 0)
	}
	assert.Equal(t, 0, q.Depth())
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.TryPut(Event{"n": i}))
	}

	for i := 0; i < 5; i++ {
		e, err := q.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, e["n"])
		q.MarkDone()
	}
}

func TestQueueGetBlocksUntilCancelled(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewQueue(0).Capacity())
	assert.Equal(t, DefaultQueueCapacity, NewQueue(-1).Capacity())
}

func TestQueueDrainWaitsForCompletionMarks(t *testing.T) {
	q := NewQueue(10)
	require.NoError(t, q.TryPut(Event{"a": 1}))
	require.NoError(t, q.TryPut(Event{"b": 2}))

	drained := make(chan struct{})
	go func() {
		q.Drain()
		close(drained)
	}()

	// Removal alone is not completion.
	_, err := q.Get(context.Background())
	require.NoError(t, err)
	select {
	case <-drained:
		t.Fatal("Drain returned before events were marked done")
	case <-time.After(20 * time.Millisecond):
	}

	q.MarkDone()
	_, err = q.Get(context.Background())
	require.NoError(t, err)
	q.MarkDone()

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after all events were marked done")
	}
}

func TestQueueConcurrentProducersAndConsumers(t *testing.T) {
	const (
		producers = 8
		perWorker = 50
	)
	q := NewQueue(producers * perWorker)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, q.TryPut(Event{"i": i}))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*perWorker, q.Depth())

	var cwg sync.WaitGroup
	for c := 0; c < 4; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				_, err := q.Get(ctx)
				cancel()
				if err != nil {
					return
				}
				q.MarkDone()
			}
		}()
	}
	cwg.Wait()

	assert.Equal(t, 0, q.Depth())
	q.Drain() // must not hang
}
