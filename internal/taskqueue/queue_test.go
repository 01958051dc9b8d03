package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/placescout/scoutengine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnqueueAllAndDequeueFIFO(t *testing.T) {
	q := New()
	q.EnqueueAll([]domain.ID{"a", "b", "c"})

	assert.Equal(t, 3, q.Remaining())

	id, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, domain.ID("a"), id)

	id, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, domain.ID("b"), id)
}

func TestDequeueEmptyReturnsFalse(t *testing.T) {
	q := New()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestDequeueOrWaitBlocksUntilEnqueue(t *testing.T) {
	q := New()
	result := make(chan domain.ID, 1)

	go func() {
		id, ok := q.DequeueOrWait(context.Background())
		if ok {
			result <- id
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.EnqueueAll([]domain.ID{"late-arrival"})

	select {
	case id := <-result:
		assert.Equal(t, domain.ID("late-arrival"), id)
	case <-time.After(time.Second):
		t.Fatal("DequeueOrWait did not return after enqueue")
	}
}

func TestDequeueOrWaitRespectsCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.DequeueOrWait(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("DequeueOrWait did not unblock on cancellation")
	}
}

func TestDrainWakesWaiters(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.DequeueOrWait(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Drain()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Drain did not wake blocked waiter")
	}
}
