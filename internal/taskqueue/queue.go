// Package taskqueue implements the in-memory task identifier FIFO
// described in spec.md §4.5: it carries identifiers only, never entities,
// so workers hydrate each task under a fresh unit of work.
package taskqueue

import (
	"context"
	"sync"

	"github.com/placescout/scoutengine/internal/domain"
)

// Queue is a concurrency-safe FIFO of task identifiers, with a blocking
// DequeueOrWait for worker loops that should idle rather than busy-poll
// while later retries may still be re-enqueued.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []domain.ID
	drained bool
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueAll appends ids to the tail of the queue in order and wakes any
// blocked DequeueOrWait callers.
func (q *Queue) EnqueueAll(ids []domain.ID) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, ids...)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Dequeue returns the head of the queue without blocking. ok is false if
// the queue is currently empty.
func (q *Queue) Dequeue() (id domain.ID, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id = q.items[0]
	q.items = q.items[1:]
	return id, true
}

// DequeueOrWait blocks until an item is available, the queue is drained, or
// ctx is cancelled. A worker loop calls this between iterations so a
// late-arriving retry (re-enqueued failure) is served without the caller
// spinning.
func (q *Queue) DequeueOrWait(ctx context.Context) (id domain.ID, ok bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.drained {
		if ctx.Err() != nil {
			return "", false
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	id = q.items[0]
	q.items = q.items[1:]
	return id, true
}

// Remaining reports the number of items currently queued.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain marks the queue closed and wakes every blocked waiter, which then
// observe an empty queue and return ok=false. Drain does not discard
// already-enqueued items still reachable via Dequeue.
func (q *Queue) Drain() {
	q.mu.Lock()
	q.drained = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
