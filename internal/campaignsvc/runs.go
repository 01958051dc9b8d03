package campaignsvc

import (
	"context"
	"sync"

	"github.com/placescout/scoutengine/internal/domain"
)

// runRegistry tracks the cancel func of each campaign's in-flight
// Orchestrator run, so the WebSocket gateway's cancel_extraction command
// can reach it without the service holding a long-lived goroutine handle.
type runRegistry struct {
	mu      sync.Mutex
	cancels map[domain.ID]context.CancelFunc
}

func newRunRegistry() runRegistry {
	return runRegistry{cancels: make(map[domain.ID]context.CancelFunc)}
}

func (r *runRegistry) register(id domain.ID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

func (r *runRegistry) unregister(id domain.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

func (r *runRegistry) cancel(id domain.ID) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
