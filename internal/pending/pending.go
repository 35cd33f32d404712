// Package pending is the correlation-id pending-request table. It is the
// sole mechanism for re-joining an asynchronous reply to its awaiting call
// site: the requester registers a fresh id, sends it out, and blocks in
// Await; whoever sees the echoed id calls Resolve. Exactly one of Resolve
// and the timeout settles a given id.
package pending

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Table struct {
	mu      sync.Mutex
	waiters map[string]chan json.RawMessage
}

func NewTable() *Table {
	return &Table{waiters: make(map[string]chan json.RawMessage)}
}

// NewID returns a fresh single-use correlation id.
func NewID() string {
	return uuid.NewString()
}

// Register creates the waiter slot for id. Must be called before the request
// leaves, or a fast responder could race the registration.
func (t *Table) Register(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiters[id] = make(chan json.RawMessage, 1)
}

// Resolve delivers the payload for id. Returns false if the id is unknown or
// was already settled; an id can never be resolved twice.
func (t *Table) Resolve(id string, payload json.RawMessage) bool {
	t.mu.Lock()
	ch, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload // buffered, never blocks
	return true
}

// Await blocks until the id is resolved, the timeout fires, or ctx is done.
// The second return is false on timeout/cancellation. A late Resolve after
// Await has given up finds the slot gone and is a no-op.
func (t *Table) Await(ctx context.Context, id string, timeout time.Duration) (json.RawMessage, bool) {
	t.mu.Lock()
	ch, ok := t.waiters[id]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, true
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timed out or cancelled. Remove the slot, but a Resolve may have won
	// the race after the timer fired and before we reacquired the lock; if
	// so the answer is sitting in the buffered channel and still counts.
	t.mu.Lock()
	_, live := t.waiters[id]
	delete(t.waiters, id)
	t.mu.Unlock()
	if !live {
		select {
		case payload := <-ch:
			return payload, true
		default:
		}
	}
	return nil, false
}

// Len reports the number of unresolved requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
