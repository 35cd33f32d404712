// Package authority implements the single-writer scheme: exactly one
// participant is primary at a time and only it executes state-mutating
// actions. Everyone else submits intents over the broadcast channel and
// waits for a completion signal. This is a best-effort, config-assisted
// election, not a fault-tolerant one: two participants can briefly both
// believe they are primary during a reconnect race, and the system accepts
// that (handlers must tolerate duplicate delivery).
package authority

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/pkg/wire"
)

// Broadcast is the outbound side of the shared channel: fire-and-forget,
// at-most-once.
type Broadcast interface {
	Emit(env wire.Envelope)
}

// Participants exposes the currently active privileged participants in
// stable join order. The hub roster implements this.
type Participants interface {
	ActivePrivileged() []string
}

// Handler executes one authoritative action. It must be safe under
// duplicate delivery: re-check possession, ball existence and budgets
// before mutating.
type Handler func(ctx context.Context, payload json.RawMessage) error

type Router struct {
	self    string
	primary string // configured primary participant id, may be empty
	timeout time.Duration
	bus     Broadcast
	parts   Participants
	log     *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	waiters  map[string][]chan struct{} // action name -> completion waiters
}

func NewRouter(self, configuredPrimary string, timeout time.Duration, bus Broadcast, parts Participants, log *zap.Logger) *Router {
	return &Router{
		self:     self,
		primary:  configuredPrimary,
		timeout:  timeout,
		bus:      bus,
		parts:    parts,
		log:      log,
		handlers: make(map[string]Handler),
		waiters:  make(map[string][]chan struct{}),
	}
}

func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Primary returns the current authoritative participant id: the configured
// primary when it is active, otherwise the first active privileged
// participant in join order.
func (r *Router) Primary() string {
	active := r.parts.ActivePrivileged()
	if r.primary != "" {
		for _, id := range active {
			if id == r.primary {
				return r.primary
			}
		}
	}
	if len(active) > 0 {
		return active[0]
	}
	return ""
}

func (r *Router) IsPrimary() bool {
	return r.Primary() == r.self
}

// ExecuteAsAuthority runs the action on the authority. A primary caller
// executes the handler in place and reports its outcome. A non-primary
// caller broadcasts the intent and waits for the completion signal; false
// after the timeout means "no confirmation received", not "failed". The
// action may still have run.
func (r *Router) ExecuteAsAuthority(ctx context.Context, action string, payload any) bool {
	raw := wire.MustMarshal(payload)

	if r.IsPrimary() {
		return r.runLocal(ctx, action, raw)
	}

	done := make(chan struct{}, 1)
	r.mu.Lock()
	r.waiters[action] = append(r.waiters[action], done)
	r.mu.Unlock()

	r.bus.Emit(wire.Envelope{
		Type:    wire.TypeIntent,
		From:    r.self,
		Action:  action,
		Payload: raw,
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	r.dropWaiter(action, done)
	r.log.Warn("no confirmation from authority", zap.String("action", action))
	return false
}

// Deliver feeds one inbound envelope to the router. Intents are executed
// when this node is primary; completion signals release local waiters.
func (r *Router) Deliver(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.TypeIntent:
		if env.From == r.self || !r.IsPrimary() {
			return
		}
		r.runLocal(ctx, env.Action, env.Payload)
	case wire.TypeCompleted:
		r.complete(env.Action)
	}
}

func (r *Router) runLocal(ctx context.Context, action string, payload json.RawMessage) bool {
	r.mu.Lock()
	h := r.handlers[action]
	r.mu.Unlock()
	if h == nil {
		r.log.Warn("no handler registered", zap.String("action", action))
		return false
	}
	if err := h(ctx, payload); err != nil {
		r.log.Info("action rejected", zap.String("action", action), zap.Error(err))
		return false
	}
	r.bus.Emit(wire.Envelope{Type: wire.TypeCompleted, From: r.self, Action: action})
	return true
}

func (r *Router) complete(action string) {
	r.mu.Lock()
	ws := r.waiters[action]
	delete(r.waiters, action)
	r.mu.Unlock()
	for _, ch := range ws {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *Router) dropWaiter(action string, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := r.waiters[action]
	for i, ch := range ws {
		if ch == done {
			r.waiters[action] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(r.waiters[action]) == 0 {
		delete(r.waiters, action)
	}
}
