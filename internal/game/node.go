// Package game wires the authority router, match store, ball state machine,
// decision protocol and scoring evaluator into one participant node. The
// node is the only place match state gets mutated, and every mutating flow
// runs under one mutex: the single-writer discipline is the whole
// concurrency model, there are no other locks around match state.
package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/authority"
	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/decision"
	"github.com/tvasek/gridball-backend/internal/match"
	"github.com/tvasek/gridball-backend/internal/pending"
	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/internal/store"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

// Broadcast is the outbound side of the shared channel.
type Broadcast interface {
	Emit(env wire.Envelope)
}

// Animator resolves when an entity's visual transit has settled. The
// fixed-delay fallback is used when no visual engine is attached.
type Animator interface {
	AnimateMove(ctx context.Context, entityID string, to board.Point)
}

type settleAnimator struct {
	delay time.Duration
}

func (a settleAnimator) AnimateMove(ctx context.Context, _ string, _ board.Point) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
	}
}

type Config struct {
	Self         string
	Rules        rules.Rules
	Bus          Broadcast
	Participants authority.Participants
	Store        *store.Store
	Board        *board.Board
	Animator     Animator // nil: fixed settle delay
	Clock        func() time.Time
	Rand         *rand.Rand
	Log          *zap.Logger
}

type Node struct {
	self  string
	rules rules.Rules
	log   *zap.Logger
	bus   Broadcast

	router *authority.Router
	parts  authority.Participants
	store  *store.Store
	pend   *pending.Table
	dec    *decision.Protocol
	anim   Animator
	clock  func() time.Time
	rand   *rand.Rand

	// flowMu serializes authoritative flows. The board and the effects map
	// are only touched while holding it.
	flowMu  sync.Mutex
	board   *board.Board
	effects map[string]match.CarrierEffect
}

func NewNode(cfg Config) *Node {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Animator == nil {
		cfg.Animator = settleAnimator{delay: cfg.Rules.SettleDelay}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	n := &Node{
		self:    cfg.Self,
		rules:   cfg.Rules,
		log:     cfg.Log,
		bus:     cfg.Bus,
		parts:   cfg.Participants,
		store:   cfg.Store,
		board:   cfg.Board,
		pend:    pending.NewTable(),
		anim:    cfg.Animator,
		clock:   cfg.Clock,
		rand:    cfg.Rand,
		effects: make(map[string]match.CarrierEffect),
	}
	n.router = authority.NewRouter(cfg.Self, cfg.Rules.PrimaryParticipant,
		cfg.Rules.RPCTimeout, cfg.Bus, cfg.Participants, cfg.Log)
	n.dec = decision.New(n, cfg.Rules, cfg.Log)
	n.registerHandlers()
	return n
}

func (n *Node) Router() *authority.Router { return n.router }

// Deliver feeds one inbound envelope to the node. Decision responses and
// completion signals are settled inline (they only touch thread-safe
// tables); intents spawn a flow goroutine so a long decision exchange never
// blocks the transport.
func (n *Node) Deliver(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.TypeDecisionResponse:
		if env.To != "" && env.To != n.self {
			return
		}
		n.pend.Resolve(env.CorrelationID, env.Payload)
	case wire.TypeCompleted:
		n.router.Deliver(ctx, env)
	case wire.TypeIntent:
		go n.router.Deliver(ctx, env)
	}
}

// Request implements decision.Party: emit an addressed decision request and
// wait for the echoed correlation id.
func (n *Node) Request(ctx context.Context, to, kind string, payload any, timeout time.Duration) (json.RawMessage, bool) {
	id := pending.NewID()
	n.pend.Register(id)
	n.bus.Emit(wire.Envelope{
		Type:          wire.TypeDecisionRequest,
		From:          n.self,
		To:            to,
		Kind:          kind,
		CorrelationID: id,
		Payload:       wire.MustMarshal(payload),
	})
	return n.pend.Await(ctx, id, timeout)
}

// Submit routes an intent from this participant through the authority.
func (n *Node) Submit(ctx context.Context, action string, payload any) bool {
	return n.router.ExecuteAsAuthority(ctx, action, payload)
}

// AddEntity places an entity on the board (roster determination itself is an
// external concern; this is just the attachment point).
func (n *Node) AddEntity(e *board.Entity) error {
	n.flowMu.Lock()
	defer n.flowMu.Unlock()
	return n.board.Add(e)
}

// RemoveEntity clears an entity and its team assignment.
func (n *Node) RemoveEntity(id string) {
	n.flowMu.Lock()
	defer n.flowMu.Unlock()
	n.board.Remove(id)
	delete(n.effects, id)
}

// DropParticipant removes every entity the participant controlled, for good.
// If one of them was the carrier, the ball lands where it stood.
func (n *Node) DropParticipant(ctx context.Context, controller string) {
	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		n.log.Warn("drop participant read failed", zap.Error(err))
		return
	}
	var carrierPos *board.Point
	if m.CarrierID != "" {
		if ent, ok := n.board.Get(m.CarrierID); ok && ent.Controller == controller {
			pos := ent.Pos
			carrierPos = &pos
		}
	}
	n.board.DropAssignmentsFor(controller)
	for id := range n.effects {
		if _, live := n.board.Get(id); !live {
			delete(n.effects, id)
		}
	}
	if carrierPos == nil {
		return
	}
	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierID = ""
		m.Ball = match.OnGround(*carrierPos)
	}); err != nil {
		n.log.Warn("drop participant update failed", zap.Error(err))
	}
}
