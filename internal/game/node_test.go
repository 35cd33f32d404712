package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/match"
	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/internal/store"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

const gmID = "gm"

// testBus plays the session relay: it records every envelope and answers
// decision requests from a per-kind script (no entry: the request times
// out).
type testBus struct {
	mu     sync.Mutex
	node   *Node
	envs   []wire.Envelope
	script map[string]func(env wire.Envelope) (any, bool)
}

func (b *testBus) Emit(env wire.Envelope) {
	b.mu.Lock()
	b.envs = append(b.envs, env)
	node := b.node
	b.mu.Unlock()

	if env.Type != wire.TypeDecisionRequest || node == nil {
		return
	}
	fn, ok := b.script[env.Kind]
	if !ok {
		return
	}
	go func() {
		answer, ok := fn(env)
		if !ok {
			return
		}
		node.Deliver(context.Background(), wire.Envelope{
			Type:          wire.TypeDecisionResponse,
			From:          env.To,
			To:            env.From,
			CorrelationID: env.CorrelationID,
			Payload:       wire.MustMarshal(answer),
		})
	}()
}

type fakeParts struct{ ids []string }

func (f fakeParts) ActivePrivileged() []string { return f.ids }

type instantAnimator struct{}

func (instantAnimator) AnimateMove(context.Context, string, board.Point) {}

type harness struct {
	t     *testing.T
	node  *Node
	bus   *testBus
	store *store.Store
	board *board.Board
	rules rules.Rules
}

func testRules() rules.Rules {
	r := rules.Defaults()
	r.MoveLimit = 30
	r.ThrowLimit = 30
	// Keep timeout-resolving paths fast.
	r.AcceptTimeout = 30 * time.Millisecond
	r.SaveTypeTimeout = 30 * time.Millisecond
	r.RollTimeout = 30 * time.Millisecond
	r.DropTimeout = 30 * time.Millisecond
	return r
}

func newHarness(t *testing.T, r rules.Rules, script map[string]func(env wire.Envelope) (any, bool)) *harness {
	t.Helper()

	bus := &testBus{script: script}
	st := store.New(store.NewMemory(), "scene:test", "contest:T1", bus, zap.NewNop())
	zoneA := board.Zone{Min: board.Point{X: 0, Y: 0}, Max: board.Point{X: 10, Y: 50}}
	zoneB := board.Zone{Min: board.Point{X: 90, Y: 0}, Max: board.Point{X: 100, Y: 50}}
	bd := board.New(r.RosterCap, zoneA, zoneB)

	node := NewNode(Config{
		Self:         gmID,
		Rules:        r,
		Bus:          bus,
		Participants: fakeParts{ids: []string{gmID}},
		Store:        st,
		Board:        bd,
		Animator:     instantAnimator{},
		Rand:         rand.New(rand.NewSource(1)),
		Log:          zap.NewNop(),
	})
	bus.node = node
	return &harness{t: t, node: node, bus: bus, store: st, board: bd, rules: r}
}

func (h *harness) addEntity(id string, team board.Team, pos board.Point, controller string) *board.Entity {
	h.t.Helper()
	e := &board.Entity{ID: id, Team: team, Pos: pos, Controller: controller}
	require.NoError(h.t, h.node.AddEntity(e))
	return e
}

func (h *harness) setMatch(mutate func(*match.Match)) match.Match {
	h.t.Helper()
	m, err := h.store.Update(context.Background(), mutate)
	require.NoError(h.t, err)
	return m
}

func (h *harness) getMatch() match.Match {
	h.t.Helper()
	m, err := h.store.Get(context.Background())
	require.NoError(h.t, err)
	return m
}

func decline(wire.Envelope) (any, bool) {
	return wire.AcceptDecline{Accept: false}, true
}

func TestPickup_AttackerBecomesCarrier(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	a1 := h.addEntity("a1", board.TeamA, board.Point{X: 18, Y: 0}, "pa")
	h.setMatch(func(m *match.Match) { m.Ball = match.OnGround(board.Point{X: 20, Y: 0}) })

	ok := h.node.Submit(context.Background(), wire.ActionPickupBall,
		wire.PickupPayload{Actor: "pa", EntityID: "a1"})
	require.True(t, ok)

	m := h.getMatch()
	require.Equal(t, "a1", m.CarrierID)
	require.Equal(t, match.BallHeld, m.Ball.State)
	require.Equal(t, h.rules.CarrierGrant, a1.Temp, "possession should grant the temp pool")
}

// A defender touching the ball never becomes the carrier: the phase ends and
// possession swaps.
func TestPickup_DefenderTriggersTurnover(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("d1", board.TeamB, board.Point{X: 18, Y: 0}, "pd")
	h.setMatch(func(m *match.Match) { m.Ball = match.OnGround(board.Point{X: 20, Y: 0}) })

	ok := h.node.Submit(context.Background(), wire.ActionPickupBall,
		wire.PickupPayload{Actor: "pd", EntityID: "d1"})
	require.True(t, ok)

	m := h.getMatch()
	require.Empty(t, m.CarrierID, "defender must not become carrier")
	require.Equal(t, board.TeamB, m.Attacking)
	require.Equal(t, 1, m.Phase)
	require.Equal(t, match.BallOnGround, m.Ball.State)
	// Fresh ball spawns centered in the new attacking team's own zone.
	require.Equal(t, board.Point{X: 95, Y: 25}, m.Ball.Pos)
}

func TestPickup_OutOfRangeRejected(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 0, Y: 0}, "pa")
	h.setMatch(func(m *match.Match) { m.Ball = match.OnGround(board.Point{X: 50, Y: 0}) })

	ok := h.node.Submit(context.Background(), wire.ActionPickupBall,
		wire.PickupPayload{Actor: "pa", EntityID: "a1"})
	require.False(t, ok)
	require.Empty(t, h.getMatch().CarrierID)
}

// Movement inside the team's own zone is free; leaving it costs distance,
// clamped at zero and rejected beyond the remaining budget.
func TestMove_BudgetAccounting(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 2, Y: 2}, "pa")
	h.setMatch(func(m *match.Match) { m.RemainingMove = 30 })
	ctx := context.Background()

	// Entirely inside own zone: free.
	require.True(t, h.node.Submit(ctx, wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pa", EntityID: "a1", X: 8, Y: 2}))
	require.Equal(t, 30.0, h.getMatch().RemainingMove)

	// Exits the zone, 15 units: budget drops by exactly 15.
	require.True(t, h.node.Submit(ctx, wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pa", EntityID: "a1", X: 23, Y: 2}))
	require.Equal(t, 15.0, h.getMatch().RemainingMove)

	// 20 more would exceed the remaining 15.
	require.False(t, h.node.Submit(ctx, wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pa", EntityID: "a1", X: 43, Y: 2}))
	require.Equal(t, 15.0, h.getMatch().RemainingMove)
}

func TestMove_DefenderSpendsNothing(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("d1", board.TeamB, board.Point{X: 50, Y: 2}, "pd")
	h.setMatch(func(m *match.Match) { m.RemainingMove = 30 })

	require.True(t, h.node.Submit(context.Background(), wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pd", EntityID: "d1", X: 70, Y: 2}))
	require.Equal(t, 30.0, h.getMatch().RemainingMove)
}

func TestMove_CarrierRunInScores(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 85, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.RemainingMove = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pa", EntityID: "a1", X: 95, Y: 25}))

	m := h.getMatch()
	require.Equal(t, h.rules.PointsRunIn, m.ScoreA)
	require.Equal(t, 1, m.Phase, "score ends the phase")
	require.Equal(t, board.TeamB, m.Attacking)
	require.Empty(t, m.CarrierID)
}

// The same zone entry is not worth points twice: after the score the phase
// has ended and the mover is no longer the carrier.
func TestMove_NonCarrierNeverScores(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 85, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) { m.RemainingMove = 30 })

	require.True(t, h.node.Submit(context.Background(), wire.ActionMoveEntity,
		wire.MovePayload{Actor: "pa", EntityID: "a1", X: 95, Y: 25}))
	require.Zero(t, h.getMatch().ScoreA)
}

func TestThrow_SuccessfulThrowLandsInZoneAndScores(t *testing.T) {
	script := map[string]func(env wire.Envelope) (any, bool){
		wire.KindContestRoll: func(env wire.Envelope) (any, bool) {
			return wire.RollResult{Total: 15}, true // difficulty for 15 units is 12
		},
	}
	h := newHarness(t, testRules(), script)
	h.addEntity("a1", board.TeamA, board.Point{X: 80, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionThrowBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 95, TargetY: 25}))

	m := h.getMatch()
	require.Equal(t, h.rules.PointsThrown, m.ScoreA)
	require.False(t, m.ThrowInProgress)
	require.Equal(t, 1, m.Phase)
	require.Equal(t, board.TeamB, m.Attacking)
}

func TestThrow_FailedRollLandsShort(t *testing.T) {
	script := map[string]func(env wire.Envelope) (any, bool){
		wire.KindContestRoll: func(env wire.Envelope) (any, bool) {
			return wire.RollResult{Total: 11}, true // fails DC 14, one step achieved
		},
	}
	h := newHarness(t, testRules(), script)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionThrowBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 60, TargetY: 25}))

	m := h.getMatch()
	require.Equal(t, match.BallOnGround, m.Ball.State)
	// Roll 11 vs base 10: one increment short of two steps, travels 10.
	require.Equal(t, board.Point{X: 50, Y: 25}, m.Ball.Pos)
	require.Empty(t, m.CarrierID)
	require.Equal(t, 20.0, m.RemainingThrow, "only the achieved distance is spent")
	require.Zero(t, m.ScoreA)
}

func TestThrow_InterceptionIsImmediateTurnover(t *testing.T) {
	script := map[string]func(env wire.Envelope) (any, bool){
		wire.KindInterceptAccept: func(env wire.Envelope) (any, bool) {
			return wire.AcceptDecline{Accept: true}, true
		},
		wire.KindSaveType: func(env wire.Envelope) (any, bool) {
			return wire.SaveTypeChoice{Stat: "dex"}, true
		},
		wire.KindSaveRoll: func(env wire.Envelope) (any, bool) {
			return wire.RollResult{Total: 2}, true // far below DC 8
		},
	}
	h := newHarness(t, testRules(), script)
	h.addEntity("a1", board.TeamA, board.Point{X: 50, Y: 25}, "pa")
	h.addEntity("d1", board.TeamB, board.Point{X: 52, Y: 25}, "pd")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionThrowBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 70, TargetY: 25}))

	m := h.getMatch()
	require.Equal(t, board.TeamB, m.Attacking, "interception swaps possession")
	require.Equal(t, 1, m.Phase)
	require.False(t, m.ThrowInProgress)
	require.Zero(t, m.ScoreA)
}

func TestThrow_OverBudgetRejected(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 10
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.False(t, h.node.Submit(context.Background(), wire.ActionThrowBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 60, TargetY: 25}))

	m := h.getMatch()
	require.Equal(t, match.BallHeld, m.Ball.State, "rejected throw leaves state alone")
	require.Equal(t, "a1", m.CarrierID)
}

// An unanswered throw roll aborts the whole attempt: the ball goes back to
// the carrier's hands as if nothing happened.
func TestThrow_UnansweredRollAborts(t *testing.T) {
	h := newHarness(t, testRules(), nil) // nothing scripted: every request times out
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionThrowBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 60, TargetY: 25}))

	m := h.getMatch()
	require.Equal(t, match.BallHeld, m.Ball.State)
	require.Equal(t, "a1", m.CarrierID)
	require.False(t, m.ThrowInProgress)
	require.Equal(t, 30.0, m.RemainingThrow)
}

func TestPass_CompletedHandsBallToReceiver(t *testing.T) {
	script := map[string]func(env wire.Envelope) (any, bool){
		wire.KindContestRoll: func(env wire.Envelope) (any, bool) {
			return wire.RollResult{Total: 20}, true
		},
		wire.KindInterceptAccept: decline,
	}
	h := newHarness(t, testRules(), script)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	a2 := h.addEntity("a2", board.TeamA, board.Point{X: 55, Y: 25}, "pa2")
	h.setMatch(func(m *match.Match) {
		m.RemainingThrow = 30
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionPassBall,
		wire.ThrowPayload{Actor: "pa", EntityID: "a1", TargetX: 55, TargetY: 25, ReceiverID: "a2"}))

	m := h.getMatch()
	require.Equal(t, "a2", m.CarrierID)
	require.Equal(t, match.BallHeld, m.Ball.State)
	require.Equal(t, h.rules.CarrierGrant, a2.Temp)
	require.False(t, m.ThrowInProgress)
	require.Zero(t, m.ScoreA, "pass completed outside the zone scores nothing")
}

func TestDrop_WithSuppliedPoint(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})
	ctx := context.Background()

	// Out of the drop radius: rejected, no change.
	require.False(t, h.node.Submit(ctx, wire.ActionDropBall,
		wire.DropPayload{Actor: "pa", EntityID: "a1", HasPoint: true, X: 60, Y: 25}))
	require.Equal(t, match.BallHeld, h.getMatch().Ball.State)

	require.True(t, h.node.Submit(ctx, wire.ActionDropBall,
		wire.DropPayload{Actor: "pa", EntityID: "a1", HasPoint: true, X: 43, Y: 25}))
	m := h.getMatch()
	require.Equal(t, match.BallOnGround, m.Ball.State)
	require.Equal(t, board.Point{X: 43, Y: 25}, m.Ball.Pos)
	require.Empty(t, m.CarrierID)
}

// No point supplied and no selection in time: the drop is cancelled.
func TestDrop_SelectionTimeoutCancels(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionDropBall,
		wire.DropPayload{Actor: "pa", EntityID: "a1"}))
	m := h.getMatch()
	require.Equal(t, match.BallHeld, m.Ball.State)
	require.Equal(t, "a1", m.CarrierID)
}

func TestDamage_FailedSaveFumbles(t *testing.T) {
	h := newHarness(t, testRules(), nil) // no scripted save: the roll times out, save fails
	a1 := h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionHandleDamage,
		wire.DamagePayload{EntityID: "a1", Amount: 7}))

	m := h.getMatch()
	require.Equal(t, 7, m.CarrierDamageInRound)
	require.Empty(t, m.CarrierID)
	require.Equal(t, match.BallOnGround, m.Ball.State)
	require.LessOrEqual(t, board.Dist(a1.Pos, m.Ball.Pos), h.rules.ScatterRadius,
		"scatter stays within the radius")
}

func TestDamage_MadeSaveKeepsBall(t *testing.T) {
	script := map[string]func(env wire.Envelope) (any, bool){
		wire.KindSaveRoll: func(env wire.Envelope) (any, bool) {
			return wire.RollResult{Total: 18}, true
		},
	}
	h := newHarness(t, testRules(), script)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.setMatch(func(m *match.Match) {
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionHandleDamage,
		wire.DamagePayload{EntityID: "a1", Amount: 7}))

	m := h.getMatch()
	require.Equal(t, "a1", m.CarrierID)
	require.Equal(t, match.BallHeld, m.Ball.State)
}

func TestTurnChange_ResetsBudgets(t *testing.T) {
	r := rules.Defaults() // legacy combined total of 60
	r.RollTimeout = 30 * time.Millisecond
	h := newHarness(t, r, nil)
	h.setMatch(func(m *match.Match) {
		m.RemainingMove = 3
		m.RemainingThrow = 1
		m.CarrierDamageInRound = 9
	})

	require.True(t, h.node.Submit(context.Background(), wire.ActionTurnChange, struct{}{}))

	m := h.getMatch()
	require.Equal(t, 30.0, m.RemainingMove, "ceiling half of the legacy total")
	require.Equal(t, 30.0, m.RemainingThrow, "floor half of the legacy total")
	require.Zero(t, m.CarrierDamageInRound)
}

func TestSetCarrier_RequiresPrivilege(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	ctx := context.Background()

	require.False(t, h.node.Submit(ctx, wire.ActionSetCarrier,
		wire.SetCarrierPayload{Actor: "pa", EntityID: "a1"}))

	require.True(t, h.node.Submit(ctx, wire.ActionSetCarrier,
		wire.SetCarrierPayload{Actor: gmID, EntityID: "a1"}))
	m := h.getMatch()
	require.Equal(t, "a1", m.CarrierID)
	require.Equal(t, match.BallHeld, m.Ball.State)
}

// Phase ends twice: both attacked flags were set, so initiative is rebuilt
// and the flags reset.
func TestEndPhase_InitiativeRebuildAfterBothAttacked(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 5, Y: 5}, "pa")
	h.addEntity("d1", board.TeamB, board.Point{X: 95, Y: 5}, "pd")
	ctx := context.Background()

	require.True(t, h.node.Submit(ctx, wire.ActionEndPhase, wire.PrivilegedPayload{Actor: gmID}))
	m := h.getMatch()
	require.True(t, m.AttackedA)
	require.False(t, m.AttackedB)
	require.Empty(t, m.TurnOrder)

	require.True(t, h.node.Submit(ctx, wire.ActionEndPhase, wire.PrivilegedPayload{Actor: gmID}))
	m = h.getMatch()
	require.False(t, m.AttackedA)
	require.False(t, m.AttackedB)
	require.Len(t, m.TurnOrder, 2, "initiative should be rebuilt over all entities")
}

func TestReset_RestoresDefaults(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.setMatch(func(m *match.Match) { m.ScoreA = 9 })

	require.True(t, h.node.Submit(context.Background(), wire.ActionResetMatch,
		wire.PrivilegedPayload{Actor: gmID}))
	require.Equal(t, match.New(), h.getMatch())
}

// A departing participant takes their entities with them; a carried ball
// lands where the carrier stood.
func TestDropParticipant(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	h.addEntity("a1", board.TeamA, board.Point{X: 40, Y: 25}, "pa")
	h.addEntity("a2", board.TeamA, board.Point{X: 10, Y: 10}, "other")
	h.setMatch(func(m *match.Match) {
		m.CarrierID = "a1"
		m.Ball = match.Held("a1")
	})

	h.node.DropParticipant(context.Background(), "pa")

	_, ok := h.board.Get("a1")
	require.False(t, ok, "controlled entity should be gone")
	_, ok = h.board.Get("a2")
	require.True(t, ok, "other controllers keep their entities")

	m := h.getMatch()
	require.Empty(t, m.CarrierID)
	require.Equal(t, match.BallOnGround, m.Ball.State)
	require.Equal(t, board.Point{X: 40, Y: 25}, m.Ball.Pos)
}

// Sanity check on the scatter distribution: always within the radius.
func TestScatterPoint_WithinRadius(t *testing.T) {
	h := newHarness(t, testRules(), nil)
	from := board.Point{X: 40, Y: 25}
	for i := 0; i < 200; i++ {
		p := h.node.scatterPoint(from)
		if d := board.Dist(from, p); d > h.rules.ScatterRadius {
			t.Fatalf("scatter %v is %v away, radius %v", p, d, h.rules.ScatterRadius)
		}
	}
}

// The node answers decision requests through the wire: a raw envelope with
// the echoed correlation id resolves the pending call.
func TestRequestResponse_Correlation(t *testing.T) {
	h := newHarness(t, testRules(), nil)

	got := make(chan json.RawMessage, 1)
	go func() {
		payload, ok := h.node.Request(context.Background(), "px", wire.KindSaveType,
			wire.SaveTypePrompt{EntityID: "a1"}, time.Second)
		if !ok {
			close(got)
			return
		}
		got <- payload
	}()

	// Find the outgoing request and answer it by hand.
	var req wire.Envelope
	require.Eventually(t, func() bool {
		h.bus.mu.Lock()
		defer h.bus.mu.Unlock()
		for _, env := range h.bus.envs {
			if env.Type == wire.TypeDecisionRequest {
				req = env
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	h.node.Deliver(context.Background(), wire.Envelope{
		Type:          wire.TypeDecisionResponse,
		To:            gmID,
		CorrelationID: req.CorrelationID,
		Payload:       wire.MustMarshal(wire.SaveTypeChoice{Stat: "str"}),
	})

	select {
	case payload, ok := <-got:
		require.True(t, ok)
		var choice wire.SaveTypeChoice
		require.NoError(t, json.Unmarshal(payload, &choice))
		require.Equal(t, "str", choice.Stat)
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}
