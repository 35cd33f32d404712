package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/authority"
	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/match"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

// throwHandler covers both throws and passes; a pass additionally names a
// receiver and is contested at the destination as well as the origin.
func (n *Node) throwHandler(pass bool) authority.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var p wire.ThrowPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode throw: %w", err)
		}

		n.flowMu.Lock()
		defer n.flowMu.Unlock()

		m, err := n.store.Get(ctx)
		if err != nil {
			return err
		}
		thrower, ok := n.board.Get(p.EntityID)
		if !ok {
			return match.ErrMissingEntity
		}
		if err := n.mayControl(p.Actor, thrower); err != nil {
			return err
		}
		if m.Ball.State != match.BallHeld || m.CarrierID != thrower.ID {
			return match.ErrNotCarrier
		}
		if m.ThrowInProgress {
			return match.ErrThrowInProgress
		}

		target := board.Point{X: p.TargetX, Y: p.TargetY}
		intended := board.Dist(thrower.Pos, target)
		if !n.rules.UnlimitedThrow() && intended > m.RemainingThrow {
			return match.ErrBudgetExceeded
		}

		origin := thrower.Pos
		if _, err := n.store.Update(ctx, func(m *match.Match) {
			m.ThrowInProgress = true
			m.Ball = match.InFlight(origin, target, n.clock())
		}); err != nil {
			return err
		}

		// Origin-side interception is always contested.
		if ic := n.dec.AskInterception(ctx, n.board, thrower, origin, m.Defending, pass); ic.Intercepted {
			n.log.Info("intercepted at origin", zap.String("by", ic.InterceptorID))
			return n.turnoverLocked(ctx, thrower.ID)
		}

		difficulty := match.ThrowDifficulty(n.rules, intended)
		roll, rolled := n.dec.ContestRoll(ctx, thrower, "throw", difficulty)
		if !rolled {
			// No roll came back: put the ball back in the carrier's hands and
			// pretend nothing happened.
			n.log.Info("throw roll not submitted, aborting", zap.String("thrower", thrower.ID))
			_, err := n.store.Update(ctx, func(m *match.Match) {
				m.ThrowInProgress = false
				m.Ball = match.Held(thrower.ID)
			})
			return err
		}

		achieved := match.AchievedDistance(n.rules, roll, intended)
		landing := board.Toward(origin, target, achieved)
		success := roll >= difficulty

		if _, err := n.store.Update(ctx, func(m *match.Match) {
			m.RemainingThrow = math.Max(0, m.RemainingThrow-achieved)
		}); err != nil {
			return err
		}

		n.anim.AnimateMove(ctx, "ball", landing)

		if pass && success {
			return n.completePass(ctx, thrower, p.ReceiverID, landing)
		}
		return n.landBall(ctx, thrower.ID, landing)
	}
}

// completePass hands the ball to the receiver unless a destination-side
// interception takes it first.
func (n *Node) completePass(ctx context.Context, thrower *board.Entity, receiverID string, landing board.Point) error {
	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	receiver, ok := n.board.Get(receiverID)
	if !ok || board.Dist(receiver.Pos, landing) > n.rules.PickupRadius {
		// Receiver gone or nowhere near the ball: it lands instead.
		return n.landBall(ctx, thrower.ID, landing)
	}

	if n.rules.PassEndpointIntercept {
		if ic := n.dec.AskInterception(ctx, n.board, thrower, landing, m.Defending, true); ic.Intercepted {
			n.log.Info("intercepted at destination", zap.String("by", ic.InterceptorID))
			return n.turnoverLocked(ctx, thrower.ID)
		}
	}

	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.ThrowInProgress = false
		m.CarrierID = receiver.ID
		m.Ball = match.Held(receiver.ID)
	}); err != nil {
		return err
	}
	n.revokeEffect(thrower.ID)
	n.effects[receiver.ID] = match.GrantCarrierEffect(receiver, n.rules.CarrierGrant)

	n.checkBallScore(ctx, receiver.Pos, n.rules.PointsPass)
	return nil
}

// landBall puts the ball on the ground at landing, releases possession, and
// runs the landed-in-zone scoring check.
func (n *Node) landBall(ctx context.Context, throwerID string, landing board.Point) error {
	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.ThrowInProgress = false
		m.CarrierID = ""
		m.Ball = match.OnGround(landing)
	}); err != nil {
		return err
	}
	n.revokeEffect(throwerID)

	n.checkBallScore(ctx, landing, n.rules.PointsThrown)
	return nil
}

// turnoverLocked resolves an interception: the ball is gone and the phase
// ends immediately, regardless of any already-rolled throw outcome.
func (n *Node) turnoverLocked(ctx context.Context, throwerID string) error {
	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.ThrowInProgress = false
		m.CarrierID = ""
		m.Ball = match.NoBall()
	}); err != nil {
		return err
	}
	n.revokeEffect(throwerID)
	return n.endPhaseLocked(ctx)
}
