package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/match"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

func (n *Node) registerHandlers() {
	n.router.Handle(wire.ActionThrowBall, n.throwHandler(false))
	n.router.Handle(wire.ActionPassBall, n.throwHandler(true))
	n.router.Handle(wire.ActionPickupBall, n.handlePickup)
	n.router.Handle(wire.ActionDropBall, n.handleDrop)
	n.router.Handle(wire.ActionMoveEntity, n.handleMove)
	n.router.Handle(wire.ActionSetCarrier, n.handleSetCarrier)
	n.router.Handle(wire.ActionHandleDamage, n.handleDamage)
	n.router.Handle(wire.ActionTurnChange, n.handleTurnChange)
	n.router.Handle(wire.ActionEndPhase, n.handleEndPhase)
	n.router.Handle(wire.ActionResetMatch, n.handleReset)
	n.router.Handle(wire.ActionAddEntity, n.handleAddEntity)
	n.router.Handle(wire.ActionRemoveEntity, n.handleRemoveEntity)
}

func (n *Node) isPrivileged(actor string) bool {
	for _, id := range n.parts.ActivePrivileged() {
		if id == actor {
			return true
		}
	}
	return false
}

// mayControl authorizes an action on an entity: its controller or any
// privileged participant.
func (n *Node) mayControl(actor string, e *board.Entity) error {
	if actor == e.Controller || n.isPrivileged(actor) {
		return nil
	}
	return match.ErrNotController
}

func (n *Node) handlePickup(ctx context.Context, raw json.RawMessage) error {
	var p wire.PickupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode pickup: %w", err)
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	ent, ok := n.board.Get(p.EntityID)
	if !ok {
		return match.ErrMissingEntity
	}
	if err := n.mayControl(p.Actor, ent); err != nil {
		return err
	}
	if m.Ball.State != match.BallOnGround {
		return match.ErrBallNotOnGround
	}
	if board.Dist(ent.Pos, m.Ball.Pos) > n.rules.PickupRadius {
		return match.ErrOutOfRange
	}

	// A defender touching the ball never becomes the carrier: the phase ends
	// and possession swaps instead.
	if ent.Team == m.Defending && n.rules.TurnoverOnPickup {
		n.log.Info("turnover on defender pickup", zap.String("entity", ent.ID))
		return n.endPhaseLocked(ctx)
	}

	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierID = ent.ID
		m.Ball = match.Held(ent.ID)
	}); err != nil {
		return err
	}
	n.effects[ent.ID] = match.GrantCarrierEffect(ent, n.rules.CarrierGrant)
	return nil
}

func (n *Node) handleDrop(ctx context.Context, raw json.RawMessage) error {
	var p wire.DropPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode drop: %w", err)
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	ent, ok := n.board.Get(p.EntityID)
	if !ok {
		return match.ErrMissingEntity
	}
	if err := n.mayControl(p.Actor, ent); err != nil {
		return err
	}
	if m.Ball.State != match.BallHeld || m.CarrierID != ent.ID {
		return match.ErrNotCarrier
	}

	point := board.Point{X: p.X, Y: p.Y}
	if !p.HasPoint {
		chosen, ok := n.dec.AskDropPoint(ctx, ent)
		if !ok {
			// Selection timed out: the drop is cancelled, nothing changes.
			n.log.Info("drop selection timed out", zap.String("entity", ent.ID))
			return nil
		}
		point = chosen
	}
	if board.Dist(ent.Pos, point) > n.rules.DropRadius {
		return match.ErrOutOfRange
	}

	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierID = ""
		m.Ball = match.OnGround(point)
	}); err != nil {
		return err
	}
	n.revokeEffect(ent.ID)
	return nil
}

func (n *Node) handleMove(ctx context.Context, raw json.RawMessage) error {
	var p wire.MovePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode move: %w", err)
	}

	n.flowMu.Lock()
	m, err := n.store.Get(ctx)
	if err != nil {
		n.flowMu.Unlock()
		return err
	}
	ent, ok := n.board.Get(p.EntityID)
	if !ok {
		n.flowMu.Unlock()
		return match.ErrMissingEntity
	}
	if err := n.mayControl(p.Actor, ent); err != nil {
		n.flowMu.Unlock()
		return err
	}

	target := board.Point{X: p.X, Y: p.Y}
	cost := n.moveCost(m, ent, target)
	if cost > m.RemainingMove {
		n.flowMu.Unlock()
		return match.ErrBudgetExceeded
	}

	ent.Pos = target
	if cost > 0 {
		if _, err := n.store.Update(ctx, func(m *match.Match) {
			m.RemainingMove = math.Max(0, m.RemainingMove-cost)
		}); err != nil {
			n.flowMu.Unlock()
			return err
		}
	}
	n.bus.Emit(wire.Envelope{Type: wire.TypeEntityChanged, From: n.self, Payload: wire.MustMarshal(ent)})
	n.flowMu.Unlock()

	// Let the visual transit settle before the zone check; the entity must
	// still be the carrier once it does.
	n.anim.AnimateMove(ctx, ent.ID, target)
	n.checkCarrierScore(ctx, ent.ID)
	return nil
}

// moveCost prices a move. Movement that stays entirely inside the team's own
// attacking zone is free; anything else costs the straight-line distance.
// Only the attacking team spends budget.
func (n *Node) moveCost(m match.Match, ent *board.Entity, target board.Point) float64 {
	if ent.Team != m.Attacking {
		return 0
	}
	own := n.board.Zone(ent.Team)
	if own.Contains(ent.Pos) && own.Contains(target) {
		return 0
	}
	return board.Dist(ent.Pos, target)
}

func (n *Node) handleSetCarrier(ctx context.Context, raw json.RawMessage) error {
	var p wire.SetCarrierPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode set-carrier: %w", err)
	}
	if !n.isPrivileged(p.Actor) {
		return match.ErrNotPrivileged
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	ent, ok := n.board.Get(p.EntityID)
	if !ok {
		return match.ErrMissingEntity
	}
	if m.CarrierID == ent.ID {
		return nil // duplicate delivery
	}
	if m.CarrierID != "" {
		n.revokeEffect(m.CarrierID)
	}
	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierID = ent.ID
		m.Ball = match.Held(ent.ID)
	}); err != nil {
		return err
	}
	n.effects[ent.ID] = match.GrantCarrierEffect(ent, n.rules.CarrierGrant)
	return nil
}

// handleDamage is the inbound edge of the damage/fumble subsystem. Damage to
// the carrier accumulates for the round and forces a fumble save; on a
// failed (or unanswered) save the ball scatters to a random point near the
// carrier.
func (n *Node) handleDamage(ctx context.Context, raw json.RawMessage) error {
	var p wire.DamagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode damage: %w", err)
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	if m.CarrierID != p.EntityID || m.Ball.State != match.BallHeld {
		return nil // not the carrier, nothing to do
	}
	ent, ok := n.board.Get(p.EntityID)
	if !ok {
		return match.ErrMissingEntity
	}

	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierDamageInRound += p.Amount
	}); err != nil {
		return err
	}

	difficulty := 10
	if half := p.Amount / 2; half > difficulty {
		difficulty = half
	}
	if n.dec.FumbleSave(ctx, ent, difficulty) {
		return nil
	}

	scatter := n.scatterPoint(ent.Pos)
	n.log.Info("fumble", zap.String("carrier", ent.ID),
		zap.Float64("x", scatter.X), zap.Float64("y", scatter.Y))
	if _, err := n.store.Update(ctx, func(m *match.Match) {
		m.CarrierID = ""
		m.Ball = match.OnGround(scatter)
	}); err != nil {
		return err
	}
	n.revokeEffect(ent.ID)
	return nil
}

// scatterPoint picks a uniform random point within the scatter radius,
// uninfluenced by player input.
func (n *Node) scatterPoint(from board.Point) board.Point {
	angle := n.rand.Float64() * 2 * math.Pi
	dist := math.Sqrt(n.rand.Float64()) * n.rules.ScatterRadius
	return board.Point{X: from.X + math.Cos(angle)*dist, Y: from.Y + math.Sin(angle)*dist}
}

// handleTurnChange is driven by the external round/turn signal: fresh
// movement and throw budgets, damage accumulator cleared.
func (n *Node) handleTurnChange(ctx context.Context, raw json.RawMessage) error {
	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	_, err := n.store.Update(ctx, func(m *match.Match) {
		m.RemainingMove = n.rules.MoveBudget()
		m.RemainingThrow = n.rules.ThrowBudget()
		m.CarrierDamageInRound = 0
	})
	return err
}

func (n *Node) handleEndPhase(ctx context.Context, raw json.RawMessage) error {
	var p wire.PrivilegedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode end-phase: %w", err)
	}
	if !n.isPrivileged(p.Actor) {
		return match.ErrNotPrivileged
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()
	return n.endPhaseLocked(ctx)
}

func (n *Node) handleReset(ctx context.Context, raw json.RawMessage) error {
	var p wire.PrivilegedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode reset: %w", err)
	}
	if !n.isPrivileged(p.Actor) {
		return match.ErrNotPrivileged
	}

	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	clear(n.effects)
	_, err := n.store.Reset(ctx)
	return err
}

func (n *Node) handleAddEntity(ctx context.Context, raw json.RawMessage) error {
	var p wire.AddEntityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode add-entity: %w", err)
	}
	if !n.isPrivileged(p.Actor) {
		return match.ErrNotPrivileged
	}
	ent := &board.Entity{
		ID:            p.EntityID,
		Name:          p.Name,
		Team:          board.Team(p.Team),
		Pos:           board.Point{X: p.X, Y: p.Y},
		Controller:    p.Controller,
		StrMod:        p.StrMod,
		DexMod:        p.DexMod,
		Proficiency:   p.Proficiency,
		InitiativeMod: p.InitiativeMod,
		Resource:      p.Resource,
		MaxResource:   p.Resource,
	}
	if err := n.AddEntity(ent); err != nil {
		return err
	}
	n.bus.Emit(wire.Envelope{Type: wire.TypeEntityChanged, From: n.self, Payload: wire.MustMarshal(ent)})
	return nil
}

func (n *Node) handleRemoveEntity(ctx context.Context, raw json.RawMessage) error {
	var p wire.RemoveEntityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode remove-entity: %w", err)
	}
	if !n.isPrivileged(p.Actor) {
		return match.ErrNotPrivileged
	}
	n.RemoveEntity(p.EntityID)
	return nil
}

// revokeEffect undoes the carrier grant for an entity, if any.
func (n *Node) revokeEffect(entityID string) {
	eff, ok := n.effects[entityID]
	if !ok {
		return
	}
	delete(n.effects, entityID)
	if ent, live := n.board.Get(entityID); live {
		match.RevokeCarrierEffect(ent, eff)
	}
}
