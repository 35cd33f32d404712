package game

import (
	"context"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/match"
)

// checkCarrierScore is the run-in check, invoked after a movement has
// settled. The entity must still be the carrier and still be inside the
// opponent zone when the check runs.
func (n *Node) checkCarrierScore(ctx context.Context, entityID string) {
	n.flowMu.Lock()
	defer n.flowMu.Unlock()

	m, err := n.store.Get(ctx)
	if err != nil {
		n.log.Warn("score check read failed", zap.Error(err))
		return
	}
	if m.CarrierID != entityID {
		return
	}
	ent, ok := n.board.Get(entityID)
	if !ok {
		return
	}
	// Target zone is the attacking team's opponent zone.
	if !n.board.Zone(m.Defending).Contains(ent.Pos) {
		return
	}
	if !m.CanScore(n.clock(), n.rules.ScoreDebounce) {
		return
	}
	n.awardLocked(ctx, m.Attacking, n.rules.PointsRunIn)
}

// checkBallScore is the landed-in-zone check, invoked after a throw or pass
// animation completes. Caller holds flowMu.
func (n *Node) checkBallScore(ctx context.Context, at board.Point, points int) {
	m, err := n.store.Get(ctx)
	if err != nil {
		n.log.Warn("score check read failed", zap.Error(err))
		return
	}
	if !n.board.Zone(m.Defending).Contains(at) {
		return
	}
	if !m.CanScore(n.clock(), n.rules.ScoreDebounce) {
		return
	}
	n.awardLocked(ctx, m.Attacking, points)
}

// awardLocked commits a score: bump the team's total, stamp the debounce
// clock, drop possession, end the phase. Caller holds flowMu.
func (n *Node) awardLocked(ctx context.Context, team board.Team, points int) {
	m, err := n.store.Update(ctx, func(m *match.Match) {
		m.AddScore(team, points)
		m.LastScoreAt = n.clock()
		m.CarrierID = ""
	})
	if err != nil {
		n.log.Warn("score award failed", zap.Error(err))
		return
	}
	n.log.Info("score",
		zap.String("team", string(team)), zap.Int("points", points),
		zap.Int("a", m.ScoreA), zap.Int("b", m.ScoreB))
	if err := n.endPhaseLocked(ctx); err != nil {
		n.log.Warn("end phase after score failed", zap.Error(err))
	}
}

// endPhaseLocked runs the phase transition and, when both teams have had an
// attacking phase since the last reshuffle, rerolls initiative and rebuilds
// the turn order. Caller holds flowMu.
func (n *Node) endPhaseLocked(ctx context.Context) error {
	m, err := n.store.Get(ctx)
	if err != nil {
		return err
	}
	if m.CarrierID != "" {
		n.revokeEffect(m.CarrierID)
	}

	// The new attacking team is the current defender; the fresh ball spawns
	// centered in its own zone.
	spawn := n.board.Zone(m.Defending).Center()

	var rebuild bool
	updated, err := n.store.Update(ctx, func(m *match.Match) {
		rebuild = m.EndPhase(spawn)
		if rebuild {
			m.TurnOrder = n.rollTurnOrder(m.Attacking)
		}
	})
	if err != nil {
		return err
	}
	n.log.Info("phase ended",
		zap.Int("phase", updated.Phase),
		zap.String("attacking", string(updated.Attacking)),
		zap.Bool("initiative_rebuilt", rebuild))
	return nil
}

// rollTurnOrder rerolls initiative for every entity and interleaves the
// sides, attacker first in each pair.
func (n *Node) rollTurnOrder(attacking board.Team) []string {
	roll := func(team board.Team) []match.InitiativeEntry {
		var out []match.InitiativeEntry
		for _, e := range n.board.Members(team) {
			out = append(out, match.InitiativeEntry{
				EntityID: e.ID,
				Rolled:   n.rand.Intn(20) + 1 + e.InitiativeMod,
			})
		}
		return out
	}
	return match.BuildTurnOrder(roll(attacking), roll(attacking.Opponent()))
}
