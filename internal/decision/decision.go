// Package decision implements the remote request/response protocol: ask a
// specific participant for a yes/no, a save-type choice, or a roll result,
// bounded by a timeout. One correlation-id mechanism serves all decision
// kinds; a request that gets no answer resolves to a documented safe default
// so an inactive participant can never stall the match.
package decision

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

// Party sends an addressed decision request and blocks for the echoed
// answer. ok is false on timeout.
type Party interface {
	Request(ctx context.Context, to, kind string, payload any, timeout time.Duration) (json.RawMessage, bool)
}

const (
	StatStr = "str"
	StatDex = "dex"
)

type Protocol struct {
	party Party
	rules rules.Rules
	log   *zap.Logger
}

func New(party Party, r rules.Rules, log *zap.Logger) *Protocol {
	return &Protocol{party: party, rules: r, log: log}
}

// InterceptDifficulty is the automatic contest DC an interceptor imposes.
func InterceptDifficulty(e *board.Entity) int {
	best := e.StrMod
	if e.DexMod > best {
		best = e.DexMod
	}
	return 8 + best + e.Proficiency
}

// Interception is the outcome of polling the defenders around a point.
type Interception struct {
	Intercepted   bool
	InterceptorID string
}

// AskInterception polls every defending entity within the intercept radius
// of at, in join order. Each candidate's controller gets an accept/decline
// prompt (timeout: decline). On accept, the target's controller chooses a
// contest stat (timeout: dexterity) and submits a roll (timeout: attempt
// unresolved, move on). A roll below the interceptor's difficulty means the
// interception succeeds and polling stops.
func (p *Protocol) AskInterception(ctx context.Context, b *board.Board, target *board.Entity, at board.Point, defending board.Team, pass bool) Interception {
	for _, cand := range b.Within(defending, at, p.rules.InterceptRadius) {
		prompt := wire.InterceptPrompt{InterceptorID: cand.ID, ThrowerID: target.ID, Pass: pass}
		raw, ok := p.party.Request(ctx, cand.Controller, wire.KindInterceptAccept, prompt, p.rules.AcceptTimeout)
		if !ok {
			p.log.Info("interception prompt timed out, declining",
				zap.String("interceptor", cand.ID))
			continue
		}
		var answer wire.AcceptDecline
		if err := json.Unmarshal(raw, &answer); err != nil || !answer.Accept {
			continue
		}

		difficulty := InterceptDifficulty(cand)
		stat := p.askSaveType(ctx, target, difficulty)
		total, rolled := p.askRoll(ctx, wire.KindSaveRoll, target.Controller, target.ID, stat, difficulty)
		if !rolled {
			p.log.Info("save roll not submitted, attempt unresolved",
				zap.String("target", target.ID), zap.String("interceptor", cand.ID))
			continue
		}
		if total < difficulty {
			return Interception{Intercepted: true, InterceptorID: cand.ID}
		}
	}
	return Interception{}
}

// FumbleSave asks the carrier's controller to roll against difficulty.
// No submitted roll counts as a failed save: a ball you cannot defend, you
// drop.
func (p *Protocol) FumbleSave(ctx context.Context, carrier *board.Entity, difficulty int) bool {
	stat := p.askSaveType(ctx, carrier, difficulty)
	total, rolled := p.askRoll(ctx, wire.KindSaveRoll, carrier.Controller, carrier.ID, stat, difficulty)
	if !rolled {
		return false
	}
	return total >= difficulty
}

// ContestRoll asks an entity's controller for an ability-check total against
// difficulty. ok is false when nothing came back in time.
func (p *Protocol) ContestRoll(ctx context.Context, e *board.Entity, stat string, difficulty int) (int, bool) {
	return p.askRoll(ctx, wire.KindContestRoll, e.Controller, e.ID, stat, difficulty)
}

// AskDropPoint asks the carrier's controller to designate a drop location.
func (p *Protocol) AskDropPoint(ctx context.Context, carrier *board.Entity) (board.Point, bool) {
	raw, ok := p.party.Request(ctx, carrier.Controller, wire.KindDropLocation,
		wire.DropPayload{EntityID: carrier.ID}, p.rules.DropTimeout)
	if !ok {
		return board.Point{}, false
	}
	var choice wire.DropChoice
	if err := json.Unmarshal(raw, &choice); err != nil {
		return board.Point{}, false
	}
	return board.Point{X: choice.X, Y: choice.Y}, true
}

func (p *Protocol) askSaveType(ctx context.Context, target *board.Entity, difficulty int) string {
	raw, ok := p.party.Request(ctx, target.Controller, wire.KindSaveType,
		wire.SaveTypePrompt{EntityID: target.ID, Difficulty: difficulty}, p.rules.SaveTypeTimeout)
	if !ok {
		return StatDex
	}
	var choice wire.SaveTypeChoice
	if err := json.Unmarshal(raw, &choice); err != nil || choice.Stat != StatStr {
		return StatDex
	}
	return StatStr
}

func (p *Protocol) askRoll(ctx context.Context, kind, controller, entityID, stat string, difficulty int) (int, bool) {
	raw, ok := p.party.Request(ctx, controller, kind,
		wire.RollPrompt{EntityID: entityID, Stat: stat, Difficulty: difficulty}, p.rules.RollTimeout)
	if !ok {
		return 0, false
	}
	var result wire.RollResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, false
	}
	return result.Total, true
}
