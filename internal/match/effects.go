package match

import "github.com/tvasek/gridball-backend/internal/board"

// CarrierEffect remembers what possession granted so losing the ball can
// undo it without side effects.
type CarrierEffect struct {
	Granted int
	Prior   int
}

// GrantCarrierEffect gives the new carrier a temporary resource pool of
// grant. An existing higher pool is never lowered.
func GrantCarrierEffect(e *board.Entity, grant int) CarrierEffect {
	eff := CarrierEffect{Granted: grant, Prior: e.Temp}
	if grant > e.Temp {
		e.Temp = grant
	}
	return eff
}

// RevokeCarrierEffect restores the pre-possession pool. It only ever lowers
// the value: a pool spent while carrying must not come back.
func RevokeCarrierEffect(e *board.Entity, eff CarrierEffect) {
	if eff.Prior < e.Temp {
		e.Temp = eff.Prior
	}
}
