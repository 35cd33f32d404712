package match

import (
	"math"

	"github.com/tvasek/gridball-backend/internal/rules"
)

// ThrowDifficulty is the contest DC for a throw of the given distance:
// baseDC plus one increase per full step of distance.
func ThrowDifficulty(r rules.Rules, distance float64) int {
	steps := int(math.Floor(distance / r.StepDistance))
	return r.BaseDC + steps*r.DCIncrease
}

// AchievedDistance converts a contest roll into travelled distance. Meeting
// the difficulty carries the ball the full intended distance. A failing roll
// that still meets the base DC earns one step plus one per DC increase above
// base, capped at the intended distance. Anything below base DC travels a
// single minimum step.
func AchievedDistance(r rules.Rules, roll int, intended float64) float64 {
	if roll >= ThrowDifficulty(r, intended) {
		return intended
	}
	if roll < r.BaseDC {
		return math.Min(r.StepDistance, intended)
	}
	steps := 1 + (roll-r.BaseDC)/r.DCIncrease
	d := math.Max(r.StepDistance, float64(steps)*r.StepDistance)
	return math.Min(d, intended)
}
