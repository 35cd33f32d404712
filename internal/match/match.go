package match

import (
	"errors"
	"time"

	"github.com/tvasek/gridball-backend/internal/board"
)

var ErrNotCarrier = errors.New("entity is not the carrier")
var ErrNoBall = errors.New("no ball to act on")
var ErrBallNotOnGround = errors.New("ball is not on the ground")
var ErrOutOfRange = errors.New("target out of range")
var ErrBudgetExceeded = errors.New("not enough budget left")
var ErrThrowInProgress = errors.New("a throw is already in progress")
var ErrMissingEntity = errors.New("referenced entity no longer exists")
var ErrNotPrivileged = errors.New("caller is not privileged")
var ErrNotController = errors.New("caller does not control this entity")

// BallState is the tag of the Ball sum type. A held ball never coexists with
// a ground instance; the tag is the single source of truth.
type BallState string

const (
	BallNone     BallState = "none"
	BallOnGround BallState = "ground"
	BallInFlight BallState = "flight"
	BallHeld     BallState = "held"
)

// Ball is the ball entity lifecycle record. Only the fields of the active
// state are meaningful.
type Ball struct {
	State     BallState   `json:"state"`
	Pos       board.Point `json:"pos,omitempty"`
	Origin    board.Point `json:"origin,omitempty"`
	Target    board.Point `json:"target,omitempty"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	CarrierID string      `json:"carrier_id,omitempty"`
}

func NoBall() Ball                   { return Ball{State: BallNone} }
func OnGround(p board.Point) Ball    { return Ball{State: BallOnGround, Pos: p} }
func Held(carrierID string) Ball     { return Ball{State: BallHeld, CarrierID: carrierID} }
func InFlight(o, t board.Point, at time.Time) Ball {
	return Ball{State: BallInFlight, Origin: o, Target: t, StartedAt: at}
}

// Match is the canonical record for one contest. Mutated only by the
// authoritative participant; everyone else holds read-only snapshots.
type Match struct {
	Phase                int         `json:"phase"`
	Attacking            board.Team  `json:"attacking"`
	Defending            board.Team  `json:"defending"`
	ScoreA               int         `json:"score_a"`
	ScoreB               int         `json:"score_b"`
	NameA                string      `json:"name_a"`
	NameB                string      `json:"name_b"`
	CarrierID            string      `json:"carrier_id,omitempty"`
	Ball                 Ball        `json:"ball"`
	RemainingMove        float64     `json:"remaining_move"`
	RemainingThrow       float64     `json:"remaining_throw"`
	LastScoreAt          time.Time   `json:"last_score_at,omitempty"`
	CarrierDamageInRound int         `json:"carrier_damage_in_round"`
	AttackedA            bool        `json:"attacked_a"`
	AttackedB            bool        `json:"attacked_b"`
	ThrowInProgress      bool        `json:"throw_in_progress"`
	TurnOrder            []string    `json:"turn_order,omitempty"`
}

func New() Match {
	return Match{
		Attacking: board.TeamA,
		Defending: board.TeamB,
		NameA:     "Team A",
		NameB:     "Team B",
		Ball:      NoBall(),
	}
}

// AddScore bumps the team's score by points.
func (m *Match) AddScore(team board.Team, points int) {
	if team == board.TeamA {
		m.ScoreA += points
	} else {
		m.ScoreB += points
	}
}

// CanScore reports whether a score award is allowed right now: never during
// a throw animation, and never within the debounce window of the previous
// award.
func (m *Match) CanScore(now time.Time, debounce time.Duration) bool {
	if m.ThrowInProgress {
		return false
	}
	if !m.LastScoreAt.IsZero() && now.Sub(m.LastScoreAt) < debounce {
		return false
	}
	return true
}

// EndPhase performs the phase transition: clear the carrier, mark the
// finishing team's attacked flag, swap attacker and defender, bump the phase
// counter, and respawn the ball at the new attacking team's own zone center.
// It reports whether both teams have now attacked, meaning the caller must
// rebuild the turn order and the flags were reset.
func (m *Match) EndPhase(ballSpawn board.Point) (rebuildInitiative bool) {
	if m.Attacking == board.TeamA {
		m.AttackedA = true
	} else {
		m.AttackedB = true
	}
	m.CarrierID = ""
	m.Attacking, m.Defending = m.Defending, m.Attacking
	m.Phase++
	m.Ball = OnGround(ballSpawn)
	if m.AttackedA && m.AttackedB {
		m.AttackedA = false
		m.AttackedB = false
		return true
	}
	return false
}
