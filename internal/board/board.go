package board

import (
	"errors"
	"math"
	"slices"
)

var ErrRosterFull = errors.New("team roster is full")
var ErrUnknownEntity = errors.New("unknown entity")
var ErrUnknownZone = errors.New("unknown zone")

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Toward returns the point at distance d along the straight line from origin
// to target, clamped to the segment.
func Toward(origin, target Point, d float64) Point {
	full := Dist(origin, target)
	if full == 0 || d >= full {
		return target
	}
	f := d / full
	return Point{X: origin.X + (target.X-origin.X)*f, Y: origin.Y + (target.Y-origin.Y)*f}
}

// Zone is an axis-aligned target region belonging to one team.
type Zone struct {
	Team Team  `json:"team"`
	Min  Point `json:"min"`
	Max  Point `json:"max"`
}

func (z Zone) Contains(p Point) bool {
	return p.X >= z.Min.X && p.X <= z.Max.X && p.Y >= z.Min.Y && p.Y <= z.Max.Y
}

func (z Zone) Center() Point {
	return Point{X: (z.Min.X + z.Max.X) / 2, Y: (z.Min.Y + z.Max.Y) / 2}
}

// Entity is a positioned token on the board. Controller is the participant
// that answers decision requests for it.
type Entity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Team          Team   `json:"team"`
	Pos           Point  `json:"pos"`
	Controller    string `json:"controller"`
	StrMod        int    `json:"str_mod"`
	DexMod        int    `json:"dex_mod"`
	Proficiency   int    `json:"proficiency"`
	InitiativeMod int    `json:"initiative_mod"`
	Resource      int    `json:"resource"`
	MaxResource   int    `json:"max_resource"`
	Temp          int    `json:"temp"`
}

// Board holds the entity roster and the two team zones. Enumeration order is
// join order, which keeps candidate polling stable across participants.
type Board struct {
	entities  map[string]*Entity
	order     []string
	zones     map[Team]Zone
	rosterCap int
}

func New(rosterCap int, zoneA, zoneB Zone) *Board {
	zoneA.Team = TeamA
	zoneB.Team = TeamB
	return &Board{
		entities:  make(map[string]*Entity),
		zones:     map[Team]Zone{TeamA: zoneA, TeamB: zoneB},
		rosterCap: rosterCap,
	}
}

// Add assigns the entity to its team, enforcing the roster cap.
func (b *Board) Add(e *Entity) error {
	if b.teamCount(e.Team) >= b.rosterCap {
		return ErrRosterFull
	}
	if _, ok := b.entities[e.ID]; !ok {
		b.order = append(b.order, e.ID)
	}
	b.entities[e.ID] = e
	return nil
}

// Remove clears the entity and its team assignment.
func (b *Board) Remove(id string) {
	delete(b.entities, id)
	b.order = slices.DeleteFunc(b.order, func(s string) bool { return s == id })
}

func (b *Board) Get(id string) (*Entity, bool) {
	e, ok := b.entities[id]
	return e, ok
}

func (b *Board) teamCount(team Team) int {
	n := 0
	for _, e := range b.entities {
		if e.Team == team {
			n++
		}
	}
	return n
}

// Members returns the team's entities in join order.
func (b *Board) Members(team Team) []*Entity {
	var out []*Entity
	for _, id := range b.order {
		if e := b.entities[id]; e != nil && e.Team == team {
			out = append(out, e)
		}
	}
	return out
}

// Within returns the team's entities whose center lies within radius of p,
// in join order.
func (b *Board) Within(team Team, p Point, radius float64) []*Entity {
	var out []*Entity
	for _, e := range b.Members(team) {
		if Dist(e.Pos, p) <= radius {
			out = append(out, e)
		}
	}
	return out
}

func (b *Board) Zone(team Team) Zone {
	return b.zones[team]
}

// InZone reports whether the entity's center is within the team's zone.
func (b *Board) InZone(id string, team Team) bool {
	e, ok := b.entities[id]
	if !ok {
		return false
	}
	return b.zones[team].Contains(e.Pos)
}

// DropAssignmentsFor clears every entity controlled by the given
// participant. Used when a participant disconnects for good.
func (b *Board) DropAssignmentsFor(controller string) {
	for _, id := range slices.Clone(b.order) {
		if e := b.entities[id]; e != nil && e.Controller == controller {
			b.Remove(id)
		}
	}
}
