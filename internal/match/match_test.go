package match

import (
	"testing"
	"time"

	"github.com/tvasek/gridball-backend/internal/board"
)

func TestEndPhase_SwapsAndRespawnsBall(t *testing.T) {
	m := New()
	m.CarrierID = "e1"
	m.Ball = Held("e1")

	spawn := board.Point{X: 95, Y: 25}
	rebuild := m.EndPhase(spawn)

	if rebuild {
		t.Fatalf("only one team has attacked; no rebuild expected")
	}
	if !m.AttackedA {
		t.Fatalf("team A just finished attacking; AttackedA should be set")
	}
	if m.Attacking != board.TeamB || m.Defending != board.TeamA {
		t.Fatalf("expected B attacking after swap, got attacking=%s defending=%s", m.Attacking, m.Defending)
	}
	if m.Phase != 1 {
		t.Fatalf("phase should increment, got %d", m.Phase)
	}
	if m.CarrierID != "" {
		t.Fatalf("carrier should be cleared")
	}
	if m.Ball.State != BallOnGround || m.Ball.Pos != spawn {
		t.Fatalf("ball should respawn on ground at %v, got %+v", spawn, m.Ball)
	}
}

// After both teams have attacked once the flags reset and the caller is told
// to rebuild initiative.
func TestEndPhase_BothAttackedTriggersRebuild(t *testing.T) {
	m := New()

	if rebuild := m.EndPhase(board.Point{}); rebuild {
		t.Fatalf("first phase end should not rebuild")
	}
	rebuild := m.EndPhase(board.Point{})
	if !rebuild {
		t.Fatalf("second phase end should rebuild initiative")
	}
	if m.AttackedA || m.AttackedB {
		t.Fatalf("attacked flags should reset after rebuild, got A=%v B=%v", m.AttackedA, m.AttackedB)
	}
}

func TestCanScore(t *testing.T) {
	now := time.Now()
	debounce := time.Second

	cases := []struct {
		name string
		m    Match
		want bool
	}{
		{name: "fresh match", m: Match{}, want: true},
		{name: "during throw animation", m: Match{ThrowInProgress: true}, want: false},
		{name: "inside debounce window", m: Match{LastScoreAt: now.Add(-500 * time.Millisecond)}, want: false},
		{name: "after debounce window", m: Match{LastScoreAt: now.Add(-2 * time.Second)}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.CanScore(now, debounce); got != tc.want {
				t.Fatalf("CanScore = %v, want %v", got, tc.want)
			}
		})
	}
}

// Awarding twice inside the window must only count once; the second check
// sees the fresh stamp and bails.
func TestScoreDebounce_AwardsExactlyOnce(t *testing.T) {
	m := New()
	now := time.Now()

	if !m.CanScore(now, time.Second) {
		t.Fatalf("first check should pass")
	}
	m.AddScore(board.TeamA, 3)
	m.LastScoreAt = now

	if m.CanScore(now.Add(100*time.Millisecond), time.Second) {
		t.Fatalf("second check inside the window should be suppressed")
	}
	if m.ScoreA != 3 {
		t.Fatalf("score should be 3, got %d", m.ScoreA)
	}
}

func TestBuildTurnOrder(t *testing.T) {
	attackers := []InitiativeEntry{
		{EntityID: "a1", Rolled: 12},
		{EntityID: "a2", Rolled: 18},
		{EntityID: "a3", Rolled: 5},
	}
	defenders := []InitiativeEntry{
		{EntityID: "d1", Rolled: 20},
		{EntityID: "d2", Rolled: 1},
	}

	got := BuildTurnOrder(attackers, defenders)
	want := []string{"a2", "d1", "a1", "d2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("order length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestCarrierEffect_NeverStacksNeverHeals(t *testing.T) {
	e := &board.Entity{ID: "e1", Temp: 0}

	eff := GrantCarrierEffect(e, 5)
	if e.Temp != 5 {
		t.Fatalf("grant should set temp pool to 5, got %d", e.Temp)
	}

	// A higher existing pool is left alone.
	e2 := &board.Entity{ID: "e2", Temp: 8}
	eff2 := GrantCarrierEffect(e2, 5)
	if e2.Temp != 8 {
		t.Fatalf("grant must not lower an existing higher pool, got %d", e2.Temp)
	}
	RevokeCarrierEffect(e2, eff2)
	if e2.Temp != 8 {
		t.Fatalf("revoke must not change a pool it never granted, got %d", e2.Temp)
	}

	// Pool spent while carrying stays spent.
	e.Temp = 2
	RevokeCarrierEffect(e, eff)
	if e.Temp != 0 {
		t.Fatalf("revoke should restore prior (0), got %d", e.Temp)
	}
}

func TestBallConstructors(t *testing.T) {
	if b := NoBall(); b.State != BallNone {
		t.Fatalf("NoBall state = %s", b.State)
	}
	if b := OnGround(board.Point{X: 1, Y: 2}); b.State != BallOnGround || b.Pos.X != 1 {
		t.Fatalf("OnGround = %+v", b)
	}
	if b := Held("e1"); b.State != BallHeld || b.CarrierID != "e1" {
		t.Fatalf("Held = %+v", b)
	}
	if b := InFlight(board.Point{}, board.Point{X: 3}, time.Now()); b.State != BallInFlight {
		t.Fatalf("InFlight = %+v", b)
	}
}
