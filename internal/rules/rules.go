package rules

import (
	"os"
	"strconv"
	"time"
)

// Rules holds every tunable the match engine consults. Configuration is
// data, not commands: values come from the environment (loaded from .env in
// main) and default to the numbers below.
type Rules struct {
	// Per-turn budgets. When both limits are zero, LegacyTotal is split
	// roughly in half instead (ceiling to move, floor to throw). A throw
	// budget that works out to zero means "unlimited throw distance".
	MoveLimit   float64
	ThrowLimit  float64
	LegacyTotal float64

	// Throw skill contest: difficulty = BaseDC + floor(d/StepDistance)*DCIncrease.
	BaseDC       int
	DCIncrease   int
	StepDistance float64

	InterceptRadius       float64
	PickupRadius          float64
	DropRadius            float64
	ScatterRadius         float64
	PassEndpointIntercept bool
	TurnoverOnPickup      bool

	PointsRunIn  int
	PointsThrown int
	PointsPass   int

	// CarrierGrant is the temporary resource pool granted while holding the
	// ball.
	CarrierGrant int

	RPCTimeout      time.Duration
	AcceptTimeout   time.Duration
	SaveTypeTimeout time.Duration
	RollTimeout     time.Duration
	DropTimeout     time.Duration
	ScoreDebounce   time.Duration
	SettleDelay     time.Duration

	RosterCap int

	// Field geometry. Each team's zone spans the full width and ZoneDepth
	// of length at its own end.
	FieldLength float64
	FieldWidth  float64
	ZoneDepth   float64

	// PrimaryParticipant pins authority election to a configured participant
	// id; when empty, the first active privileged participant wins.
	PrimaryParticipant string
}

func Defaults() Rules {
	return Rules{
		MoveLimit:             0,
		ThrowLimit:            0,
		LegacyTotal:           60,
		BaseDC:                10,
		DCIncrease:            2,
		StepDistance:          10,
		InterceptRadius:       10,
		PickupRadius:          5,
		DropRadius:            5,
		ScatterRadius:         10,
		PassEndpointIntercept: true,
		TurnoverOnPickup:      true,
		PointsRunIn:           3,
		PointsThrown:          2,
		PointsPass:            1,
		CarrierGrant:          5,
		RPCTimeout:            5 * time.Second,
		AcceptTimeout:         10 * time.Second,
		SaveTypeTimeout:       30 * time.Second,
		RollTimeout:           60 * time.Second,
		DropTimeout:           30 * time.Second,
		ScoreDebounce:         1 * time.Second,
		SettleDelay:           time.Second,
		RosterCap:             3,
		FieldLength:           100,
		FieldWidth:            50,
		ZoneDepth:             10,
	}
}

// MoveBudget and ThrowBudget resolve the explicit-vs-legacy split.
func (r Rules) MoveBudget() float64 {
	if r.MoveLimit > 0 || r.ThrowLimit > 0 {
		return r.MoveLimit
	}
	// ceil half of the combined total
	return float64(int(r.LegacyTotal+1) / 2)
}

func (r Rules) ThrowBudget() float64 {
	if r.MoveLimit > 0 || r.ThrowLimit > 0 {
		return r.ThrowLimit
	}
	return float64(int(r.LegacyTotal) / 2)
}

// UnlimitedThrow reports whether throw distance is uncapped.
func (r Rules) UnlimitedThrow() bool {
	return r.ThrowBudget() == 0
}

// FromEnv overlays GRIDBALL_* environment variables on the defaults.
func FromEnv() Rules {
	r := Defaults()
	envFloat("GRIDBALL_MOVE_LIMIT", &r.MoveLimit)
	envFloat("GRIDBALL_THROW_LIMIT", &r.ThrowLimit)
	envFloat("GRIDBALL_LEGACY_TOTAL", &r.LegacyTotal)
	envInt("GRIDBALL_BASE_DC", &r.BaseDC)
	envInt("GRIDBALL_DC_INCREASE", &r.DCIncrease)
	envFloat("GRIDBALL_STEP_DISTANCE", &r.StepDistance)
	envFloat("GRIDBALL_INTERCEPT_RADIUS", &r.InterceptRadius)
	envFloat("GRIDBALL_PICKUP_RADIUS", &r.PickupRadius)
	envFloat("GRIDBALL_DROP_RADIUS", &r.DropRadius)
	envFloat("GRIDBALL_SCATTER_RADIUS", &r.ScatterRadius)
	envBool("GRIDBALL_PASS_ENDPOINT_INTERCEPT", &r.PassEndpointIntercept)
	envBool("GRIDBALL_TURNOVER_ON_PICKUP", &r.TurnoverOnPickup)
	envInt("GRIDBALL_POINTS_RUN_IN", &r.PointsRunIn)
	envInt("GRIDBALL_POINTS_THROWN", &r.PointsThrown)
	envInt("GRIDBALL_POINTS_PASS", &r.PointsPass)
	envInt("GRIDBALL_CARRIER_GRANT", &r.CarrierGrant)
	envSeconds("GRIDBALL_RPC_TIMEOUT_SEC", &r.RPCTimeout)
	envSeconds("GRIDBALL_ACCEPT_TIMEOUT_SEC", &r.AcceptTimeout)
	envSeconds("GRIDBALL_SAVE_TYPE_TIMEOUT_SEC", &r.SaveTypeTimeout)
	envSeconds("GRIDBALL_ROLL_TIMEOUT_SEC", &r.RollTimeout)
	envSeconds("GRIDBALL_DROP_TIMEOUT_SEC", &r.DropTimeout)
	envSeconds("GRIDBALL_SCORE_DEBOUNCE_SEC", &r.ScoreDebounce)
	envSeconds("GRIDBALL_SETTLE_DELAY_SEC", &r.SettleDelay)
	envInt("GRIDBALL_ROSTER_CAP", &r.RosterCap)
	envFloat("GRIDBALL_FIELD_LENGTH", &r.FieldLength)
	envFloat("GRIDBALL_FIELD_WIDTH", &r.FieldWidth)
	envFloat("GRIDBALL_ZONE_DEPTH", &r.ZoneDepth)
	if v := os.Getenv("GRIDBALL_PRIMARY"); v != "" {
		r.PrimaryParticipant = v
	}
	return r
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(f * float64(time.Second))
		}
	}
}
