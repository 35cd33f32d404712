package wire

import "encoding/json"

// Envelope is the single message shape that travels over the broadcast
// channel. Every participant sees every envelope; addressed messages carry a
// To field and everyone else ignores them. The channel gives no delivery
// guarantee beyond per-sender ordering.
type Envelope struct {
	Type          string          `json:"type"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Action        string          `json:"action,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Envelope types.
const (
	TypeIntent           = "Intent"           // forward an action to the authority
	TypeCompleted        = "Completed"        // authority finished an action
	TypeDecisionRequest  = "DecisionRequest"  // ask a specific participant
	TypeDecisionResponse = "DecisionResponse" // their answer, echoing the id
	TypeStateChanged     = "StateChanged"     // full match record broadcast
	TypePresence         = "Presence"         // participant joined/left
	TypeEntityChanged    = "EntityChanged"    // token placed/moved/removed
	TypeError            = "Error"            // per-participant error report
)

// Decision kinds, all served by the same correlation-id mechanism.
const (
	KindInterceptAccept = "InterceptAccept"
	KindSaveType        = "SaveType"
	KindSaveRoll        = "SaveRoll"
	KindContestRoll     = "ContestRoll"
	KindDropLocation    = "DropLocation"
)

// Intent action names.
const (
	ActionThrowBall    = "throwBall"
	ActionPassBall     = "passBall"
	ActionPickupBall   = "pickupBall"
	ActionDropBall     = "dropBall"
	ActionMoveEntity   = "moveEntity"
	ActionSetCarrier   = "setCarrier"
	ActionHandleDamage = "handleDamage"
	ActionTurnChange   = "turnChange"
	ActionEndPhase     = "endPhase"
	ActionResetMatch   = "resetMatch"
	ActionAddEntity    = "addEntity"
	ActionRemoveEntity = "removeEntity"
)

// ThrowPayload drives both throwBall and passBall. ReceiverID is only set
// for passes. Actor is the submitting participant; the transport stamps it
// so handlers can authorize.
type ThrowPayload struct {
	Actor      string  `json:"actor"`
	EntityID   string  `json:"entity_id"`
	TargetX    float64 `json:"target_x"`
	TargetY    float64 `json:"target_y"`
	ReceiverID string  `json:"receiver_id,omitempty"`
}

type PickupPayload struct {
	Actor    string `json:"actor"`
	EntityID string `json:"entity_id"`
}

// DropPayload carries an optional pre-selected drop point. When HasPoint is
// false the authority asks the carrier's controller to pick one, bounded by
// the drop selection timeout.
type DropPayload struct {
	Actor    string  `json:"actor"`
	EntityID string  `json:"entity_id"`
	HasPoint bool    `json:"has_point"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type MovePayload struct {
	Actor    string  `json:"actor"`
	EntityID string  `json:"entity_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type SetCarrierPayload struct {
	Actor    string `json:"actor"`
	EntityID string `json:"entity_id"`
}

type DamagePayload struct {
	EntityID string `json:"entity_id"`
	Amount   int    `json:"amount"`
}

type PrivilegedPayload struct {
	Actor string `json:"actor"`
}

// AddEntityPayload attaches a token to the contest roster.
type AddEntityPayload struct {
	Actor         string  `json:"actor"`
	EntityID      string  `json:"entity_id"`
	Name          string  `json:"name"`
	Team          string  `json:"team"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Controller    string  `json:"controller"`
	StrMod        int     `json:"str_mod"`
	DexMod        int     `json:"dex_mod"`
	Proficiency   int     `json:"proficiency"`
	InitiativeMod int     `json:"initiative_mod"`
	Resource      int     `json:"resource"`
}

type RemoveEntityPayload struct {
	Actor    string `json:"actor"`
	EntityID string `json:"entity_id"`
}

// InterceptPrompt asks a defender's controller whether they want to attempt
// an interception.
type InterceptPrompt struct {
	InterceptorID string `json:"interceptor_id"`
	ThrowerID     string `json:"thrower_id"`
	Pass          bool   `json:"pass"`
}

type AcceptDecline struct {
	Accept bool `json:"accept"`
}

// SaveTypePrompt asks the target's controller which attribute to contest
// with.
type SaveTypePrompt struct {
	EntityID   string `json:"entity_id"`
	Difficulty int    `json:"difficulty"`
}

type SaveTypeChoice struct {
	Stat string `json:"stat"` // "str" | "dex"
}

// RollPrompt asks a controller to roll and submit the total.
type RollPrompt struct {
	EntityID   string `json:"entity_id"`
	Stat       string `json:"stat"`
	Difficulty int    `json:"difficulty"`
}

type RollResult struct {
	Total int `json:"total"`
}

type DropChoice struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresencePayload announces the current participant roster after a join or
// leave, in join order.
type PresencePayload struct {
	Participants []Participant `json:"participants"`
}

type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Privileged bool   `json:"privileged"`
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
