package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/board"
	"github.com/tvasek/gridball-backend/internal/game"
	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/internal/store"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

type Msg interface{ isSessionMsg() }

// Join registers a participant connection and its outbox.
type Join struct {
	Participant wire.Participant
	Outbox      chan wire.Envelope
}

func (Join) isSessionMsg() {}

type Leave struct{ ID string }

func (Leave) isSessionMsg() {}

// FromParticipant relays one envelope from a connection onto the shared
// channel. From is stamped by the transport, not trusted from the payload.
type FromParticipant struct {
	ID  string
	Env wire.Envelope
}

func (FromParticipant) isSessionMsg() {}

// broadcast is the internal carrier for envelopes emitted by the resident
// node.
type broadcast struct{ Env wire.Envelope }

func (broadcast) isSessionMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

type View struct {
	Code            string
	NumParticipants int
	Version         int
}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// Session is the broadcast relay for one contest: every envelope a
// participant or the resident table node emits is fanned out to everyone.
// The table node is a privileged participant like any other; it simply joins
// first, which makes it the elected authority unless configuration says
// otherwise.
type Session struct {
	code    string
	inbox   chan Msg
	roster  *Roster
	clients map[string]chan wire.Envelope
	node    *game.Node
	store   *store.Store
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// TableID is the participant id of a session's resident node.
func TableID(code string) string { return "table:" + code }

func NewSession(parent context.Context, code string, r rules.Rules, p store.Persistence, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		code:    code,
		inbox:   make(chan Msg, 64),
		roster:  NewRoster(),
		clients: make(map[string]chan wire.Envelope),
		log:     log.With(zap.String("contest", code)),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.store = store.New(p, "scene:default", "contest:"+code, s, s.log)

	zoneA := board.Zone{Min: board.Point{X: 0, Y: 0}, Max: board.Point{X: r.ZoneDepth, Y: r.FieldWidth}}
	zoneB := board.Zone{Min: board.Point{X: r.FieldLength - r.ZoneDepth, Y: 0}, Max: board.Point{X: r.FieldLength, Y: r.FieldWidth}}

	tableID := TableID(code)
	s.roster.Add(wire.Participant{ID: tableID, Name: "table", Privileged: true})
	s.node = game.NewNode(game.Config{
		Self:         tableID,
		Rules:        r,
		Bus:          s,
		Participants: s.roster,
		Store:        s.store,
		Board:        board.New(r.RosterCap, zoneA, zoneB),
		Log:          s.log,
	})

	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Node() *game.Node { return s.node }

// Emit implements the broadcast channel for the store, router and node.
// Fire-and-forget; safe from any goroutine.
func (s *Session) Emit(env wire.Envelope) {
	select {
	case s.inbox <- broadcast{Env: env}:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.roster.Add(msg.Participant)
				s.clients[msg.Participant.ID] = msg.Outbox
				// New joiner self-heals by reading the store once.
				if rec, err := s.store.Get(s.ctx); err == nil {
					msg.Outbox <- wire.Envelope{
						Type:    wire.TypeStateChanged,
						Payload: wire.MustMarshal(store.Snapshot{Version: s.store.Version(), Match: rec}),
					}
				}
				s.fanout(s.presence())

			case Leave:
				delete(s.clients, msg.ID)
				s.roster.Remove(msg.ID)
				// Off the loop: an in-flight decision exchange may hold the
				// node's flow lock, and its answer arrives through this inbox.
				go s.node.DropParticipant(s.ctx, msg.ID)
				s.fanout(s.presence())

			case FromParticipant:
				env := msg.Env
				env.From = msg.ID
				s.deliver(env)

			case broadcast:
				s.deliver(msg.Env)

			case GetView:
				msg.Reply <- View{
					Code:            s.code,
					NumParticipants: len(s.clients),
					Version:         s.store.Version(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// deliver fans an envelope out to every connected participant and hands it
// to the resident node. The node's own guards make re-delivery of its own
// envelopes harmless.
func (s *Session) deliver(env wire.Envelope) {
	s.fanout(env)
	s.node.Deliver(s.ctx, env)
}

func (s *Session) fanout(env wire.Envelope) {
	for id, ch := range s.clients {
		select {
		case ch <- env:
			// ok
		default:
			// Slow or dead consumer - drop them.
			close(ch)
			delete(s.clients, id)
			s.roster.Remove(id)
		}
	}
}

func (s *Session) presence() wire.Envelope {
	return wire.Envelope{
		Type:    wire.TypePresence,
		Payload: wire.MustMarshal(wire.PresencePayload{Participants: s.roster.List()}),
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch)
		delete(s.clients, id)
	}
	s.cancel()
}
