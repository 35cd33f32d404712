package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Code  string
	Reply chan *Session
}

type GetSession struct {
	Code  string
	Reply chan *Session
}

type EnsureSession struct {
	Code  string
	Reply chan *Session
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Hub owns the live contest sessions, one per join code.
type Hub struct {
	inbox       chan HubMsg
	sessions    map[string]*Session
	rules       rules.Rules
	persistence store.Persistence
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewHub(parent context.Context, r rules.Rules, p store.Persistence, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:       make(chan HubMsg, 64),
		sessions:    make(map[string]*Session),
		rules:       r,
		persistence: p,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := NewSession(h.ctx, msg.Code, h.rules, h.persistence, h.log)
				h.sessions[msg.Code] = s
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // May be nil

			case EnsureSession:
				if s := h.sessions[msg.Code]; s != nil {
					msg.Reply <- s
					break
				}
				s := NewSession(h.ctx, msg.Code, h.rules, h.persistence, h.log)
				h.sessions[msg.Code] = s
				msg.Reply <- s

			case RemoveSession:
				if s := h.sessions[msg.Code]; s != nil {
					s.Inbox() <- Shutdown{}
				}
				delete(h.sessions, msg.Code)

			case ShutdownHub:
				for _, s := range h.sessions {
					s.Inbox() <- Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
			}
		}
	}
}
