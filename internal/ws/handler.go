package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tvasek/gridball-backend/internal/hub"
	"github.com/tvasek/gridball-backend/pkg/wire"
)

// Handler upgrades a participant connection and bridges it onto the
// session's broadcast channel. Identity is connection-scoped: the session
// stamps every relayed envelope with the participant id, and intent payloads
// get their actor field overwritten so a client cannot submit as somebody
// else.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anonymous"
		}
		privileged := r.URL.Query().Get("privileged") == "1"

		reply := make(chan *hub.Session, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "contest not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan wire.Envelope, 16)
		participantID := uuid.NewString()
		log.Info("participant connected",
			zap.String("contest", code), zap.String("participant", participantID),
			zap.String("name", name), zap.Bool("privileged", privileged))

		s.Inbox() <- hub.Join{
			Participant: wire.Participant{ID: participantID, Name: name, Privileged: privileged},
			Outbox:      out,
		}
		defer func() { s.Inbox() <- hub.Leave{ID: participantID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range out {
				payload, _ := json.Marshal(env)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop. Decision answers can take a minute (a controller
		// thinking about a save), so reads have no idle deadline.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (hub.Leave in defer):
				return
			}

			var env wire.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","payload":{"error":"bad json"}}`))
				continue
			}

			if env.Type == wire.TypeIntent {
				env.Payload = stampActor(env.Payload, participantID)
			}
			s.Inbox() <- hub.FromParticipant{ID: participantID, Env: env}
		}
	}
}

// stampActor overwrites the actor field of an intent payload with the
// authenticated participant id.
func stampActor(payload json.RawMessage, actor string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		fields = map[string]json.RawMessage{}
	}
	fields["actor"] = wire.MustMarshal(actor)
	out, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return out
}
