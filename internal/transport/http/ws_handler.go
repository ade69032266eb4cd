package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/engine"
)

// WSHandler is the delivery leg of the broadcast gateway: it upgrades
// connections, forwards inbound events to the room manager and pumps the
// room's event stream back out. Each connection gets its own identity so a
// user can reconnect on a fresh socket without losing their score.
type WSHandler struct {
	manager  *engine.Manager
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(manager *engine.Manager, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

type errorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// eventCloseConn is an internal writer sentinel, never sent on the wire.
const eventCloseConn = "__close"

// reasonFor maps engine errors onto the wire-level rejection vocabulary.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrLateSubmission):
		return "late"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return "duplicate"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "unknownRoom"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "unknownParticipant"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalidTransition"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

func errorEvent(err error) domain.Event {
	return domain.Event{Type: "error", Payload: errorPayload{Reason: reasonFor(err), Message: err.Error()}}
}

// ServeWS wires one websocket connection into a session room.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if code == "" || userID == "" || displayName == "" {
		http.Error(w, "missing code, userId, or name", http.StatusBadRequest)
		return
	}
	code = engine.NormalizeCode(code)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	if err := h.manager.Join(code, userID, connID, displayName); err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}

	updates, cancel, err := h.manager.Subscribe(code)
	if err != nil {
		_ = conn.WriteJSON(errorEvent(err))
		return
	}
	defer cancel()
	defer h.manager.Disconnect(code, connID)

	send := make(chan domain.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer goroutine; gorilla connections do not allow concurrent
	// writes. The sentinel closes the socket only after every event queued
	// before it has been written, so a final sessionEnded is never lost.
	go func() {
		defer close(writerDone)
		for ev := range send {
			if ev.Type == eventCloseConn {
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Str("room", code).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					// Room closed (host ended it or sweep); flush pending
					// events, then drop the socket to unblock the read loop.
					select {
					case send <- domain.Event{Type: eventCloseConn}:
					case <-closeSignals:
					case <-writerDone:
					}
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !h.handleInbound(r, code, userID, inbound, send, writerDone) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleInbound applies one client message; it reports whether the read loop
// should continue.
func (h *WSHandler) handleInbound(r *http.Request, code, userID string, inbound inboundMessage, send chan<- domain.Event, writerDone <-chan struct{}) bool {
	// Error frames must not wedge the read loop if the writer already exited.
	reply := func(ev domain.Event) {
		select {
		case send <- ev:
		case <-writerDone:
		}
	}

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			reply(domain.Event{Type: "error", Payload: errorPayload{Reason: "badPayload", Message: "invalid answer payload"}})
			return true
		}
		if err := h.manager.SubmitAnswer(code, userID, payload.QuestionIndex, payload.Answer); err != nil {
			reply(errorEvent(err))
		}
		// Success is acknowledged through the broadcast stream
		// (submissionAccepted, possibly phaseChanged).
	case "advance":
		if err := h.manager.Advance(code, userID); err != nil {
			reply(errorEvent(err))
		}
	case "end":
		if err := h.manager.End(r.Context(), code, userID); err != nil {
			reply(errorEvent(err))
		}
		// On success the room closes its subscribers; the update pump then
		// tears this connection down after the final sessionEnded is written.
	case "leave":
		h.manager.Leave(code, userID)
		return false
	default:
		reply(domain.Event{Type: "error", Payload: errorPayload{Reason: "badPayload", Message: "unsupported message type"}})
	}
	return true
}
