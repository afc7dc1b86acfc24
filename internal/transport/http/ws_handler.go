package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler streams a session's change feed over a websocket. Clients
// (the host console and participants) watch the same feed; the initial
// snapshot carries the authoritative session row so a reconnecting
// client resynchronizes to the correct question without trusting any
// local cache.
type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: slog.Default(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type heartbeatPayload struct {
	ParticipantID string `json:"participantId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type snapshotPayload struct {
	Session     domain.Session     `json:"session"`
	Question    *domain.Question   `json:"question,omitempty"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and forwards session events until the
// client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	session, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Watch(r.Context(), sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Sends from the read loop race writer exit, so a client that keeps
	// sending frames after a failed write cannot wedge the loop once the
	// buffer fills.
	sendOrStop := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	if sendOrStop(outboundMessage[any]{Type: "snapshot", Payload: h.snapshot(r, session)}) {
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				break
			}
			reply := h.handleInbound(r, sessionID, inbound)
			if reply != nil && !sendOrStop(*reply) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleInbound processes one client frame and returns the reply to
// queue, or nil when a successful heartbeat needs no response.
func (h *WSHandler) handleInbound(r *http.Request, sessionID string, inbound inboundMessage) *outboundMessage[any] {
	switch inbound.Type {
	case "heartbeat":
		var payload heartbeatPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ParticipantID == "" {
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid heartbeat payload"}}
		}
		if err := h.service.MarkActivity(r.Context(), payload.ParticipantID); err != nil {
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
		return nil
	case "resync":
		current, err := h.service.Session(r.Context(), sessionID)
		if err != nil {
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
		return &outboundMessage[any]{Type: "snapshot", Payload: h.snapshot(r, current)}
	default:
		return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

// snapshot builds the resync payload: session row, the live question
// with the answer redacted, and the current scoreboard.
func (h *WSHandler) snapshot(r *http.Request, session domain.Session) snapshotPayload {
	payload := snapshotPayload{Session: session}

	if question, _, err := h.service.CurrentQuestion(r.Context(), session.ID); err == nil {
		redacted := question.Redacted()
		payload.Question = &redacted
	}
	if lb, err := h.service.Leaderboard(r.Context(), session.ID); err == nil {
		payload.Leaderboard = lb
	}
	return payload
}
