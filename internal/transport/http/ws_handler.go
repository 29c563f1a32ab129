package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// Handler wires the session command surface and event stream to HTTP and
// websocket clients.
type Handler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
}

func NewHandler(service *app.SessionService) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register installs all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.handleSnapshot)
	mux.HandleFunc("GET /ws", h.serveParticipantWS)
	mux.HandleFunc("GET /ws/host", h.serveHostWS)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string   `json:"questionId"`
	OptionIDs  []string `json:"optionIds,omitempty"`
	FreeText   string   `json:"freeText,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type ackPayload struct {
	Command string `json:"command"`
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

// handleCreateSession creates a session and returns the join code and its
// scannable payload to the host.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" || req.HostID == "" {
		writeJSONError(w, http.StatusBadRequest, "quizId and hostId required")
		return
	}
	info, err := h.service.Create(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleSnapshot serves the current leaderboard and tally state, used by
// dashboards and clients recovering from a reconnect.
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// serveParticipantWS joins (or rejoins) a participant via join code and runs
// the answer/event loop over one websocket connection.
func (h *Handler) serveParticipantWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if code == "" || userID == "" {
		http.Error(w, "missing code or userId", http.StatusBadRequest)
		return
	}
	sinceSeq := parseSince(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	joined, err := h.service.Join(r.Context(), code, userID, displayName)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	if err := h.service.Attach(joined.SessionID, joined.ParticipantID); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Detach(joined.SessionID, joined.ParticipantID)

	events, cancel, err := h.service.Subscribe(joined.SessionID, sinceSeq)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send, done := startWriter(conn, events)
	defer close(done)

	send <- outboundMessage[any]{Type: "joined", Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			result, err := h.service.Submit(r.Context(), joined.SessionID, joined.ParticipantID, payload.QuestionID, domain.Response{
				OptionIDs: payload.OptionIDs,
				FreeText:  payload.FreeText,
			})
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}
}

// serveHostWS runs the host's control loop: start, next, end. Commands are
// acknowledged or rejected individually; session events flow on the same
// connection.
func (h *Handler) serveHostWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	hostID := r.URL.Query().Get("hostId")
	if sessionID == "" || hostID == "" {
		http.Error(w, "missing sessionId or hostId", http.StatusBadRequest)
		return
	}
	sinceSeq := parseSince(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	snap, err := h.service.Snapshot(sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	events, cancel, err := h.service.Subscribe(sessionID, sinceSeq)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send, done := startWriter(conn, events)
	defer close(done)

	send <- outboundMessage[any]{Type: "snapshot", Payload: snap}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		var cmdErr error
		switch inbound.Type {
		case "start":
			cmdErr = h.service.Start(r.Context(), sessionID, hostID)
		case "next":
			cmdErr = h.service.Next(r.Context(), sessionID, hostID)
		case "end":
			cmdErr = h.service.End(r.Context(), sessionID, hostID)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
			continue
		}
		if cmdErr != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: cmdErr.Error()}}
			continue
		}
		send <- outboundMessage[any]{Type: "ack", Payload: ackPayload{Command: inbound.Type}}
	}
}

// startWriter serializes all writes to one connection through a single
// goroutine and forwards subscription events alongside direct replies.
// Closing done tears both goroutines down.
func startWriter(conn *websocket.Conn, events <-chan domain.Event) (chan outboundMessage[any], chan struct{}) {
	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: event}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	return send, done
}

func parseSince(r *http.Request) uint64 {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return since
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuiz),
		errors.Is(err, domain.ErrInvalidResponse):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrSessionNotJoinable),
		errors.Is(err, domain.ErrQuestionNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
