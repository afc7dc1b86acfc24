package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Handler serves the JSON API. Host-only endpoints resolve the bearer
// token through the verifier; everything else is keyed by ids the
// client received from earlier responses, never by ambient state.
type Handler struct {
	service  *app.Service
	verifier auth.Verifier
	validate *validator.Validate
	log      *slog.Logger
}

func NewHandler(service *app.Service, verifier auth.Verifier) *Handler {
	return &Handler{
		service:  service,
		verifier: verifier,
		validate: validator.New(),
		log:      slog.Default(),
	}
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions", h.listSessions)
	mux.HandleFunc("GET /sessions/{id}", h.getSession)
	mux.HandleFunc("PUT /sessions/{id}/control", h.controlSession)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", h.leaderboard)
	mux.HandleFunc("POST /join/{code}", h.join)
	mux.HandleFunc("GET /participants", h.listParticipants)
	mux.HandleFunc("POST /participants/{id}/responses", h.submitResponse)
	mux.HandleFunc("GET /participants/{id}/responses", h.listResponses)
	mux.HandleFunc("POST /participants/{id}/heartbeat", h.heartbeat)
	mux.HandleFunc("GET /healthz", h.healthz)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	QuizID string `json:"quizId" validate:"required"`
}

type controlSessionRequest struct {
	Action               string `json:"action" validate:"required,oneof=start pause resume next_question complete"`
	CurrentQuestionIndex *int   `json:"currentQuestionIndex" validate:"omitempty,min=0"`
}

type joinRequest struct {
	ParticipantName string         `json:"participantName" validate:"required,max=64"`
	ParticipantData map[string]any `json:"participantData"`
}

type submitResponseRequest struct {
	QuestionID     string `json:"questionId" validate:"required"`
	Answer         string `json:"answer" validate:"required"`
	ResponseTimeMs int    `json:"responseTimeMs" validate:"min=0"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req createSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.service.CreateSession(r.Context(), req.QuizID, identity.HostID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sessions, err := h.service.SessionsForHost(r.Context(), identity.HostID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handler) controlSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req controlSessionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	session, err := h.service.Control(r.Context(), r.PathValue("id"), identity.HostID, app.ControlRequest{
		Action:         domain.SessionAction(req.Action),
		TargetQuestion: req.CurrentQuestionIndex,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Session(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"leaderboard": lb})
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	participant, err := h.service.JoinByCode(r.Context(), r.PathValue("code"), req.ParticipantName, req.ParticipantData)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"participant": participant})
}

func (h *Handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeErrorKind(w, http.StatusBadRequest, "validation", "sessionId query parameter is required")
		return
	}
	participants, err := h.service.Participants(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"participants": participants})
}

func (h *Handler) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitResponseRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	response, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), app.Submission{
		QuestionID:     req.QuestionID,
		Answer:         req.Answer,
		ResponseTimeMs: req.ResponseTimeMs,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"response": response})
}

func (h *Handler) listResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.service.Responses(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkActivity(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authenticate(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return h.verifier.Verify(r.Context(), token)
}

// decode unmarshals and validates a JSON request body.
func (h *Handler) decode(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return errBadBody
	}
	if err := h.validate.Struct(into); err != nil {
		return errBadBody
	}
	return nil
}

var errBadBody = errors.New("malformed or missing request fields")

type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError maps domain errors onto the status-code contract. Conflict
// family errors return 400, matching the reference clients, with the
// kind carrying the machine-readable distinction.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, domain.ErrOptionNotFound):
		h.writeErrorKind(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		h.writeErrorKind(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid bearer token")
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeErrorKind(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		h.writeErrorKind(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrDuplicateName):
		h.writeErrorKind(w, http.StatusBadRequest, "duplicate_name", err.Error())
	case errors.Is(err, domain.ErrDuplicateSubmission):
		h.writeErrorKind(w, http.StatusBadRequest, "duplicate_submission", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeErrorKind(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrNoMoreQuestions):
		h.writeErrorKind(w, http.StatusBadRequest, "no_more_questions", err.Error())
	case errors.Is(err, domain.ErrQuestionNotLive):
		h.writeErrorKind(w, http.StatusBadRequest, "question_not_live", err.Error())
	case errors.Is(err, domain.ErrSessionEnded):
		h.writeErrorKind(w, http.StatusBadRequest, "session_ended", err.Error())
	case errors.Is(err, domain.ErrSessionNotActive):
		h.writeErrorKind(w, http.StatusBadRequest, "session_not_active", err.Error())
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		h.writeErrorKind(w, http.StatusServiceUnavailable, "code_space_exhausted", err.Error())
	default:
		h.log.Error("request failed", "err", err)
		h.writeErrorKind(w, http.StatusInternalServerError, "storage", "internal error")
	}
}

func (h *Handler) writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, errorBody{Error: errorInfo{Kind: kind, Message: message}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("write response", "err", err)
	}
}
