package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostToken = "host-token"

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals and facts",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "Capital of France?",
				Type:   domain.QuestionSingleChoice,
				Options: []domain.Option{
					{ID: "o1", Text: "Lyon"},
					{ID: "o2", Text: "Paris"},
				},
				Answer: "o2",
				Points: 2,
			},
			{
				ID:     "q2",
				Prompt: "The Atlantic is larger than the Pacific.",
				Type:   domain.QuestionTrueFalse,
				Answer: "false",
				Points: 2,
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Service) {
	t.Helper()
	store := memory.NewStore()
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": testQuiz(),
	}), 5*time.Minute)
	service := app.NewService(store, store, store, quizzes, memory.NewBroker(), app.DefaultPresencePolicy())

	verifier := auth.StaticVerifier{hostToken: {HostID: "host-a"}}
	mux := http.NewServeMux()
	NewHandler(service, verifier).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	decoded := map[string]json.RawMessage{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func errorKind(t *testing.T, decoded map[string]json.RawMessage) string {
	t.Helper()
	var info struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(decoded["error"], &info))
	return info.Kind
}

func createSession(t *testing.T, server *httptest.Server) domain.Session {
	t.Helper()
	resp, decoded := doJSON(t, http.MethodPost, server.URL+"/sessions", hostToken, map[string]string{"quizId": "quiz-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session domain.Session
	require.NoError(t, json.Unmarshal(decoded["session"], &session))
	return session
}

func TestCreateSessionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	session := createSession(t, server)
	assert.Equal(t, domain.StatusWaiting, session.Status)
	assert.Len(t, session.Code, 6)
	assert.Equal(t, "host-a", session.HostID)
}

func TestCreateSessionAuth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodPost, server.URL+"/sessions", "", map[string]string{"quizId": "quiz-1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorKind(t, decoded))

	resp, decoded = doJSON(t, http.MethodPost, server.URL+"/sessions", "wrong-token", map[string]string{"quizId": "quiz-1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorKind(t, decoded))
}

func TestCreateSessionValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodPost, server.URL+"/sessions", hostToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", errorKind(t, decoded))

	resp, decoded = doJSON(t, http.MethodPost, server.URL+"/sessions", hostToken, map[string]string{"quizId": "nope"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, decoded))
}

func TestListSessionsForHost(t *testing.T) {
	server, _ := newTestServer(t)
	createSession(t, server)
	createSession(t, server)

	resp, decoded := doJSON(t, http.MethodGet, server.URL+"/sessions", hostToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sessions []domain.Session
	require.NoError(t, json.Unmarshal(decoded["sessions"], &sessions))
	assert.Len(t, sessions, 2)
}

func TestControlEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	session := createSession(t, server)
	url := fmt.Sprintf("%s/sessions/%s/control", server.URL, session.ID)

	resp, decoded := doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "start"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated domain.Session
	require.NoError(t, json.Unmarshal(decoded["session"], &updated))
	assert.Equal(t, domain.StatusActive, updated.Status)
	assert.NotNil(t, updated.StartedAt)

	// Illegal transition.
	resp, decoded = doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "start"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_transition", errorKind(t, decoded))

	// Unknown action never reaches the service.
	resp, decoded = doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "explode"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", errorKind(t, decoded))

	// Advancing with an explicit index.
	resp, decoded = doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "next_question", "currentQuestionIndex": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(decoded["session"], &updated))
	assert.Equal(t, 1, updated.CurrentQuestion)

	// Advancing past the last question.
	resp, decoded = doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "next_question"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_more_questions", errorKind(t, decoded))
}

func TestControlRequiresOwnership(t *testing.T) {
	server, service := newTestServer(t)
	other, err := service.CreateSession(context.Background(), "quiz-1", "host-b")
	require.NoError(t, err)

	url := fmt.Sprintf("%s/sessions/%s/control", server.URL, other.ID)
	resp, decoded := doJSON(t, http.MethodPut, url, hostToken, map[string]any{"action": "start"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "unauthorized", errorKind(t, decoded))
}

func TestJoinEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	session := createSession(t, server)
	url := fmt.Sprintf("%s/join/%s", server.URL, session.Code)

	resp, decoded := doJSON(t, http.MethodPost, url, "", map[string]any{"participantName": "Ada"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var participant domain.Participant
	require.NoError(t, json.Unmarshal(decoded["participant"], &participant))
	assert.Equal(t, session.ID, participant.SessionID)
	assert.Equal(t, "Ada", participant.Name)

	resp, decoded = doJSON(t, http.MethodPost, url, "", map[string]any{"participantName": "ada"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "duplicate_name", errorKind(t, decoded))

	resp, decoded = doJSON(t, http.MethodPost, server.URL+"/join/NOPE12", "", map[string]any{"participantName": "Ada"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, decoded))
}

func TestSubmitResponseEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	session := createSession(t, server)

	_, err := service.Control(context.Background(), session.ID, "host-a", app.ControlRequest{Action: domain.ActionStart})
	require.NoError(t, err)
	participant, err := service.Join(context.Background(), session.ID, "Ada", nil)
	require.NoError(t, err)

	url := fmt.Sprintf("%s/participants/%s/responses", server.URL, participant.ID)
	resp, decoded := doJSON(t, http.MethodPost, url, "", map[string]any{
		"questionId": "q1", "answer": "o2", "responseTimeMs": 900,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var response domain.Response
	require.NoError(t, json.Unmarshal(decoded["response"], &response))
	assert.True(t, response.Correct)
	assert.Equal(t, 2, response.Points)

	// Second submission to the same question.
	resp, decoded = doJSON(t, http.MethodPost, url, "", map[string]any{"questionId": "q1", "answer": "o1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "duplicate_submission", errorKind(t, decoded))

	// Question exists but is not live.
	resp, decoded = doJSON(t, http.MethodPost, url, "", map[string]any{"questionId": "q2", "answer": "true"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "question_not_live", errorKind(t, decoded))

	// Responses listing.
	resp, decoded = doJSON(t, http.MethodGet, url, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var responses []domain.Response
	require.NoError(t, json.Unmarshal(decoded["responses"], &responses))
	assert.Len(t, responses, 1)
}

func TestParticipantsAndLeaderboardEndpoints(t *testing.T) {
	server, service := newTestServer(t)
	session := createSession(t, server)
	_, err := service.Join(context.Background(), session.ID, "Ada", nil)
	require.NoError(t, err)

	resp, decoded := doJSON(t, http.MethodGet, server.URL+"/participants?sessionId="+session.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var participants []domain.Participant
	require.NoError(t, json.Unmarshal(decoded["participants"], &participants))
	require.Len(t, participants, 1)
	assert.Equal(t, domain.PresenceConnected, participants[0].Status)

	resp, decoded = doJSON(t, http.MethodGet, server.URL+"/participants", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", errorKind(t, decoded))

	url := fmt.Sprintf("%s/sessions/%s/leaderboard", server.URL, session.ID)
	resp, decoded = doJSON(t, http.MethodGet, url, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lb domain.Leaderboard
	require.NoError(t, json.Unmarshal(decoded["leaderboard"], &lb))
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "Ada", lb.Entries[0].Name)

	resp, decoded = doJSON(t, http.MethodGet, server.URL+"/sessions/ghost/leaderboard", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, decoded))
}

func TestHeartbeatEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	session := createSession(t, server)
	participant, err := service.Join(context.Background(), session.ID, "Ada", nil)
	require.NoError(t, err)

	resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/participants/%s/heartbeat", server.URL, participant.ID), "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, decoded := doJSON(t, http.MethodPost, server.URL+"/participants/ghost/heartbeat", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, decoded))
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetSessionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	session := createSession(t, server)

	resp, decoded := doJSON(t, http.MethodGet, server.URL+"/sessions/"+session.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched domain.Session
	require.NoError(t, json.Unmarshal(decoded["session"], &fetched))
	assert.Equal(t, session.ID, fetched.ID)

	resp, decoded = doJSON(t, http.MethodGet, server.URL+"/sessions/ghost", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorKind(t, decoded))
}
