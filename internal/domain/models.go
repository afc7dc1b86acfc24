package domain

import "time"

// QuestionType distinguishes how a question is answered and graded.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionShortAnswer  QuestionType = "short_answer"
	QuestionEssay        QuestionType = "essay"
)

// AutoGradable reports whether the type can be scored by exact match.
// Short-answer and essay responses are recorded with zero points and
// flagged for manual review.
func (t QuestionType) AutoGradable() bool {
	return t == QuestionSingleChoice || t == QuestionTrueFalse
}

// Option represents a possible answer for a choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models one quiz question. Answer holds the correct-answer
// specification: the option ID for single_choice, "true"/"false" for
// true_false, and a reference text (unused by auto-grading) otherwise.
type Question struct {
	ID           string       `json:"id"`
	Prompt       string       `json:"prompt"`
	Type         QuestionType `json:"type"`
	Options      []Option     `json:"options,omitempty"`
	Answer       string       `json:"answer"`
	Points       int          `json:"points"` // defaults to 1 if zero
	TimeLimitSec int          `json:"timeLimitSec,omitempty"`
}

// Redacted strips the correct-answer specification for client delivery.
func (q Question) Redacted() Question {
	q.Answer = ""
	return q
}

// PointValue returns the points awarded for a correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is an ordered collection of questions. Quiz content is immutable
// once a session referencing it exists.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatorID string     `json:"creatorId,omitempty"`
	Questions []Question `json:"questions"`
}

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

// SessionAction is a host-issued control command.
type SessionAction string

const (
	ActionStart        SessionAction = "start"
	ActionPause        SessionAction = "pause"
	ActionResume       SessionAction = "resume"
	ActionNextQuestion SessionAction = "next_question"
	ActionComplete     SessionAction = "complete"
)

// Session is one live run of a quiz, identified by a join code.
// Status and CurrentQuestion are mutated only through conditional
// store updates so racing control requests linearize.
type Session struct {
	ID              string        `json:"id"`
	QuizID          string        `json:"quizId"`
	HostID          string        `json:"hostId"`
	Code            string        `json:"code"`
	Status          SessionStatus `json:"status"`
	CurrentQuestion int           `json:"currentQuestionIndex"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// PresenceStatus is derived from a participant's last activity.
type PresenceStatus string

const (
	PresenceConnected    PresenceStatus = "connected"
	PresenceStruggling   PresenceStatus = "struggling"
	PresenceDisconnected PresenceStatus = "disconnected"
)

// Participant is a student-side actor within one session. Rows are
// never deleted; they are the historical scoring record.
type Participant struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"sessionId"`
	Name         string         `json:"name"`
	Profile      map[string]any `json:"profile,omitempty"`
	Score        int            `json:"score"`
	Status       PresenceStatus `json:"status"`
	JoinedAt     time.Time      `json:"joinedAt"`
	LastActivity time.Time      `json:"lastActivity"`
}

// Response is one participant's single submitted answer to one
// question. At most one response exists per (participant, question).
type Response struct {
	ID             string    `json:"id"`
	ParticipantID  string    `json:"participantId"`
	QuestionID     string    `json:"questionId"`
	Answer         string    `json:"answer"`
	Correct        bool      `json:"correct"`
	Points         int       `json:"points"`
	RequiresReview bool      `json:"requiresReview,omitempty"`
	ResponseTimeMs int       `json:"responseTimeMs"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
