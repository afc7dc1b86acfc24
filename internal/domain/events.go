package domain

import "time"

// EventType tags change-feed events fanned out to watching clients.
type EventType string

const (
	EventSessionUpdated    EventType = "session_updated"
	EventParticipantJoined EventType = "participant_joined"
	EventResponseRecorded  EventType = "response_recorded"
	EventLeaderboard       EventType = "leaderboard"
)

// AnswerNotice is the broadcast-safe view of a recorded response.
// Correctness and points stay out of the feed so watching participants
// cannot learn answers before the host reveals them.
type AnswerNotice struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Event is one entry in a session's change feed. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type        EventType     `json:"type"`
	SessionID   string        `json:"sessionId"`
	Session     *Session      `json:"session,omitempty"`
	Participant *Participant  `json:"participant,omitempty"`
	Answer      *AnswerNotice `json:"answer,omitempty"`
	Leaderboard *Leaderboard  `json:"leaderboard,omitempty"`
	OccurredAt  time.Time     `json:"occurredAt"`
}
