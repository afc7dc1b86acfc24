package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid for the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSessionNotFound is returned when no session matches the id or join code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when the matched session has completed.
	ErrSessionEnded = errors.New("session has ended")
	// ErrSessionNotActive rejects submissions while the session is waiting or paused.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrParticipantNotFound is returned when a participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrDuplicateName rejects a join using a name already taken in the session.
	ErrDuplicateName = errors.New("participant name already taken")
	// ErrDuplicateSubmission rejects a second response for the same question.
	ErrDuplicateSubmission = errors.New("response already submitted for this question")
	// ErrQuestionNotLive rejects a submission for a question that is not the current one.
	ErrQuestionNotLive = errors.New("question is not the live question")
	// ErrInvalidTransition rejects a control action not legal from the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoMoreQuestions rejects advancing past the last question.
	ErrNoMoreQuestions = errors.New("no more questions")
	// ErrUnauthorized rejects control actions from anyone but the session host.
	ErrUnauthorized = errors.New("not the session host")
	// ErrCodeTaken is a store-level signal that a join code is held by a live session.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeSpaceExhausted is returned when code generation gives up after retries.
	ErrCodeSpaceExhausted = errors.New("join code space exhausted")
)
