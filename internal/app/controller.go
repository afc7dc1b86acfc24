package app

import (
	"context"
	"fmt"
	"time"

	"livequiz-service/internal/domain"
)

// transitions lists the legal source statuses for each control action.
var transitions = map[domain.SessionAction][]domain.SessionStatus{
	domain.ActionStart:        {domain.StatusWaiting},
	domain.ActionPause:        {domain.StatusActive},
	domain.ActionResume:       {domain.StatusPaused},
	domain.ActionNextQuestion: {domain.StatusActive},
	domain.ActionComplete:     {domain.StatusActive, domain.StatusPaused},
}

// ControlRequest is a host command against the session state machine.
// TargetQuestion optionally names an explicit index for next_question;
// when nil the pointer advances by one.
type ControlRequest struct {
	Action         domain.SessionAction
	TargetQuestion *int
}

// Control applies a state-machine action on behalf of hostID. Only the
// recorded host may transition a session; anyone else gets
// domain.ErrUnauthorized before any state is touched. Illegal or raced
// transitions fail with domain.ErrInvalidTransition naming the action
// and the status that rejected it.
//
// Advancing past the last question fails with domain.ErrNoMoreQuestions;
// completion is never implicit.
func (s *Service) Control(ctx context.Context, sessionID, hostID string, req ControlRequest) (domain.Session, error) {
	session, err := s.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != hostID {
		return domain.Session{}, domain.ErrUnauthorized
	}

	sources, known := transitions[req.Action]
	if !known {
		return domain.Session{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, req.Action)
	}

	var (
		updated domain.Session
		ok      bool
	)
	switch req.Action {
	case domain.ActionNextQuestion:
		updated, ok, err = s.advanceQuestion(ctx, session, req.TargetQuestion)
	default:
		var to domain.SessionStatus
		var startedAt, endedAt *time.Time
		now := s.now()
		switch req.Action {
		case domain.ActionStart:
			to, startedAt = domain.StatusActive, &now
		case domain.ActionPause:
			to = domain.StatusPaused
		case domain.ActionResume:
			to = domain.StatusActive
		case domain.ActionComplete:
			to, endedAt = domain.StatusCompleted, &now
		}
		updated, ok, err = s.sessions.TransitionStatus(ctx, sessionID, sources, to, startedAt, endedAt)
	}
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		// Either the action was illegal from the start or a concurrent
		// control request won the conditional update. Re-read so the
		// error names the status that actually rejected us.
		status := session.Status
		if current, rerr := s.sessions.SessionByID(ctx, sessionID); rerr == nil {
			status = current.Status
		}
		return domain.Session{}, fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidTransition, req.Action, status)
	}

	s.publish(ctx, domain.Event{Type: domain.EventSessionUpdated, SessionID: updated.ID, Session: &updated})
	return updated, nil
}

// advanceQuestion validates the target index against the quiz and asks
// the store for a strictly-forward conditional move. A target that does
// not advance the pointer loses to whichever request already did.
//
// The status precondition is checked before the index bounds so that a
// non-active session at the last question is rejected as an illegal
// transition, not as running out of questions. The store re-checks the
// status under the conditional update.
func (s *Service) advanceQuestion(ctx context.Context, session domain.Session, explicit *int) (domain.Session, bool, error) {
	if session.Status != domain.StatusActive {
		return domain.Session{}, false, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Session{}, false, err
	}

	target := session.CurrentQuestion + 1
	if explicit != nil {
		target = *explicit
	}
	if target < 0 || target < session.CurrentQuestion {
		return domain.Session{}, false, fmt.Errorf("%w: question index cannot decrease", domain.ErrInvalidTransition)
	}
	if target > len(quiz.Questions)-1 {
		return domain.Session{}, false, domain.ErrNoMoreQuestions
	}
	return s.sessions.AdvanceQuestion(ctx, session.ID, target)
}

// CurrentQuestion resolves the live question for a session in active or
// paused status. This pointer is the only source of truth for "what
// question is live"; clients must not keep their own counters.
func (s *Service) CurrentQuestion(ctx context.Context, sessionID string) (domain.Question, int, error) {
	session, err := s.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.Question{}, 0, err
	}
	switch session.Status {
	case domain.StatusActive, domain.StatusPaused:
	case domain.StatusCompleted:
		return domain.Question{}, 0, domain.ErrSessionEnded
	default:
		return domain.Question{}, 0, domain.ErrSessionNotActive
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Question{}, 0, err
	}
	if session.CurrentQuestion >= len(quiz.Questions) {
		return domain.Question{}, 0, domain.ErrQuestionNotFound
	}
	return quiz.Questions[session.CurrentQuestion], session.CurrentQuestion, nil
}
