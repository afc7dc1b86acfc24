package app

import (
	"context"
	"errors"
	"strings"

	"livequiz-service/internal/domain"
	"github.com/google/uuid"
)

// Join codes are drawn uniformly from 36 symbols; six characters give
// ~2.2 billion combinations, so collisions among live sessions are
// rare but still handled with a bounded retry.
const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// NormalizeCode canonicalizes a join code for lookup. Codes are stored
// uppercase and matched case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) newCode() string {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[s.codes.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// CreateSession registers a new live session for the host's quiz. The
// join code is unique among non-completed sessions; codes of completed
// sessions may be recycled.
func (s *Service) CreateSession(ctx context.Context, quizID, hostID string) (domain.Session, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Session{}, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		session := &domain.Session{
			ID:        uuid.NewString(),
			QuizID:    quizID,
			HostID:    hostID,
			Code:      s.newCode(),
			Status:    domain.StatusWaiting,
			CreatedAt: s.now(),
		}
		err := s.sessions.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		s.publish(ctx, domain.Event{Type: domain.EventSessionUpdated, SessionID: session.ID, Session: session})
		return *session, nil
	}
	return domain.Session{}, domain.ErrCodeSpaceExhausted
}

// ResolveByCode finds the live session for a join code. A code whose
// only match has completed resolves to domain.ErrSessionEnded.
func (s *Service) ResolveByCode(ctx context.Context, code string) (domain.Session, error) {
	session, err := s.sessions.SessionByCode(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusCompleted {
		return domain.Session{}, domain.ErrSessionEnded
	}
	return session, nil
}

// Session returns the authoritative session row. Reconnecting clients
// rehydrate status and the current-question pointer from this, never
// from local caches.
func (s *Service) Session(ctx context.Context, id string) (domain.Session, error) {
	return s.sessions.SessionByID(ctx, id)
}

// SessionsForHost lists the host's sessions, newest first.
func (s *Service) SessionsForHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	return s.sessions.SessionsByHost(ctx, hostID)
}
