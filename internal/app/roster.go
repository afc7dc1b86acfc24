package app

import (
	"context"
	"fmt"
	"strings"

	"livequiz-service/internal/domain"
	"github.com/google/uuid"
)

// NormalizeName canonicalizes a display name for uniqueness checks:
// surrounding whitespace is dropped and case is folded. The stored name
// keeps the original casing.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// JoinByCode resolves a join code and registers the participant.
func (s *Service) JoinByCode(ctx context.Context, code, name string, profile map[string]any) (domain.Participant, error) {
	session, err := s.ResolveByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.Join(ctx, session.ID, name, profile)
}

// Join adds a participant to a session. Names are unique per session;
// joining a completed session fails with domain.ErrSessionEnded.
func (s *Service) Join(ctx context.Context, sessionID, name string, profile map[string]any) (domain.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Participant{}, fmt.Errorf("participant name is required")
	}

	session, err := s.sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if session.Status == domain.StatusCompleted {
		return domain.Participant{}, domain.ErrSessionEnded
	}

	now := s.now()
	participant := &domain.Participant{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		Name:         name,
		Profile:      profile,
		Status:       domain.PresenceConnected,
		JoinedAt:     now,
		LastActivity: now,
	}
	if err := s.roster.CreateParticipant(ctx, participant); err != nil {
		return domain.Participant{}, err
	}

	s.publish(ctx, domain.Event{Type: domain.EventParticipantJoined, SessionID: sessionID, Participant: participant})
	s.publishLeaderboard(ctx, sessionID)
	return *participant, nil
}

// MarkActivity records a heartbeat for the participant. Presence status
// is derived from this timestamp when the roster is read.
func (s *Service) MarkActivity(ctx context.Context, participantID string) error {
	if _, err := s.roster.ParticipantByID(ctx, participantID); err != nil {
		return err
	}
	return s.roster.TouchActivity(ctx, participantID, s.now())
}

// Participants lists a session's roster ordered by join time, with
// presence derived from last activity.
func (s *Service) Participants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	if _, err := s.sessions.SessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.roster.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range participants {
		participants[i].Status = s.presence.Classify(participants[i].LastActivity, now)
	}
	return participants, nil
}
