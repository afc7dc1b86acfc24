package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// Store is an in-memory implementation of the app store interfaces.
// A single mutex serializes mutations, which gives the same
// conditional-update and uniqueness semantics the Postgres store gets
// from row locks and unique indexes.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*domain.Session
	participants map[string]*domain.Participant
	responses    map[string][]*domain.Response // keyed by participant id, in submission order
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]*domain.Session),
		participants: make(map[string]*domain.Participant),
		responses:    make(map[string][]*domain.Response),
	}
}

func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Code == session.Code && existing.Status != domain.StatusCompleted {
			return domain.ErrCodeTaken
		}
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *Store) SessionByID(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return *session, nil
}

func (s *Store) SessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ended *domain.Session
	for _, session := range s.sessions {
		if session.Code != code {
			continue
		}
		if session.Status != domain.StatusCompleted {
			return *session, nil
		}
		if ended == nil || session.CreatedAt.After(ended.CreatedAt) {
			ended = session
		}
	}
	if ended != nil {
		return *ended, nil
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (s *Store) SessionsByHost(_ context.Context, hostID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]domain.Session, 0)
	for _, session := range s.sessions {
		if session.HostID == hostID {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Store) TransitionStatus(_ context.Context, id string, from []domain.SessionStatus, to domain.SessionStatus, startedAt, endedAt *time.Time) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	matched := false
	for _, status := range from {
		if session.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return domain.Session{}, false, nil
	}

	session.Status = to
	if startedAt != nil && session.StartedAt == nil {
		at := *startedAt
		session.StartedAt = &at
	}
	if endedAt != nil && session.EndedAt == nil {
		at := *endedAt
		session.EndedAt = &at
	}
	return *session, true, nil
}

func (s *Store) AdvanceQuestion(_ context.Context, id string, target int) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive || session.CurrentQuestion >= target {
		return domain.Session{}, false, nil
	}
	session.CurrentQuestion = target
	return *session, true, nil
}

func (s *Store) CreateParticipant(_ context.Context, participant *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := app.NormalizeName(participant.Name)
	for _, existing := range s.participants {
		if existing.SessionID == participant.SessionID && app.NormalizeName(existing.Name) == normalized {
			return domain.ErrDuplicateName
		}
	}
	copied := *participant
	s.participants[participant.ID] = &copied
	return nil
}

func (s *Store) ParticipantByID(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return *participant, nil
}

func (s *Store) ParticipantsBySession(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants := make([]domain.Participant, 0)
	for _, participant := range s.participants {
		if participant.SessionID == sessionID {
			participants = append(participants, *participant)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

func (s *Store) TouchActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	participant.LastActivity = at
	return nil
}

func (s *Store) CreateResponse(_ context.Context, response *domain.Response) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participant, ok := s.participants[response.ParticipantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	for _, existing := range s.responses[response.ParticipantID] {
		if existing.QuestionID == response.QuestionID {
			return domain.Participant{}, domain.ErrDuplicateSubmission
		}
	}

	copied := *response
	s.responses[response.ParticipantID] = append(s.responses[response.ParticipantID], &copied)
	participant.Score += response.Points
	participant.LastActivity = response.SubmittedAt
	return *participant, nil
}

func (s *Store) ResponsesByParticipant(_ context.Context, participantID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.responses[participantID]
	responses := make([]domain.Response, 0, len(stored))
	for _, response := range stored {
		responses = append(responses, *response)
	}
	return responses, nil
}
