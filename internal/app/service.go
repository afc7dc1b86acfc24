package app

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// SessionStore persists sessions. Mutations go through conditional
// updates so that racing control requests for the same session
// linearize at the store instead of read-then-write across two trips.
type SessionStore interface {
	// CreateSession inserts the session, failing with domain.ErrCodeTaken
	// when a non-completed session already holds the join code.
	CreateSession(ctx context.Context, session *domain.Session) error
	SessionByID(ctx context.Context, id string) (domain.Session, error)
	// SessionByCode resolves a canonical (uppercase) join code. It prefers
	// a live session; with no live match it returns the most recent
	// completed session so callers can distinguish "ended" from "unknown".
	SessionByCode(ctx context.Context, code string) (domain.Session, error)
	SessionsByHost(ctx context.Context, hostID string) ([]domain.Session, error)
	// TransitionStatus sets status (and the given timestamps, when non-nil)
	// only if the current status is one of from. ok=false reports that the
	// precondition did not hold; the session row is untouched.
	TransitionStatus(ctx context.Context, id string, from []domain.SessionStatus, to domain.SessionStatus, startedAt, endedAt *time.Time) (domain.Session, bool, error)
	// AdvanceQuestion moves the question pointer to target only if the
	// session is active and the pointer is still strictly below target.
	AdvanceQuestion(ctx context.Context, id string, target int) (domain.Session, bool, error)
}

// ParticipantStore persists the per-session roster.
type ParticipantStore interface {
	// CreateParticipant inserts the participant, failing with
	// domain.ErrDuplicateName when the normalized name is already taken
	// within the same session.
	CreateParticipant(ctx context.Context, participant *domain.Participant) error
	ParticipantByID(ctx context.Context, id string) (domain.Participant, error)
	// ParticipantsBySession lists participants ordered by join time.
	ParticipantsBySession(ctx context.Context, sessionID string) ([]domain.Participant, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// ResponseStore persists submitted answers.
type ResponseStore interface {
	// CreateResponse stores the response and adds its points to the
	// participant's total as one atomic unit, failing with
	// domain.ErrDuplicateSubmission when the (participant, question)
	// pair already has a response. Returns the participant with the
	// updated score.
	CreateResponse(ctx context.Context, response *domain.Response) (domain.Participant, error)
	// ResponsesByParticipant lists responses ordered by submission time.
	ResponsesByParticipant(ctx context.Context, participantID string) ([]domain.Response, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// EventBus fans session change events out to watching clients. The
// service stays correct if nobody listens; REST reads always reflect
// authoritative store state.
type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error)
}

// PresencePolicy derives a participant's connection status from the
// gap since their last activity. The heartbeat that feeds LastActivity
// is driven by clients, not by this service.
type PresencePolicy struct {
	Struggling   time.Duration
	Disconnected time.Duration
}

// DefaultPresencePolicy matches the polling cadence of the reference clients.
func DefaultPresencePolicy() PresencePolicy {
	return PresencePolicy{Struggling: 20 * time.Second, Disconnected: time.Minute}
}

// Classify maps an activity gap to a presence status.
func (p PresencePolicy) Classify(lastActivity, now time.Time) domain.PresenceStatus {
	idle := now.Sub(lastActivity)
	switch {
	case p.Disconnected > 0 && idle >= p.Disconnected:
		return domain.PresenceDisconnected
	case p.Struggling > 0 && idle >= p.Struggling:
		return domain.PresenceStruggling
	default:
		return domain.PresenceConnected
	}
}

// Service contains the live-session use cases: the session registry and
// state machine, the participant roster, and the answer ledger.
type Service struct {
	sessions  SessionStore
	roster    ParticipantStore
	responses ResponseStore
	quizzes   QuizRepository
	events    EventBus
	presence  PresencePolicy
	log       *slog.Logger
	now       func() time.Time

	codeMu sync.Mutex
	codes  *rand.Rand
}

func NewService(sessions SessionStore, roster ParticipantStore, responses ResponseStore, quizzes QuizRepository, events EventBus, presence PresencePolicy) *Service {
	return &Service{
		sessions:  sessions,
		roster:    roster,
		responses: responses,
		quizzes:   quizzes,
		events:    events,
		presence:  presence,
		log:       slog.Default(),
		now:       time.Now,
		codes:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Watch subscribes to a session's change feed.
func (s *Service) Watch(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	if _, err := s.sessions.SessionByID(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, sessionID)
}

// publish emits an event best-effort. A lost event is tolerable because
// clients can always poll authoritative state.
func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", "type", event.Type, "session", event.SessionID, "err", err)
	}
}

// publishLeaderboard recomputes and broadcasts the scoreboard.
func (s *Service) publishLeaderboard(ctx context.Context, sessionID string) {
	lb, err := s.Leaderboard(ctx, sessionID)
	if err != nil {
		s.log.Warn("leaderboard snapshot failed", "session", sessionID, "err", err)
		return
	}
	s.publish(ctx, domain.Event{Type: domain.EventLeaderboard, SessionID: sessionID, Leaderboard: &lb})
}

// Leaderboard returns the ordered scoreboard for a session: score
// descending, earlier activity first on ties, then name.
func (s *Service) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	participants, err := s.roster.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	byID := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi, pj := byID[entries[i].ParticipantID], byID[entries[j].ParticipantID]
		if !pi.LastActivity.Equal(pj.LastActivity) {
			return pi.LastActivity.Before(pj.LastActivity)
		}
		return entries[i].Name < entries[j].Name
	})

	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: s.now()}, nil
}
