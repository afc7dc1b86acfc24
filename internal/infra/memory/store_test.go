package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/domain"
)

func newSession(id, code string, status domain.SessionStatus) *domain.Session {
	return &domain.Session{
		ID:        id,
		QuizID:    "quiz-1",
		HostID:    "host-a",
		Code:      code,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestCreateSessionRejectsLiveCodeReuse(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.CreateSession(ctx, newSession("s1", "ABC123", domain.StatusWaiting)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.CreateSession(ctx, newSession("s2", "ABC123", domain.StatusWaiting))
	if !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	// Completed sessions release their code.
	if _, ok, err := store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusCompleted, nil, nil); err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}
	if err := store.CreateSession(ctx, newSession("s3", "ABC123", domain.StatusWaiting)); err != nil {
		t.Fatalf("expected recycled code accepted, got %v", err)
	}
}

func TestSessionByCodePrefersLiveSession(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	old := newSession("s1", "ABC123", domain.StatusCompleted)
	old.CreatedAt = time.Now().Add(-time.Hour)
	if err := store.CreateSession(ctx, old); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := store.CreateSession(ctx, newSession("s2", "ABC123", domain.StatusActive)); err != nil {
		t.Fatalf("create live: %v", err)
	}

	found, err := store.SessionByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != "s2" {
		t.Fatalf("expected live session s2, got %s", found.ID)
	}

	if _, err := store.SessionByCode(ctx, "ZZZZZZ"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionStatusPrecondition(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newSession("s1", "ABC123", domain.StatusWaiting)); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	updated, ok, err := store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusActive, &now, nil)
	if err != nil || !ok {
		t.Fatalf("start: ok=%v err=%v", ok, err)
	}
	if updated.Status != domain.StatusActive || updated.StartedAt == nil {
		t.Fatalf("unexpected session after start: %+v", updated)
	}

	// Precondition no longer holds; row must stay untouched.
	_, ok, err = store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusActive, &now, nil)
	if err != nil || ok {
		t.Fatalf("expected precondition failure, ok=%v err=%v", ok, err)
	}

	if _, _, err := store.TransitionStatus(ctx, "ghost", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusActive, nil, nil); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartedAtSetOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newSession("s1", "ABC123", domain.StatusWaiting)); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Now().Add(-time.Minute)
	if _, ok, _ := store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusActive, &first, nil); !ok {
		t.Fatal("start failed")
	}
	second := time.Now()
	updated, ok, _ := store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusActive}, domain.StatusActive, &second, nil)
	if !ok {
		t.Fatal("transition failed")
	}
	if !updated.StartedAt.Equal(first) {
		t.Fatalf("started_at must be set exactly once, got %v want %v", updated.StartedAt, first)
	}
}

func TestAdvanceQuestionRequiresActiveAndForward(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newSession("s1", "ABC123", domain.StatusWaiting)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok, _ := store.AdvanceQuestion(ctx, "s1", 1); ok {
		t.Fatal("advance must fail while waiting")
	}

	now := time.Now()
	store.TransitionStatus(ctx, "s1", []domain.SessionStatus{domain.StatusWaiting}, domain.StatusActive, &now, nil)

	updated, ok, err := store.AdvanceQuestion(ctx, "s1", 1)
	if err != nil || !ok || updated.CurrentQuestion != 1 {
		t.Fatalf("advance: ok=%v err=%v session=%+v", ok, err, updated)
	}

	// A target that does not move the pointer forward loses.
	if _, ok, _ := store.AdvanceQuestion(ctx, "s1", 1); ok {
		t.Fatal("non-advancing target must fail")
	}
	if _, ok, _ := store.AdvanceQuestion(ctx, "s1", 0); ok {
		t.Fatal("backwards target must fail")
	}
}

func TestCreateParticipantDuplicateName(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	p := &domain.Participant{ID: "p1", SessionID: "s1", Name: "Ada", JoinedAt: time.Now()}
	if err := store.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.Participant{ID: "p2", SessionID: "s1", Name: " ADA ", JoinedAt: time.Now()}
	if err := store.CreateParticipant(ctx, dup); !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	elsewhere := &domain.Participant{ID: "p3", SessionID: "s2", Name: "Ada", JoinedAt: time.Now()}
	if err := store.CreateParticipant(ctx, elsewhere); err != nil {
		t.Fatalf("same name in another session must be fine: %v", err)
	}
}

func TestCreateResponseAtomicity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	p := &domain.Participant{ID: "p1", SessionID: "s1", Name: "Ada", JoinedAt: time.Now()}
	if err := store.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	updated, err := store.CreateResponse(ctx, &domain.Response{
		ID: "r1", ParticipantID: "p1", QuestionID: "q1", Answer: "o2",
		Correct: true, Points: 2, SubmittedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create response: %v", err)
	}
	if updated.Score != 2 {
		t.Fatalf("expected score 2, got %d", updated.Score)
	}

	_, err = store.CreateResponse(ctx, &domain.Response{
		ID: "r2", ParticipantID: "p1", QuestionID: "q1", Answer: "o1", SubmittedAt: time.Now(),
	})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}

	got, err := store.ParticipantByID(ctx, "p1")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if got.Score != 2 {
		t.Fatalf("duplicate must not change the score, got %d", got.Score)
	}

	if _, err := store.CreateResponse(ctx, &domain.Response{ID: "r3", ParticipantID: "ghost", QuestionID: "q1"}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}
