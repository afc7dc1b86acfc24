package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livequiz-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	liveCodeConstraint        = "sessions_live_code_key"
	participantNameConstraint = "participants_session_name_key"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID              string     `bun:"id,pk"`
	QuizID          string     `bun:"quiz_id,notnull"`
	HostID          string     `bun:"host_id,notnull"`
	Code            string     `bun:"code,notnull"`
	Status          string     `bun:"status,notnull"`
	CurrentQuestion int        `bun:"current_question_index,notnull"`
	StartedAt       *time.Time `bun:"started_at"`
	EndedAt         *time.Time `bun:"ended_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID           string          `bun:"id,pk"`
	SessionID    string          `bun:"session_id,notnull"`
	Name         string          `bun:"name,notnull"`
	Profile      json.RawMessage `bun:"profile,type:jsonb"`
	TotalScore   int             `bun:"total_score,notnull"`
	JoinedAt     time.Time       `bun:"joined_at,notnull"`
	LastActivity time.Time       `bun:"last_activity,notnull"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	ID             string    `bun:"id,pk"`
	ParticipantID  string    `bun:"participant_id,notnull"`
	QuestionID     string    `bun:"question_id,notnull"`
	Answer         string    `bun:"answer,notnull"`
	Correct        bool      `bun:"is_correct,notnull"`
	Points         int       `bun:"points_awarded,notnull"`
	RequiresReview bool      `bun:"requires_review,notnull"`
	ResponseTimeMs int       `bun:"response_time_ms,notnull"`
	SubmittedAt    time.Time `bun:"submitted_at,notnull"`
}

// Store implements the app store interfaces on Postgres. Uniqueness and
// conditional-update guarantees are carried by the schema: a partial
// unique index on live join codes, a unique (session, lower(name))
// index, a unique (participant, question) constraint, and single-
// statement UPDATEs whose WHERE clause re-checks the precondition.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	row := sessionToRow(session)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if uniqueViolation(err, liveCodeConstraint) {
			return domain.ErrCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (domain.Session, error) {
	row := sessionRow{}
	err := s.db.NewSelect().Model(&row).Where("s.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return rowToSession(row), nil
}

func (s *Store) SessionByCode(ctx context.Context, code string) (domain.Session, error) {
	row := sessionRow{}
	err := s.db.NewSelect().Model(&row).
		Where("s.code = ?", code).
		Where("s.status <> ?", string(domain.StatusCompleted)).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return rowToSession(row), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("select session by code: %w", err)
	}

	// Recycled codes: fall back to the most recent completed run so the
	// caller can report "ended" instead of "unknown code".
	err = s.db.NewSelect().Model(&row).
		Where("s.code = ?", code).
		OrderExpr("s.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session by code: %w", err)
	}
	return rowToSession(row), nil
}

func (s *Store) SessionsByHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	rows := []sessionRow{}
	err := s.db.NewSelect().Model(&rows).
		Where("s.host_id = ?", hostID).
		OrderExpr("s.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select sessions by host: %w", err)
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, rowToSession(row))
	}
	return sessions, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, from []domain.SessionStatus, to domain.SessionStatus, startedAt, endedAt *time.Time) (domain.Session, bool, error) {
	statuses := make([]string, len(from))
	for i, status := range from {
		statuses[i] = string(status)
	}

	row := sessionRow{}
	q := s.db.NewUpdate().Model(&row).
		Set("status = ?", string(to)).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(statuses)).
		Returning("*")
	if startedAt != nil {
		q = q.Set("started_at = COALESCE(started_at, ?)", *startedAt)
	}
	if endedAt != nil {
		q = q.Set("ended_at = COALESCE(ended_at, ?)", *endedAt)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("transition session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, false, err
	}
	if affected == 0 {
		if _, err := s.SessionByID(ctx, id); err != nil {
			return domain.Session{}, false, err
		}
		return domain.Session{}, false, nil
	}
	return rowToSession(row), true, nil
}

func (s *Store) AdvanceQuestion(ctx context.Context, id string, target int) (domain.Session, bool, error) {
	row := sessionRow{}
	res, err := s.db.NewUpdate().Model(&row).
		Set("current_question_index = ?", target).
		Where("id = ?", id).
		Where("status = ?", string(domain.StatusActive)).
		Where("current_question_index < ?", target).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("advance question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, false, err
	}
	if affected == 0 {
		if _, err := s.SessionByID(ctx, id); err != nil {
			return domain.Session{}, false, err
		}
		return domain.Session{}, false, nil
	}
	return rowToSession(row), true, nil
}

func (s *Store) CreateParticipant(ctx context.Context, participant *domain.Participant) error {
	row, err := participantToRow(participant)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if uniqueViolation(err, participantNameConstraint) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) ParticipantByID(ctx context.Context, id string) (domain.Participant, error) {
	row := participantRow{}
	err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return rowToParticipant(row)
}

func (s *Store) ParticipantsBySession(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows := []participantRow{}
	err := s.db.NewSelect().Model(&rows).
		Where("p.session_id = ?", sessionID).
		OrderExpr("p.joined_at ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		participant, err := rowToParticipant(row)
		if err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	return participants, nil
}

func (s *Store) TouchActivity(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*participantRow)(nil)).
		Set("last_activity = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

// CreateResponse inserts the response and credits the score in one
// transaction. The unique (participant, question) constraint makes the
// insert the serialization point for duplicate submissions; the score
// update is a relative increment, so concurrent submissions from other
// participants never read-modify-write each other's totals.
func (s *Store) CreateResponse(ctx context.Context, response *domain.Response) (domain.Participant, error) {
	var updated participantRow
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := responseToRow(response)
		res, err := tx.NewInsert().Model(&row).
			On("CONFLICT (participant_id, question_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert response: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrDuplicateSubmission
		}

		res, err = tx.NewUpdate().Model(&updated).
			Set("total_score = total_score + ?", response.Points).
			Set("last_activity = ?", response.SubmittedAt).
			Where("id = ?", response.ParticipantID).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("credit score: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrParticipantNotFound
		}
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return rowToParticipant(updated)
}

func (s *Store) ResponsesByParticipant(ctx context.Context, participantID string) ([]domain.Response, error) {
	rows := []responseRow{}
	err := s.db.NewSelect().Model(&rows).
		Where("r.participant_id = ?", participantID).
		OrderExpr("r.submitted_at ASC, r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select responses: %w", err)
	}
	responses := make([]domain.Response, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, rowToResponse(row))
	}
	return responses, nil
}

func sessionToRow(session *domain.Session) sessionRow {
	return sessionRow{
		ID:              session.ID,
		QuizID:          session.QuizID,
		HostID:          session.HostID,
		Code:            session.Code,
		Status:          string(session.Status),
		CurrentQuestion: session.CurrentQuestion,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		CreatedAt:       session.CreatedAt,
	}
}

func rowToSession(row sessionRow) domain.Session {
	return domain.Session{
		ID:              row.ID,
		QuizID:          row.QuizID,
		HostID:          row.HostID,
		Code:            row.Code,
		Status:          domain.SessionStatus(row.Status),
		CurrentQuestion: row.CurrentQuestion,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		CreatedAt:       row.CreatedAt,
	}
}

func participantToRow(participant *domain.Participant) (participantRow, error) {
	profile := json.RawMessage("{}")
	if participant.Profile != nil {
		raw, err := json.Marshal(participant.Profile)
		if err != nil {
			return participantRow{}, fmt.Errorf("marshal profile: %w", err)
		}
		profile = raw
	}
	return participantRow{
		ID:           participant.ID,
		SessionID:    participant.SessionID,
		Name:         participant.Name,
		Profile:      profile,
		TotalScore:   participant.Score,
		JoinedAt:     participant.JoinedAt,
		LastActivity: participant.LastActivity,
	}, nil
}

func rowToParticipant(row participantRow) (domain.Participant, error) {
	var profile map[string]any
	if len(row.Profile) > 0 {
		if err := json.Unmarshal(row.Profile, &profile); err != nil {
			return domain.Participant{}, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	return domain.Participant{
		ID:           row.ID,
		SessionID:    row.SessionID,
		Name:         row.Name,
		Profile:      profile,
		Score:        row.TotalScore,
		Status:       domain.PresenceConnected,
		JoinedAt:     row.JoinedAt,
		LastActivity: row.LastActivity,
	}, nil
}

func responseToRow(response *domain.Response) responseRow {
	return responseRow{
		ID:             response.ID,
		ParticipantID:  response.ParticipantID,
		QuestionID:     response.QuestionID,
		Answer:         response.Answer,
		Correct:        response.Correct,
		Points:         response.Points,
		RequiresReview: response.RequiresReview,
		ResponseTimeMs: response.ResponseTimeMs,
		SubmittedAt:    response.SubmittedAt,
	}
}

func rowToResponse(row responseRow) domain.Response {
	return domain.Response{
		ID:             row.ID,
		ParticipantID:  row.ParticipantID,
		QuestionID:     row.QuestionID,
		Answer:         row.Answer,
		Correct:        row.Correct,
		Points:         row.Points,
		RequiresReview: row.RequiresReview,
		ResponseTimeMs: row.ResponseTimeMs,
		SubmittedAt:    row.SubmittedAt,
	}
}

// uniqueViolation reports whether err is a Postgres unique violation on
// the named constraint (or any unique violation when name is empty).
func uniqueViolation(err error, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Field('C') != "23505" {
		return false
	}
	return constraint == "" || pgErr.Field('n') == constraint
}
