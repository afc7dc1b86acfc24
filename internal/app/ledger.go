package app

import (
	"context"
	"strings"

	"livequiz-service/internal/domain"
	"github.com/google/uuid"
)

// Submission is a participant's answer to the live question.
type Submission struct {
	QuestionID     string
	Answer         string
	ResponseTimeMs int
}

// SubmitAnswer records a response and credits the participant's score.
// The (participant, question) pair accepts at most one response, which
// the store enforces atomically; a client retrying a request that
// already landed gets domain.ErrDuplicateSubmission, never a second row.
//
// Submissions are only accepted while the session is active and only
// for the question the current-question pointer names; anything else is
// a late or premature answer and is rejected.
func (s *Service) SubmitAnswer(ctx context.Context, participantID string, sub Submission) (domain.Response, error) {
	participant, err := s.roster.ParticipantByID(ctx, participantID)
	if err != nil {
		return domain.Response{}, err
	}

	session, err := s.sessions.SessionByID(ctx, participant.SessionID)
	if err != nil {
		return domain.Response{}, err
	}
	switch session.Status {
	case domain.StatusActive:
	case domain.StatusCompleted:
		return domain.Response{}, domain.ErrSessionEnded
	default:
		return domain.Response{}, domain.ErrSessionNotActive
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Response{}, err
	}
	question, found := questionByID(quiz, sub.QuestionID)
	if !found {
		return domain.Response{}, domain.ErrQuestionNotFound
	}
	if session.CurrentQuestion >= len(quiz.Questions) || quiz.Questions[session.CurrentQuestion].ID != question.ID {
		return domain.Response{}, domain.ErrQuestionNotLive
	}

	correct, points, review, err := grade(question, sub.Answer)
	if err != nil {
		return domain.Response{}, err
	}

	latency := sub.ResponseTimeMs
	if latency < 0 {
		latency = 0
	}
	response := &domain.Response{
		ID:             uuid.NewString(),
		ParticipantID:  participantID,
		QuestionID:     question.ID,
		Answer:         sub.Answer,
		Correct:        correct,
		Points:         points,
		RequiresReview: review,
		ResponseTimeMs: latency,
		SubmittedAt:    s.now(),
	}

	if _, err := s.responses.CreateResponse(ctx, response); err != nil {
		return domain.Response{}, err
	}

	s.publish(ctx, domain.Event{
		Type:      domain.EventResponseRecorded,
		SessionID: session.ID,
		Answer: &domain.AnswerNotice{
			ParticipantID: participantID,
			QuestionID:    question.ID,
			SubmittedAt:   response.SubmittedAt,
		},
	})
	s.publishLeaderboard(ctx, session.ID)
	return *response, nil
}

// Responses lists a participant's responses ordered by submission time.
func (s *Service) Responses(ctx context.Context, participantID string) ([]domain.Response, error) {
	if _, err := s.roster.ParticipantByID(ctx, participantID); err != nil {
		return nil, err
	}
	return s.responses.ResponsesByParticipant(ctx, participantID)
}

func questionByID(quiz domain.Quiz, id string) (domain.Question, bool) {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == id {
			return quiz.Questions[i], true
		}
	}
	return domain.Question{}, false
}

// grade scores a submitted answer. Choice and true/false questions are
// exact-match; short-answer and essay submissions score zero and are
// flagged for manual review.
func grade(question domain.Question, answer string) (correct bool, points int, review bool, err error) {
	switch question.Type {
	case domain.QuestionSingleChoice:
		valid := false
		for _, opt := range question.Options {
			if opt.ID == answer {
				valid = true
				break
			}
		}
		if !valid {
			return false, 0, false, domain.ErrOptionNotFound
		}
		correct = answer == question.Answer
	case domain.QuestionTrueFalse:
		norm := strings.ToLower(strings.TrimSpace(answer))
		if norm != "true" && norm != "false" {
			return false, 0, false, domain.ErrOptionNotFound
		}
		correct = norm == question.Answer
	default:
		return false, 0, true, nil
	}

	if correct {
		points = question.PointValue()
	}
	return correct, points, false, nil
}
