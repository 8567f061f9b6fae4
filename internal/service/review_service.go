package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/grading"
	"github.com/examly/examly-backend/internal/model"
)

var (
	ErrAttemptNotSubmitted    = errors.New("attempt has not been submitted yet")
	ErrReviewAlreadyRequested = errors.New("a review was already requested for this attempt")
	ErrNoReviewRequest        = errors.New("no review was requested for this attempt")
	ErrBadAppointmentDate     = errors.New("appointment date is not a valid timestamp")
	ErrBadReviewMessage       = errors.New("review message must be a string or null")
)

// ReviewStore is the attempt persistence surface the review workflow needs,
// implemented by repository.AttemptRepository.
type ReviewStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	MarkReviewRequested(ctx context.Context, id uuid.UUID, at time.Time, message string) (bool, error)
	SaveReviewResponse(ctx context.Context, a *model.ExamAttempt) error
	ApplyManualGrade(ctx context.Context, a *model.ExamAttempt) error
}

// ReviewService layers the review-request workflow and manual grading on top
// of submitted, already-graded attempts.
type ReviewService struct {
	attempts  ReviewStore
	questions QuestionStore
	clk       clock.Clock
	log       zerolog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(attempts ReviewStore, questions QuestionStore, clk clock.Clock, log zerolog.Logger) *ReviewService {
	return &ReviewService{
		attempts:  attempts,
		questions: questions,
		clk:       clk,
		log:       log.With().Str("component", "review_service").Logger(),
	}
}

// ReviewRequestInfo echoes the recorded request back to the student.
type ReviewRequestInfo struct {
	ReviewRequested   bool      `json:"review_requested"`
	ReviewRequestedAt time.Time `json:"review_requested_at"`
}

// RequestReview records the student's request for a manual review. A second
// request fails rather than overwriting the first.
func (s *ReviewService) RequestReview(ctx context.Context, attemptID, studentID uuid.UUID, message string) (*ReviewRequestInfo, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if !attempt.Submitted() {
		return nil, ErrAttemptNotSubmitted
	}

	now := s.clk.Now()
	first, err := s.attempts.MarkReviewRequested(ctx, attemptID, now, strings.TrimSpace(message))
	if err != nil {
		return nil, fmt.Errorf("mark review requested: %w", err)
	}
	if !first {
		return nil, ErrReviewAlreadyRequested
	}

	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Review requested")
	return &ReviewRequestInfo{ReviewRequested: true, ReviewRequestedAt: now}, nil
}

// ReviewResponseInfo echoes the stored response back to the responder.
type ReviewResponseInfo struct {
	ReviewAppointmentAt   *time.Time `json:"review_appointment_at"`
	ReviewResponseMessage string     `json:"review_response_message,omitempty"`
	ReviewRespondedAt     time.Time  `json:"review_responded_at"`
}

// RespondToReview records the instructor's reply. For both optional fields a
// literal JSON null clears the stored value, a string sets it, and an absent
// field leaves it unchanged. respondedAt/respondedBy are stamped on every
// accepted call.
func (s *ReviewService) RespondToReview(ctx context.Context, attemptID, responderID uuid.UUID, req model.ReviewResponseRequest) (*ReviewResponseInfo, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Submitted() {
		return nil, ErrAttemptNotSubmitted
	}
	if !attempt.ReviewRequested {
		return nil, ErrNoReviewRequest
	}

	if err := applyAppointmentField(attempt, req.AppointmentAt); err != nil {
		return nil, err
	}
	if err := applyMessageField(attempt, req.Message); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	attempt.ReviewRespondedAt = &now
	attempt.ReviewRespondedBy = &responderID

	if err := s.attempts.SaveReviewResponse(ctx, attempt); err != nil {
		return nil, fmt.Errorf("save review response: %w", err)
	}

	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Review responded")
	return &ReviewResponseInfo{
		ReviewAppointmentAt:   attempt.ReviewAppointmentAt,
		ReviewResponseMessage: attempt.ReviewResponseMessage,
		ReviewRespondedAt:     now,
	}, nil
}

var jsonNull = []byte("null")

func applyAppointmentField(attempt *model.ExamAttempt, raw json.RawMessage) error {
	if raw == nil {
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		attempt.ReviewAppointmentAt = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ErrBadAppointmentDate
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return ErrBadAppointmentDate
	}
	attempt.ReviewAppointmentAt = &at
	return nil
}

func applyMessageField(attempt *model.ExamAttempt, raw json.RawMessage) error {
	if raw == nil {
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		attempt.ReviewResponseMessage = ""
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ErrBadReviewMessage
	}
	attempt.ReviewResponseMessage = strings.TrimSpace(value)
	return nil
}

// GradeAttempt applies the reviewer's per-question point overrides and
// recomputes totals across the attempt's snapshot. Subjective questions take
// the override when present (clamped to [0, maxPoints]) and otherwise keep
// their stored value; objective questions keep the auto-computed score unless
// explicitly overridden. Grading resolves the review: needsReview is cleared
// and gradedAt/gradedBy stamped.
func (s *ReviewService) GradeAttempt(ctx context.Context, attemptID, graderID uuid.UUID, pointsByQuestion map[string]float64) (*grading.Summary, error) {
	attempt, err := s.getAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Submitted() {
		return nil, ErrAttemptNotSubmitted
	}

	docs, err := s.questions.GetByIDs(ctx, attempt.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	stored := make(map[uuid.UUID]model.AttemptAnswer, len(attempt.Answers))
	for _, a := range attempt.Answers {
		stored[a.QuestionID] = a
	}

	var (
		answers      = make([]model.AttemptAnswer, 0, len(attempt.QuestionIDs))
		totalPoints  float64
		totalAwarded float64
	)
	for _, qid := range attempt.QuestionIDs {
		question, ok := docs[qid]
		if !ok {
			continue
		}
		maxPoints := question.MaxPoints()
		totalPoints += maxPoints

		record, ok := stored[qid]
		if !ok {
			record = model.AttemptAnswer{QuestionID: qid}
		}
		record.MaxPoints = maxPoints
		if override, ok := pointsByQuestion[qid.String()]; ok {
			record.PointsAwarded = grading.ClampOverride(override, maxPoints)
		}
		totalAwarded += record.PointsAwarded
		answers = append(answers, record)
	}

	now := s.clk.Now()
	attempt.Answers = answers
	attempt.PointsAwarded = totalAwarded
	attempt.PointsTotal = totalPoints
	attempt.NeedsReview = false
	attempt.GradedAt = &now
	attempt.GradedBy = &graderID

	if err := s.attempts.ApplyManualGrade(ctx, attempt); err != nil {
		return nil, fmt.Errorf("apply manual grade: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("graded_by", graderID.String()).
		Float64("points_awarded", totalAwarded).
		Msg("Attempt graded")

	summary := grading.Summarize(totalAwarded, totalPoints, attempt.IsFinal())
	return &summary, nil
}

func (s *ReviewService) getAttempt(ctx context.Context, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}
