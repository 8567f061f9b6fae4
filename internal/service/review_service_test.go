package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/model"
)

type reviewFixture struct {
	svc       *ReviewService
	attempts  *memAttemptStore
	questions *memQuestionStore
	clk       *clock.FixedClock

	studentID uuid.UUID
	graderID  uuid.UUID
	attempt   *model.ExamAttempt
	mc        model.Question
	essay     model.Question
}

// newReviewFixture seeds a submitted attempt: one correct multiple-choice
// answer and one ungraded essay, pending review.
func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()

	now := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	f := &reviewFixture{
		attempts:  newMemAttemptStore(),
		questions: &memQuestionStore{},
		clk:       clock.Fixed(now),
		studentID: uuid.New(),
		graderID:  uuid.New(),
	}

	courseID := uuid.New()
	f.mc = f.questions.add(model.Question{
		CourseID: courseID, Type: model.QuestionTypeMultipleChoice,
		Content: "q1", Options: []string{"a", "b"},
		CorrectAnswer: mustJSON(t, "a"), Points: 2,
	})
	f.essay = f.questions.add(model.Question{
		CourseID: courseID, Type: model.QuestionTypeEssay,
		Content: "q2", Points: 3,
	})

	submittedAt := now.Add(-time.Hour)
	correct := true
	f.attempt = &model.ExamAttempt{
		ExamID:      uuid.New(),
		StudentID:   f.studentID,
		StartedAt:   submittedAt.Add(-30 * time.Minute),
		SubmittedAt: &submittedAt,
		QuestionIDs: []uuid.UUID{f.mc.ID, f.essay.ID},
		Answers: []model.AttemptAnswer{
			{QuestionID: f.mc.ID, Answer: mustJSON(t, "a"), IsCorrect: &correct, PointsAwarded: 2, MaxPoints: 2},
			{QuestionID: f.essay.ID, Answer: mustJSON(t, "some text"), PointsAwarded: 0, MaxPoints: 3},
		},
		PointsAwarded: 2,
		PointsTotal:   5,
		NeedsReview:   true,
	}
	_, err := f.attempts.Create(context.Background(), f.attempt)
	require.NoError(t, err)

	f.svc = NewReviewService(f.attempts, f.questions, f.clk, zerolog.Nop())
	return f
}

func TestRequestReviewIdempotency(t *testing.T) {
	f := newReviewFixture(t)

	info, err := f.svc.RequestReview(context.Background(), f.attempt.ID, f.studentID, "  please check question 2  ")
	require.NoError(t, err)
	assert.True(t, info.ReviewRequested)
	firstAt := info.ReviewRequestedAt

	stored, err := f.attempts.GetByID(context.Background(), f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, "please check question 2", stored.ReviewRequestMessage, "message is trimmed")

	f.clk.Advance(10 * time.Minute)
	_, err = f.svc.RequestReview(context.Background(), f.attempt.ID, f.studentID, "again")
	assert.ErrorIs(t, err, ErrReviewAlreadyRequested)

	stored, err = f.attempts.GetByID(context.Background(), f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, firstAt, *stored.ReviewRequestedAt, "first request timestamp is kept")
	assert.Equal(t, "please check question 2", stored.ReviewRequestMessage)
}

func TestRequestReviewGuards(t *testing.T) {
	f := newReviewFixture(t)

	t.Run("wrong owner", func(t *testing.T) {
		_, err := f.svc.RequestReview(context.Background(), f.attempt.ID, uuid.New(), "")
		assert.ErrorIs(t, err, ErrNotAttemptOwner)
	})

	t.Run("unknown attempt", func(t *testing.T) {
		_, err := f.svc.RequestReview(context.Background(), uuid.New(), f.studentID, "")
		assert.ErrorIs(t, err, ErrAttemptNotFound)
	})

	t.Run("not submitted", func(t *testing.T) {
		f.attempts.attempts[f.attempt.ID].SubmittedAt = nil
		_, err := f.svc.RequestReview(context.Background(), f.attempt.ID, f.studentID, "")
		assert.ErrorIs(t, err, ErrAttemptNotSubmitted)
	})
}

func TestRespondToReviewFieldSemantics(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.RequestReview(ctx, f.attempt.ID, f.studentID, "check the essay")
	require.NoError(t, err)

	appointment := "2026-03-12T14:00:00Z"
	info, err := f.svc.RespondToReview(ctx, f.attempt.ID, f.graderID, model.ReviewResponseRequest{
		AppointmentAt: mustJSON(t, appointment),
		Message:       mustJSON(t, "come to my office"),
	})
	require.NoError(t, err)
	require.NotNil(t, info.ReviewAppointmentAt)
	assert.Equal(t, appointment, info.ReviewAppointmentAt.Format(time.RFC3339))
	assert.Equal(t, "come to my office", info.ReviewResponseMessage)
	assert.Equal(t, f.clk.Now(), info.ReviewRespondedAt)

	t.Run("absent fields keep stored values", func(t *testing.T) {
		info, err := f.svc.RespondToReview(ctx, f.attempt.ID, f.graderID, model.ReviewResponseRequest{})
		require.NoError(t, err)
		require.NotNil(t, info.ReviewAppointmentAt)
		assert.Equal(t, "come to my office", info.ReviewResponseMessage)
	})

	t.Run("literal null clears", func(t *testing.T) {
		info, err := f.svc.RespondToReview(ctx, f.attempt.ID, f.graderID, model.ReviewResponseRequest{
			AppointmentAt: json.RawMessage("null"),
			Message:       json.RawMessage("null"),
		})
		require.NoError(t, err)
		assert.Nil(t, info.ReviewAppointmentAt)
		assert.Empty(t, info.ReviewResponseMessage)

		stored, err := f.attempts.GetByID(ctx, f.attempt.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.ReviewAppointmentAt)
		assert.Equal(t, f.graderID, *stored.ReviewRespondedBy)
	})

	t.Run("bad date rejected", func(t *testing.T) {
		_, err := f.svc.RespondToReview(ctx, f.attempt.ID, f.graderID, model.ReviewResponseRequest{
			AppointmentAt: mustJSON(t, "next tuesday"),
		})
		assert.ErrorIs(t, err, ErrBadAppointmentDate)
	})
}

func TestRespondToReviewRequiresRequest(t *testing.T) {
	f := newReviewFixture(t)
	_, err := f.svc.RespondToReview(context.Background(), f.attempt.ID, f.graderID, model.ReviewResponseRequest{})
	assert.ErrorIs(t, err, ErrNoReviewRequest)
}

func TestGradeAttemptOverrides(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	summary, err := f.svc.GradeAttempt(ctx, f.attempt.ID, f.graderID, map[string]float64{
		f.essay.ID.String(): 2.5,
	})
	require.NoError(t, err)

	// 2 (kept auto mc score) + 2.5 (essay override) out of 5.
	assert.Equal(t, 90.0, summary.ScorePercent)
	require.NotNil(t, summary.Grade)
	assert.Equal(t, "A", *summary.Grade)
	require.NotNil(t, summary.Passed)
	assert.True(t, *summary.Passed)

	stored, err := f.attempts.GetByID(ctx, f.attempt.ID)
	require.NoError(t, err)
	assert.False(t, stored.NeedsReview)
	assert.Equal(t, f.clk.Now(), *stored.GradedAt)
	assert.Equal(t, f.graderID, *stored.GradedBy)
	assert.Equal(t, 4.5, stored.PointsAwarded)
	assert.Equal(t, 5.0, stored.PointsTotal)
}

func TestGradeAttemptClampsOverrides(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	summary, err := f.svc.GradeAttempt(ctx, f.attempt.ID, f.graderID, map[string]float64{
		f.essay.ID.String(): 99,  // above max 3
		f.mc.ID.String():    -10, // below zero
	})
	require.NoError(t, err)

	stored, err := f.attempts.GetByID(ctx, f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.Answers[1].PointsAwarded, "clamped to max points")
	assert.Equal(t, 0.0, stored.Answers[0].PointsAwarded, "clamped to zero")
	assert.Equal(t, 3.0, stored.PointsAwarded)
	require.NotNil(t, summary.Passed)
	assert.True(t, *summary.Passed, "3/5 = 60 percent")
}

func TestGradeAttemptKeepsUnoverriddenScores(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	_, err := f.svc.GradeAttempt(ctx, f.attempt.ID, f.graderID, map[string]float64{})
	require.NoError(t, err)

	stored, err := f.attempts.GetByID(ctx, f.attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.Answers[0].PointsAwarded, "auto mc score kept")
	assert.Equal(t, 0.0, stored.Answers[1].PointsAwarded, "essay default kept")
	assert.False(t, stored.NeedsReview)
}

func TestGradeAttemptRequiresSubmission(t *testing.T) {
	f := newReviewFixture(t)
	f.attempts.attempts[f.attempt.ID].SubmittedAt = nil
	_, err := f.svc.GradeAttempt(context.Background(), f.attempt.ID, f.graderID, nil)
	assert.ErrorIs(t, err, ErrAttemptNotSubmitted)
}
