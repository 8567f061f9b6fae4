package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/model"
)

type attemptFixture struct {
	svc       *AttemptService
	attempts  *memAttemptStore
	exams     *memExamStore
	questions *memQuestionStore
	clk       *clock.FixedClock
	rdb       *redis.Client

	courseID  uuid.UUID
	studentID uuid.UUID
	exam      *model.Exam
	mc1       model.Question
	mc2       model.Question
	tf1       model.Question
	essay1    model.Question
}

// newAttemptFixture seeds the end-to-end scenario: a course with two
// multiple-choice questions, one tf, and one essay, and a published
// manual-mode exam over all four that opened a minute ago.
func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC)
	clk := clock.Fixed(now)

	f := &attemptFixture{
		attempts:  newMemAttemptStore(),
		questions: &memQuestionStore{},
		clk:       clk,
		rdb:       rdb,
		courseID:  uuid.New(),
		studentID: uuid.New(),
	}

	f.mc1 = f.questions.add(model.Question{
		CourseID: f.courseID, Type: model.QuestionTypeMultipleChoice,
		Content: "http create verb", Options: []string{"GET", "POST"},
		CorrectAnswer: mustJSON(t, "POST"), Points: 1,
	})
	f.mc2 = f.questions.add(model.Question{
		CourseID: f.courseID, Type: model.QuestionTypeMultipleChoice,
		Content: "default http port", Options: []string{"80", "443"},
		CorrectAnswer: mustJSON(t, "80"), Points: 1,
	})
	f.tf1 = f.questions.add(model.Question{
		CourseID: f.courseID, Type: model.QuestionTypeTrueFalse,
		Content: "tcp is reliable", CorrectAnswer: mustJSON(t, true), Points: 1,
	})
	f.essay1 = f.questions.add(model.Question{
		CourseID: f.courseID, Type: model.QuestionTypeEssay,
		Content: "explain dns resolution", Points: 1,
	})

	f.exam = &model.Exam{
		ID:              uuid.New(),
		Title:           "Networking midterm",
		Date:            now.Add(-time.Minute),
		DurationMinutes: 60,
		CourseID:        &f.courseID,
		SelectionMode:   model.SelectionModeManual,
		QuestionIDs:     []uuid.UUID{f.mc1.ID, f.mc2.ID, f.tf1.ID, f.essay1.ID},
		QuestionCount:   4,
		Published:       true,
	}
	f.exams = newMemExamStore(f.exam)

	selection := NewSelectionService(f.questions)
	f.svc = NewAttemptService(f.attempts, f.exams, f.questions, selection, rdb, clk, zerolog.Nop())
	return f
}

func (f *attemptFixture) start(t *testing.T) *StartAttemptResult {
	t.Helper()
	res, err := f.svc.StartAttempt(context.Background(), f.exam.ID, f.studentID)
	require.NoError(t, err)
	return res
}

// draftPatches is the scenario's autosave payload: both objective answers,
// one of them wrong, plus an essay text.
func (f *attemptFixture) draftPatches(t *testing.T) []model.AnswerPatch {
	t.Helper()
	return []model.AnswerPatch{
		{QuestionID: f.mc1.ID, Answer: mustJSON(t, "POST")},
		{QuestionID: f.mc2.ID, Answer: mustJSON(t, "443")},
		{QuestionID: f.tf1.ID, Answer: mustJSON(t, true)},
		{QuestionID: f.essay1.ID, Answer: mustJSON(t, "recursive resolvers ask the root")},
	}
}

func TestStartAttemptCreatesSnapshot(t *testing.T) {
	f := newAttemptFixture(t)

	res := f.start(t)
	assert.True(t, res.Active)
	assert.False(t, res.Expired)
	require.Len(t, res.Questions, 4)
	assert.Equal(t, f.mc1.ID, res.Questions[0].ID)
	assert.Equal(t, f.essay1.ID, res.Questions[3].ID)

	require.NotNil(t, res.Attempt.ExpiresAt)
	assert.Equal(t, f.clk.Now().Add(60*time.Minute), *res.Attempt.ExpiresAt)

	assert.Equal(t, []string{"GET", "POST"}, res.Questions[0].Options)

	again := f.start(t)
	assert.Equal(t, res.Attempt.ID, again.Attempt.ID, "second start resumes the same attempt")
}

func TestStartAttemptUnavailable(t *testing.T) {
	f := newAttemptFixture(t)

	t.Run("unpublished", func(t *testing.T) {
		f.exam.Published = false
		_, err := f.svc.StartAttempt(context.Background(), f.exam.ID, f.studentID)
		assert.ErrorIs(t, err, ErrExamNotAvailable)
		f.exam.Published = true
	})

	t.Run("window closed", func(t *testing.T) {
		f.clk.Set(f.exam.EndsAt().Add(time.Second))
		_, err := f.svc.StartAttempt(context.Background(), f.exam.ID, f.studentID)
		assert.ErrorIs(t, err, ErrExamNotAvailable)
	})

	t.Run("unknown exam", func(t *testing.T) {
		_, err := f.svc.StartAttempt(context.Background(), uuid.New(), f.studentID)
		assert.ErrorIs(t, err, ErrExamNotFound)
	})
}

func TestStartAttemptPerStudentRandom(t *testing.T) {
	f := newAttemptFixture(t)
	f.exam.SelectionMode = model.SelectionModeRandom
	f.exam.QuestionIDs = nil
	f.exam.QuestionCount = 3
	f.exam.RandomConfig = &model.RandomConfig{MCCount: 2, TFCount: 1, PerStudent: true}

	res := f.start(t)
	assert.Len(t, res.Attempt.QuestionIDs, 3)
	assert.Len(t, res.Questions, 3)

	// Per-student selection must not freeze a shared list onto the exam.
	exam, err := f.exams.GetByID(context.Background(), f.exam.ID)
	require.NoError(t, err)
	assert.Empty(t, exam.QuestionIDs)
}

func TestStartAttemptLazyPopulatesSharedList(t *testing.T) {
	f := newAttemptFixture(t)
	f.exam.QuestionIDs = nil
	f.exam.QuestionCount = 3

	res := f.start(t)
	assert.Len(t, res.Attempt.QuestionIDs, 3)

	exam, err := f.exams.GetByID(context.Background(), f.exam.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Attempt.QuestionIDs, exam.QuestionIDs, "drawn list is frozen onto the exam")
}

func TestAutosaveIdempotent(t *testing.T) {
	f := newAttemptFixture(t)
	res := f.start(t)

	patch := []model.AnswerPatch{{QuestionID: f.mc1.ID, Answer: mustJSON(t, "POST")}}
	draft, err := f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID, patch)
	require.NoError(t, err)
	require.Len(t, draft, 1)

	draft, err = f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID, patch)
	require.NoError(t, err)
	require.Len(t, draft, 1)
	assert.JSONEq(t, `"POST"`, string(draft[f.mc1.ID]))

	// Last write per question wins.
	draft, err = f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID,
		[]model.AnswerPatch{{QuestionID: f.mc1.ID, Answer: mustJSON(t, "GET")}})
	require.NoError(t, err)
	assert.JSONEq(t, `"GET"`, string(draft[f.mc1.ID]))
}

func TestAutosaveGuards(t *testing.T) {
	f := newAttemptFixture(t)
	res := f.start(t)

	t.Run("foreign question", func(t *testing.T) {
		_, err := f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID,
			[]model.AnswerPatch{{QuestionID: uuid.New(), Answer: mustJSON(t, "x")}})
		assert.ErrorIs(t, err, ErrQuestionNotInAttempt)
	})

	t.Run("wrong owner", func(t *testing.T) {
		_, err := f.svc.Autosave(context.Background(), res.Attempt.ID, uuid.New(), f.draftPatches(t))
		assert.ErrorIs(t, err, ErrNotAttemptOwner)
	})

	t.Run("after expiry", func(t *testing.T) {
		f.clk.Advance(61 * time.Minute)
		_, err := f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID, f.draftPatches(t))
		assert.ErrorIs(t, err, ErrAttemptExpired)
	})
}

func TestSubmitFallsBackToDraft(t *testing.T) {
	f := newAttemptFixture(t)
	res := f.start(t)

	_, err := f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID, f.draftPatches(t))
	require.NoError(t, err)

	result, err := f.svc.Submit(context.Background(), res.Attempt.ID, f.studentID, nil)
	require.NoError(t, err)

	// mc1 and tf1 correct, mc2 wrong, essay pending review.
	assert.Equal(t, 2.0, result.PointsAwarded)
	assert.Equal(t, 4.0, result.PointsTotal)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, 50.0, result.ScorePercent)
	assert.Nil(t, result.Grade, "provisional until manually graded")
	assert.Nil(t, result.Passed)

	stored, err := f.attempts.GetByID(context.Background(), res.Attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubmittedAt)
	require.Len(t, stored.Answers, 4)
	assert.Equal(t, f.mc1.ID, stored.Answers[0].QuestionID)
	require.NotNil(t, stored.Answers[0].IsCorrect)
	assert.True(t, *stored.Answers[0].IsCorrect)
	require.NotNil(t, stored.Answers[1].IsCorrect)
	assert.False(t, *stored.Answers[1].IsCorrect)
	assert.Nil(t, stored.Answers[3].IsCorrect, "essay is never auto-graded")

	// Both draft copies are cleared.
	drafts, err := f.attempts.ListDraftAnswers(context.Background(), res.Attempt.ID)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	_, err = f.svc.Submit(context.Background(), res.Attempt.ID, f.studentID, nil)
	assert.ErrorIs(t, err, ErrAttemptSubmitted)

	_, err = f.svc.StartAttempt(context.Background(), f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, ErrAttemptSubmitted)
}

func TestSubmitWithExplicitAnswers(t *testing.T) {
	f := newAttemptFixture(t)
	res := f.start(t)

	result, err := f.svc.Submit(context.Background(), res.Attempt.ID, f.studentID,
		[]model.AnswerPatch{
			{QuestionID: f.mc1.ID, Answer: mustJSON(t, "POST")},
			{QuestionID: f.mc2.ID, Answer: mustJSON(t, "80")},
			{QuestionID: f.tf1.ID, Answer: mustJSON(t, true)},
		})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.PointsAwarded)
	assert.True(t, result.NeedsReview, "unanswered essay still needs review")
}

func TestGetActiveAttempt(t *testing.T) {
	f := newAttemptFixture(t)

	status, err := f.svc.GetActiveAttempt(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.False(t, status.Active)

	res := f.start(t)
	status, err = f.svc.GetActiveAttempt(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, res.Attempt.ID, *status.AttemptID)
	assert.Equal(t, res.Attempt.StartedAt, *status.StartedAt)
	assert.Equal(t, *res.Attempt.ExpiresAt, *status.ExpiresAt)
}

func TestExpiryAutoSubmitOnRead(t *testing.T) {
	f := newAttemptFixture(t)
	res := f.start(t)

	_, err := f.svc.Autosave(context.Background(), res.Attempt.ID, f.studentID,
		[]model.AnswerPatch{{QuestionID: f.mc1.ID, Answer: mustJSON(t, "POST")}})
	require.NoError(t, err)

	f.clk.Advance(61 * time.Minute)

	status, err := f.svc.GetActiveAttempt(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.True(t, status.Expired)
	assert.Equal(t, res.Attempt.ID, *status.AttemptID)

	stored, err := f.attempts.GetByID(context.Background(), res.Attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubmittedAt, "expired attempt was auto-submitted")
	assert.Equal(t, 1.0, stored.PointsAwarded, "only the autosaved answer counted")
	assert.Equal(t, 4.0, stored.PointsTotal)
}

func TestExpiryAutoSubmitOnStart(t *testing.T) {
	f := newAttemptFixture(t)
	now := f.clk.Now()
	f.exam.Date = now.Add(-40 * time.Minute)

	// An attempt whose recorded deadline predates the exam window's end:
	// the duration was extended after this student had already started.
	expiredAt := now.Add(-5 * time.Minute)
	attempt := &model.ExamAttempt{
		ExamID:      f.exam.ID,
		StudentID:   f.studentID,
		StartedAt:   now.Add(-30 * time.Minute),
		ExpiresAt:   &expiredAt,
		QuestionIDs: f.exam.QuestionIDs,
	}
	_, err := f.attempts.Create(context.Background(), attempt)
	require.NoError(t, err)
	require.NoError(t, f.attempts.UpsertDraftAnswers(context.Background(), attempt.ID,
		[]model.AnswerPatch{{QuestionID: f.tf1.ID, Answer: mustJSON(t, true)}}))

	res, err := f.svc.StartAttempt(context.Background(), f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.True(t, res.Expired)
	assert.True(t, res.AutoSubmitted)
	assert.Empty(t, res.Questions, "no question content after expiry")

	stored, err := f.attempts.GetByID(context.Background(), attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SubmittedAt)
	assert.Equal(t, 1.0, stored.PointsAwarded, "durable draft fallback was graded")
}

func TestExpiryBackfill(t *testing.T) {
	f := newAttemptFixture(t)
	now := f.clk.Now()

	// Legacy attempt persisted before deadlines were recorded.
	attempt := &model.ExamAttempt{
		ExamID:      f.exam.ID,
		StudentID:   f.studentID,
		StartedAt:   now.Add(-time.Minute),
		QuestionIDs: f.exam.QuestionIDs,
	}
	_, err := f.attempts.Create(context.Background(), attempt)
	require.NoError(t, err)

	status, err := f.svc.GetActiveAttempt(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.True(t, status.Active)
	require.NotNil(t, status.ExpiresAt)
	assert.Equal(t, attempt.StartedAt.Add(60*time.Minute), *status.ExpiresAt)
}

func TestSaveImageAnswer(t *testing.T) {
	f := newAttemptFixture(t)
	imgQ := f.questions.add(model.Question{
		CourseID: f.courseID, Type: model.QuestionTypeImageUpload,
		Content: "draw the handshake", Points: 2,
	})
	f.exam.QuestionIDs = append(f.exam.QuestionIDs, imgQ.ID)
	f.exam.QuestionCount = 5
	res := f.start(t)

	img := model.ImageAnswer{
		Kind: "image", Path: "/uploads/abc.png", OriginalName: "handshake.png",
		Mimetype: "image/png", Size: 2048, UploadedAt: f.clk.Now(),
	}

	t.Run("wrong question type", func(t *testing.T) {
		_, err := f.svc.SaveImageAnswer(context.Background(), res.Attempt.ID, f.studentID, f.essay1.ID, img)
		assert.ErrorIs(t, err, ErrNotImageQuestion)
	})

	t.Run("question outside snapshot", func(t *testing.T) {
		_, err := f.svc.SaveImageAnswer(context.Background(), res.Attempt.ID, f.studentID, uuid.New(), img)
		assert.ErrorIs(t, err, ErrQuestionNotInAttempt)
	})

	t.Run("stores the payload as the draft answer", func(t *testing.T) {
		upload, err := f.svc.SaveImageAnswer(context.Background(), res.Attempt.ID, f.studentID, imgQ.ID, img)
		require.NoError(t, err)
		assert.Equal(t, imgQ.ID, upload.Question.ID)
		assert.Equal(t, img, upload.Answer)

		draft, err := f.svc.loadDraft(context.Background(), res.Attempt.ID)
		require.NoError(t, err)
		assert.JSONEq(t, string(mustJSON(t, img)), string(draft[imgQ.ID]))
	})
}
