package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/grading"
	"github.com/examly/examly-backend/internal/model"
)

var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamNotAvailable     = errors.New("exam is not currently available")
	ErrNoQuestions          = errors.New("exam has no questions assigned")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrNotAttemptOwner      = errors.New("attempt belongs to another student")
	ErrAttemptSubmitted     = errors.New("attempt is already submitted")
	ErrAttemptExpired       = errors.New("attempt deadline has passed")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotInAttempt = errors.New("question is not part of this attempt")
	ErrNotImageQuestion     = errors.New("question does not accept an image answer")
)

// AttemptStore is the attempt persistence surface the lifecycle manager
// needs, implemented by repository.AttemptRepository.
type AttemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamAttempt, error)
	FindLatestUnsubmittedByStudent(ctx context.Context, studentID uuid.UUID) (*model.ExamAttempt, error)
	SetExpiresAt(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Finalize(ctx context.Context, a *model.ExamAttempt) (bool, error)
	UpsertDraftAnswers(ctx context.Context, attemptID uuid.UUID, patches []model.AnswerPatch) error
	ListDraftAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error)
	DeleteDraftAnswers(ctx context.Context, attemptID uuid.UUID) error
}

// ExamStore is the exam persistence surface the lifecycle manager needs.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	SetQuestionIDs(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) error
}

// QuestionStore resolves question documents for attempt snapshots.
type QuestionStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error)
}

// AttemptService owns the attempt state machine: creation, expiry, autosave,
// and the transition to submitted. Draft answers live in a Redis hash per
// attempt for fast reads; every write is also queued for the write-behind
// worker so Postgres stays the durable fallback.
type AttemptService struct {
	attempts  AttemptStore
	exams     ExamStore
	questions QuestionStore
	selection *SelectionService
	rdb       *redis.Client
	clk       clock.Clock
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	exams ExamStore,
	questions QuestionStore,
	selection *SelectionService,
	rdb *redis.Client,
	clk clock.Clock,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		selection: selection,
		rdb:       rdb,
		clk:       clk,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartAttemptResult is the outcome of a start call. When the attempt turned
// out to be past its deadline it is auto-submitted and reported inactive, and
// Questions is left empty.
type StartAttemptResult struct {
	Attempt       *model.ExamAttempt         `json:"attempt"`
	Exam          *model.Exam                `json:"exam"`
	Questions     []model.QuestionForStudent `json:"questions,omitempty"`
	Active        bool                       `json:"active"`
	Expired       bool                       `json:"expired"`
	AutoSubmitted bool                       `json:"auto_submitted"`
}

// StartAttempt creates the student's attempt for the exam, or resumes the
// existing one. Exactly one attempt ever exists per (exam, student) pair; a
// concurrent start loses the insert race and resumes the winner's row.
func (s *AttemptService) StartAttempt(ctx context.Context, examID, studentID uuid.UUID) (*StartAttemptResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	now := s.clk.Now()
	if !exam.AvailableAt(now) {
		return nil, ErrExamNotAvailable
	}

	attempt, err := s.attempts.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	if attempt == nil {
		snapshot, err := s.resolveSnapshot(ctx, exam)
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(exam.Duration())
		attempt = &model.ExamAttempt{
			ExamID:      examID,
			StudentID:   studentID,
			StartedAt:   now,
			ExpiresAt:   &expiresAt,
			QuestionIDs: snapshot,
		}
		created, err := s.attempts.Create(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		if created {
			s.log.Info().
				Str("exam_id", examID.String()).
				Str("student_id", studentID.String()).
				Msg("Attempt started")
		}
	}

	if attempt.Submitted() {
		return nil, ErrAttemptSubmitted
	}

	if err := s.backfillExpiry(ctx, attempt, exam); err != nil {
		return nil, err
	}

	if attempt.ExpiredAt(now) {
		s.finalizeExpired(ctx, attempt)
		return &StartAttemptResult{
			Attempt:       attempt,
			Exam:          exam,
			Active:        false,
			Expired:       true,
			AutoSubmitted: true,
		}, nil
	}

	questions, err := s.resolveQuestions(ctx, attempt.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return &StartAttemptResult{
		Attempt:   attempt,
		Exam:      exam,
		Questions: questions,
		Active:    true,
	}, nil
}

// resolveSnapshot produces the ordered question-id list frozen into a new
// attempt. Random mode with per-student randomization draws a fresh list per
// attempt; every other mode shares the exam's fixed list, lazily populating
// it from the course pool the first time anyone starts.
func (s *AttemptService) resolveSnapshot(ctx context.Context, exam *model.Exam) ([]uuid.UUID, error) {
	if exam.SelectionMode == model.SelectionModeRandom && exam.RandomConfig != nil && exam.RandomConfig.PerStudent {
		return s.selection.Select(ctx, exam)
	}

	if len(exam.QuestionIDs) > 0 {
		return exam.QuestionIDs, nil
	}

	var (
		ids []uuid.UUID
		err error
	)
	switch {
	case exam.SelectionMode == model.SelectionModeRandom:
		ids, err = s.selection.Select(ctx, exam)
	case exam.CourseID != nil && exam.QuestionCount > 0:
		ids, err = s.selection.Draw(ctx, *exam.CourseID, exam.QuestionCount)
	default:
		return nil, ErrNoQuestions
	}
	if err != nil {
		return nil, err
	}

	if err := s.exams.SetQuestionIDs(ctx, exam.ID, ids); err != nil {
		return nil, fmt.Errorf("persist exam question list: %w", err)
	}
	exam.QuestionIDs = ids
	return ids, nil
}

// ActiveAttemptStatus reports whether the student currently has a live
// attempt, and its timing fields when they do.
type ActiveAttemptStatus struct {
	Active    bool       `json:"active"`
	Expired   bool       `json:"expired,omitempty"`
	ExamID    *uuid.UUID `json:"exam_id,omitempty"`
	AttemptID *uuid.UUID `json:"attempt_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// GetActiveAttempt reads the student's most recent unsubmitted attempt. This
// read can write: it backfills a missing deadline and finalizes the attempt
// when the deadline has passed, so callers must tolerate side effects.
func (s *AttemptService) GetActiveAttempt(ctx context.Context, studentID uuid.UUID) (*ActiveAttemptStatus, error) {
	attempt, err := s.attempts.FindLatestUnsubmittedByStudent(ctx, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ActiveAttemptStatus{Active: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}

	if err := s.backfillExpiry(ctx, attempt, nil); err != nil {
		return nil, err
	}

	if attempt.ExpiredAt(s.clk.Now()) {
		s.finalizeExpired(ctx, attempt)
		return &ActiveAttemptStatus{
			Active:    false,
			Expired:   true,
			ExamID:    &attempt.ExamID,
			AttemptID: &attempt.ID,
		}, nil
	}

	return &ActiveAttemptStatus{
		Active:    true,
		ExamID:    &attempt.ExamID,
		AttemptID: &attempt.ID,
		StartedAt: &attempt.StartedAt,
		ExpiresAt: attempt.ExpiresAt,
	}, nil
}

// backfillExpiry fills in the deadline on attempts created before deadlines
// were recorded. It never moves an existing deadline, so later exam config
// changes cannot retroactively extend or shorten a running attempt. The exam
// may be passed in when the caller already has it.
func (s *AttemptService) backfillExpiry(ctx context.Context, attempt *model.ExamAttempt, exam *model.Exam) error {
	if attempt.ExpiresAt != nil {
		return nil
	}
	if exam == nil {
		var err error
		exam, err = s.exams.GetByID(ctx, attempt.ExamID)
		if err != nil {
			return fmt.Errorf("get exam for expiry backfill: %w", err)
		}
	}
	expiresAt := attempt.StartedAt.Add(exam.Duration())
	if err := s.attempts.SetExpiresAt(ctx, attempt.ID, expiresAt); err != nil {
		return fmt.Errorf("backfill expires_at: %w", err)
	}
	attempt.ExpiresAt = &expiresAt
	return nil
}

// finalizeExpired auto-submits an overdue attempt using whatever draft
// answers exist. Failures are logged and swallowed: a read must not fail
// merely because best-effort cleanup did.
func (s *AttemptService) finalizeExpired(ctx context.Context, attempt *model.ExamAttempt) {
	drafts, err := s.loadDraft(ctx, attempt.ID)
	if err != nil {
		s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Load draft for expiry finalize failed")
		drafts = map[uuid.UUID]json.RawMessage{}
	}
	if err := s.finalize(ctx, attempt, drafts); err != nil && !errors.Is(err, ErrAttemptSubmitted) {
		s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Expiry auto-submit failed")
	}
}

// Autosave merges the patches into the attempt's draft, last write per
// question wins. Re-sending the same patch set converges to the same stored
// draft. Returns the merged draft keyed by question id.
func (s *AttemptService) Autosave(ctx context.Context, attemptID, studentID uuid.UUID, patches []model.AnswerPatch) (map[uuid.UUID]json.RawMessage, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Submitted() {
		return nil, ErrAttemptSubmitted
	}
	if attempt.ExpiredAt(s.clk.Now()) {
		return nil, ErrAttemptExpired
	}

	inSnapshot := make(map[uuid.UUID]bool, len(attempt.QuestionIDs))
	for _, id := range attempt.QuestionIDs {
		inSnapshot[id] = true
	}
	for _, p := range patches {
		if !inSnapshot[p.QuestionID] {
			return nil, ErrQuestionNotInAttempt
		}
	}

	if err := s.writeDraft(ctx, attemptID, patches); err != nil {
		return nil, err
	}
	return s.loadDraft(ctx, attemptID)
}

// writeDraft stores the patches in the attempt's Redis hash and queues each
// one for the write-behind worker.
func (s *AttemptService) writeDraft(ctx context.Context, attemptID uuid.UUID, patches []model.AnswerPatch) error {
	key := config.CacheKey.AttemptDraftKey(attemptID.String())
	pipe := s.rdb.Pipeline()
	for _, p := range patches {
		pipe.HSet(ctx, key, p.QuestionID.String(), string(p.Answer))

		payload, err := json.Marshal(draftPayload{
			AttemptID:  attemptID.String(),
			QuestionID: p.QuestionID.String(),
			Answer:     p.Answer,
		})
		if err != nil {
			return fmt.Errorf("marshal draft payload: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistDraftsQueue, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

// draftPayload is the queue message consumed by the autosave worker.
type draftPayload struct {
	AttemptID  string          `json:"attempt_id"`
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// loadDraft reads the attempt's draft answers, preferring the Redis hash and
// falling back to the durable copy when the hash is empty or unavailable.
func (s *AttemptService) loadDraft(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftKey(attemptID.String())).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Draft cache read failed, falling back to store")
		fields = nil
	}
	if len(fields) > 0 {
		drafts := make(map[uuid.UUID]json.RawMessage, len(fields))
		for field, value := range fields {
			qid, err := uuid.Parse(field)
			if err != nil {
				continue
			}
			drafts[qid] = json.RawMessage(value)
		}
		return drafts, nil
	}
	return s.attempts.ListDraftAnswers(ctx, attemptID)
}

// clearDraft drops both copies of the draft after finalization.
func (s *AttemptService) clearDraft(ctx context.Context, attemptID uuid.UUID) {
	if err := s.rdb.Del(ctx, config.CacheKey.AttemptDraftKey(attemptID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Draft cache delete failed")
	}
	if err := s.attempts.DeleteDraftAnswers(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Draft store delete failed")
	}
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	ID            uuid.UUID `json:"id"`
	PointsAwarded float64   `json:"points_awarded"`
	PointsTotal   float64   `json:"points_total"`
	NeedsReview   bool      `json:"needs_review"`
	ScorePercent  float64   `json:"score_percent"`
	Grade         *string   `json:"grade"`
	Passed        *bool     `json:"passed"`
}

// Submit grades and finalizes the attempt. When the caller sends no answers
// the stored draft is used.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID uuid.UUID, answers []model.AnswerPatch) (*SubmitResult, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Submitted() {
		return nil, ErrAttemptSubmitted
	}

	var submitted map[uuid.UUID]json.RawMessage
	if len(answers) > 0 {
		submitted = make(map[uuid.UUID]json.RawMessage, len(answers))
		for _, p := range answers {
			submitted[p.QuestionID] = p.Answer
		}
	} else {
		submitted, err = s.loadDraft(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("load draft: %w", err)
		}
	}

	if err := s.finalize(ctx, attempt, submitted); err != nil {
		return nil, err
	}

	summary := grading.Summarize(attempt.PointsAwarded, attempt.PointsTotal, attempt.IsFinal())
	return &SubmitResult{
		ID:            attempt.ID,
		PointsAwarded: attempt.PointsAwarded,
		PointsTotal:   attempt.PointsTotal,
		NeedsReview:   attempt.NeedsReview,
		ScorePercent:  summary.ScorePercent,
		Grade:         summary.Grade,
		Passed:        summary.Passed,
	}, nil
}

// finalize grades the submitted answers over the snapshot and stamps
// submitted_at. First write wins: losing a finalize race surfaces as
// ErrAttemptSubmitted.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.ExamAttempt, submitted map[uuid.UUID]json.RawMessage) error {
	questions, err := s.orderedQuestions(ctx, attempt.QuestionIDs)
	if err != nil {
		return err
	}

	result := grading.Grade(questions, submitted)
	now := s.clk.Now()
	attempt.Answers = result.Answers
	attempt.PointsAwarded = result.PointsAwarded
	attempt.PointsTotal = result.PointsTotal
	attempt.NeedsReview = result.NeedsReview
	attempt.SubmittedAt = &now

	won, err := s.attempts.Finalize(ctx, attempt)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if !won {
		return ErrAttemptSubmitted
	}

	s.clearDraft(ctx, attempt.ID)
	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Float64("points_awarded", attempt.PointsAwarded).
		Float64("points_total", attempt.PointsTotal).
		Bool("needs_review", attempt.NeedsReview).
		Msg("Attempt submitted")
	return nil
}

// AnswerUpload is the stored image answer echoed back to the student.
type AnswerUpload struct {
	Question model.QuestionForStudent `json:"question"`
	Answer   model.ImageAnswer        `json:"answer"`
}

// SaveImageAnswer records an uploaded image as the draft answer for an
// image-upload question, replacing any prior image for the same question.
func (s *AttemptService) SaveImageAnswer(ctx context.Context, attemptID, studentID, questionID uuid.UUID, img model.ImageAnswer) (*AnswerUpload, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Submitted() {
		return nil, ErrAttemptSubmitted
	}
	if attempt.ExpiredAt(s.clk.Now()) {
		return nil, ErrAttemptExpired
	}

	found := false
	for _, id := range attempt.QuestionIDs {
		if id == questionID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrQuestionNotInAttempt
	}

	docs, err := s.questions.GetByIDs(ctx, []uuid.UUID{questionID})
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	question, ok := docs[questionID]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	if question.Type != model.QuestionTypeImageUpload {
		return nil, ErrNotImageQuestion
	}

	payload, err := json.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("marshal image answer: %w", err)
	}
	if err := s.writeDraft(ctx, attemptID, []model.AnswerPatch{{QuestionID: questionID, Answer: payload}}); err != nil {
		return nil, err
	}

	return &AnswerUpload{Question: question.ForStudent(), Answer: img}, nil
}

// GetOwnedAttempt reads the student's attempt without side effects. The
// remaining-time stream polls it; unlike GetActiveAttempt it never finalizes.
func (s *AttemptService) GetOwnedAttempt(ctx context.Context, attemptID, studentID uuid.UUID) (*model.ExamAttempt, error) {
	return s.getOwnedAttempt(ctx, attemptID, studentID)
}

func (s *AttemptService) getOwnedAttempt(ctx context.Context, attemptID, studentID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	return attempt, nil
}

// orderedQuestions resolves the snapshot ids to full documents in snapshot
// order. Ids that no longer resolve are skipped.
func (s *AttemptService) orderedQuestions(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	docs, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	questions := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := docs[id]; ok {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

// resolveQuestions resolves snapshot ids to student-safe documents in order.
func (s *AttemptService) resolveQuestions(ctx context.Context, ids []uuid.UUID) ([]model.QuestionForStudent, error) {
	questions, err := s.orderedQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	stripped := make([]model.QuestionForStudent, len(questions))
	for i := range questions {
		stripped[i] = questions[i].ForStudent()
	}
	return stripped, nil
}
