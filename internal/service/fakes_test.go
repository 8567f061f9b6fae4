package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/examly/examly-backend/internal/model"
)

// memAttemptStore is an in-memory AttemptStore / ReviewStore /
// ResultsAttemptStore with the same uniqueness and first-write-wins semantics
// as the Postgres repository.
type memAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
	drafts   map[uuid.UUID]map[uuid.UUID]json.RawMessage
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{
		attempts: map[uuid.UUID]*model.ExamAttempt{},
		drafts:   map[uuid.UUID]map[uuid.UUID]json.RawMessage{},
	}
}

func copyAttempt(a *model.ExamAttempt) *model.ExamAttempt {
	cp := *a
	cp.QuestionIDs = append([]uuid.UUID(nil), a.QuestionIDs...)
	cp.Answers = append([]model.AttemptAnswer(nil), a.Answers...)
	return &cp
}

func (m *memAttemptStore) Create(_ context.Context, a *model.ExamAttempt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID {
			*a = *copyAttempt(existing)
			return false, nil
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = a.StartedAt
	a.UpdatedAt = a.StartedAt
	m.attempts[a.ID] = copyAttempt(a)
	return true, nil
}

func (m *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyAttempt(a), nil
}

func (m *memAttemptStore) GetByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (*model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			return copyAttempt(a), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAttemptStore) FindLatestUnsubmittedByStudent(_ context.Context, studentID uuid.UUID) (*model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.ExamAttempt
	for _, a := range m.attempts {
		if a.StudentID != studentID || a.SubmittedAt != nil {
			continue
		}
		if latest == nil || a.StartedAt.After(latest.StartedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return copyAttempt(latest), nil
}

func (m *memAttemptStore) SetExpiresAt(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[id]; ok && a.ExpiresAt == nil {
		a.ExpiresAt = &expiresAt
	}
	return nil
}

func (m *memAttemptStore) Finalize(_ context.Context, a *model.ExamAttempt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.attempts[a.ID]
	if !ok || stored.SubmittedAt != nil {
		return false, nil
	}
	stored.SubmittedAt = a.SubmittedAt
	stored.Answers = append([]model.AttemptAnswer(nil), a.Answers...)
	stored.PointsAwarded = a.PointsAwarded
	stored.PointsTotal = a.PointsTotal
	stored.NeedsReview = a.NeedsReview
	return true, nil
}

func (m *memAttemptStore) MarkReviewRequested(_ context.Context, id uuid.UUID, at time.Time, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.ReviewRequested {
		return false, nil
	}
	a.ReviewRequested = true
	a.ReviewRequestedAt = &at
	a.ReviewRequestMessage = message
	return true, nil
}

func (m *memAttemptStore) SaveReviewResponse(_ context.Context, a *model.ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.attempts[a.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.ReviewResponseMessage = a.ReviewResponseMessage
	stored.ReviewAppointmentAt = a.ReviewAppointmentAt
	stored.ReviewRespondedAt = a.ReviewRespondedAt
	stored.ReviewRespondedBy = a.ReviewRespondedBy
	return nil
}

func (m *memAttemptStore) ApplyManualGrade(_ context.Context, a *model.ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.attempts[a.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Answers = append([]model.AttemptAnswer(nil), a.Answers...)
	stored.PointsAwarded = a.PointsAwarded
	stored.PointsTotal = a.PointsTotal
	stored.NeedsReview = a.NeedsReview
	stored.GradedAt = a.GradedAt
	stored.GradedBy = a.GradedBy
	return nil
}

func (m *memAttemptStore) ListSubmittedByExam(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ExamAttempt{}
	for _, a := range m.attempts {
		if a.ExamID == examID && a.SubmittedAt != nil {
			out = append(out, *copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsAwarded != out[j].PointsAwarded {
			return out[i].PointsAwarded > out[j].PointsAwarded
		}
		return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
	})
	return out, nil
}

func (m *memAttemptStore) ListSubmittedByStudent(_ context.Context, studentID uuid.UUID) ([]model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ExamAttempt{}
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.SubmittedAt != nil {
			out = append(out, *copyAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(*out[j].SubmittedAt)
	})
	return out, nil
}

func (m *memAttemptStore) UpsertDraftAnswers(_ context.Context, attemptID uuid.UUID, patches []model.AnswerPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drafts[attemptID] == nil {
		m.drafts[attemptID] = map[uuid.UUID]json.RawMessage{}
	}
	for _, p := range patches {
		m.drafts[attemptID][p.QuestionID] = p.Answer
	}
	return nil
}

func (m *memAttemptStore) ListDraftAnswers(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]json.RawMessage{}
	for qid, answer := range m.drafts[attemptID] {
		out[qid] = answer
	}
	return out, nil
}

func (m *memAttemptStore) DeleteDraftAnswers(_ context.Context, attemptID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, attemptID)
	return nil
}

// memExamStore is an in-memory ExamStore / ResultsExamStore.
type memExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newMemExamStore(exams ...*model.Exam) *memExamStore {
	m := &memExamStore{exams: map[uuid.UUID]*model.Exam{}}
	for _, e := range exams {
		m.exams[e.ID] = e
	}
	return m
}

func (m *memExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	cp.QuestionIDs = append([]uuid.UUID(nil), e.QuestionIDs...)
	return &cp, nil
}

func (m *memExamStore) SetQuestionIDs(_ context.Context, examID uuid.UUID, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[examID]
	if !ok {
		return pgx.ErrNoRows
	}
	e.QuestionIDs = append([]uuid.UUID(nil), ids...)
	e.QuestionCount = len(ids)
	return nil
}

func (m *memExamStore) GetManyByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]model.Exam{}
	for _, id := range ids {
		if e, ok := m.exams[id]; ok {
			out[id] = *e
		}
	}
	return out, nil
}

// memQuestionStore is an in-memory QuestionStore / QuestionPool.
type memQuestionStore struct {
	questions []model.Question
}

func (m *memQuestionStore) add(q model.Question) model.Question {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	m.questions = append(m.questions, q)
	return q
}

func (m *memQuestionStore) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[uuid.UUID]model.Question{}
	for _, q := range m.questions {
		if want[q.ID] {
			out[q.ID] = q
		}
	}
	return out, nil
}

func (m *memQuestionStore) ListByCourse(_ context.Context, courseID uuid.UUID, qtype model.QuestionType) ([]model.Question, error) {
	out := []model.Question{}
	for _, q := range m.questions {
		if q.CourseID != courseID {
			continue
		}
		if qtype != "" && q.Type != qtype {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *memQuestionStore) CountByCourseAndType(_ context.Context, courseID uuid.UUID) (map[model.QuestionType]int, error) {
	counts := map[model.QuestionType]int{}
	for _, q := range m.questions {
		if q.CourseID == courseID {
			counts[q.Type]++
		}
	}
	return counts, nil
}

// memUserDirectory is an in-memory UserDirectory.
type memUserDirectory struct {
	users map[uuid.UUID]*model.User
}

func (m *memUserDirectory) GetManyByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	out := map[uuid.UUID]*model.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// memCourseDirectory is an in-memory CourseDirectory.
type memCourseDirectory struct {
	courses map[uuid.UUID]*model.Course
}

func (m *memCourseDirectory) GetByID(_ context.Context, id uuid.UUID) (*model.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}
