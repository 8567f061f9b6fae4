package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/examly/examly-backend/internal/grading"
	"github.com/examly/examly-backend/internal/model"
)

// ResultsAttemptStore is the read surface the reporting service needs,
// implemented by repository.AttemptRepository.
type ResultsAttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	ListSubmittedByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
	ListSubmittedByStudent(ctx context.Context, studentID uuid.UUID) ([]model.ExamAttempt, error)
}

// ResultsExamStore resolves exams for reporting rows.
type ResultsExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Exam, error)
}

// UserDirectory resolves user documents for reporting rows.
type UserDirectory interface {
	GetManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error)
}

// CourseDirectory resolves courses for the per-course breakdown.
type CourseDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
}

// ResultsService renders every grade-facing read surface. All of them go
// through the one summary calculator; none recompute grading on their own.
type ResultsService struct {
	attempts  ResultsAttemptStore
	exams     ResultsExamStore
	questions QuestionStore
	users     UserDirectory
	courses   CourseDirectory
}

// NewResultsService creates a new ResultsService.
func NewResultsService(
	attempts ResultsAttemptStore,
	exams ResultsExamStore,
	questions QuestionStore,
	users UserDirectory,
	courses CourseDirectory,
) *ResultsService {
	return &ResultsService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		users:     users,
		courses:   courses,
	}
}

// ResultStudent is the student identity embedded in result rows.
type ResultStudent struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// ExamResultRow is one submitted attempt in an exam's result list.
type ExamResultRow struct {
	AttemptID       uuid.UUID     `json:"attempt_id"`
	Student         ResultStudent `json:"student"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	PointsAwarded   float64       `json:"points_awarded"`
	PointsTotal     float64       `json:"points_total"`
	NeedsReview     bool          `json:"needs_review"`
	ScorePercent    float64       `json:"score_percent"`
	Grade           *string       `json:"grade"`
	Passed          *bool         `json:"passed"`
	ReviewRequested bool          `json:"review_requested"`
}

// ExamResults is the professor-facing result list for one exam, ranked by
// points awarded with ties broken by earlier submission.
type ExamResults struct {
	Exam    *model.Exam     `json:"exam"`
	Results []ExamResultRow `json:"results"`
}

// GetExamResults lists an exam's submitted attempts with their summaries.
func (s *ResultsService) GetExamResults(ctx context.Context, examID uuid.UUID) (*ExamResults, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempts, err := s.attempts.ListSubmittedByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	studentIDs := make([]uuid.UUID, len(attempts))
	for i := range attempts {
		studentIDs[i] = attempts[i].StudentID
	}
	students, err := s.users.GetManyByIDs(ctx, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}

	rows := make([]ExamResultRow, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		summary := grading.Summarize(a.PointsAwarded, a.PointsTotal, a.IsFinal())
		row := ExamResultRow{
			AttemptID:       a.ID,
			SubmittedAt:     *a.SubmittedAt,
			PointsAwarded:   a.PointsAwarded,
			PointsTotal:     a.PointsTotal,
			NeedsReview:     a.NeedsReview,
			ScorePercent:    summary.ScorePercent,
			Grade:           summary.Grade,
			Passed:          summary.Passed,
			ReviewRequested: a.ReviewRequested,
		}
		if u, ok := students[a.StudentID]; ok {
			row.Student = ResultStudent{ID: u.ID, Name: u.Name, Email: u.Email}
		} else {
			row.Student = ResultStudent{ID: a.StudentID}
		}
		rows = append(rows, row)
	}
	return &ExamResults{Exam: exam, Results: rows}, nil
}

// ReviewedAnswer pairs one snapshot question with the answer record stored at
// grading time.
type ReviewedAnswer struct {
	Question      model.Question  `json:"question"`
	Answer        json.RawMessage `json:"answer,omitempty"`
	IsCorrect     *bool           `json:"is_correct"`
	PointsAwarded float64         `json:"points_awarded"`
	MaxPoints     float64         `json:"max_points"`
}

// AttemptReview is the full per-question breakdown of a submitted attempt.
type AttemptReview struct {
	Attempt *model.ExamAttempt `json:"attempt"`
	Exam    *model.Exam        `json:"exam"`
	Answers []ReviewedAnswer   `json:"answers"`
	Summary grading.Summary    `json:"summary"`
}

// GetAttemptReview returns the per-question breakdown for a submitted
// attempt. Students may only read their own; instructors may read any.
func (s *ResultsService) GetAttemptReview(ctx context.Context, attemptID, actorID uuid.UUID, actorRole model.Role) (*AttemptReview, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if actorRole == model.RoleStudent && attempt.StudentID != actorID {
		return nil, ErrNotAttemptOwner
	}
	if !attempt.Submitted() {
		return nil, ErrAttemptNotSubmitted
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	docs, err := s.questions.GetByIDs(ctx, attempt.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	stored := make(map[uuid.UUID]model.AttemptAnswer, len(attempt.Answers))
	for _, a := range attempt.Answers {
		stored[a.QuestionID] = a
	}

	answers := make([]ReviewedAnswer, 0, len(attempt.QuestionIDs))
	for _, qid := range attempt.QuestionIDs {
		question, ok := docs[qid]
		if !ok {
			continue
		}
		record := stored[qid]
		answers = append(answers, ReviewedAnswer{
			Question:      question,
			Answer:        record.Answer,
			IsCorrect:     record.IsCorrect,
			PointsAwarded: record.PointsAwarded,
			MaxPoints:     question.MaxPoints(),
		})
	}

	return &AttemptReview{
		Attempt: attempt,
		Exam:    exam,
		Answers: answers,
		Summary: grading.Summarize(attempt.PointsAwarded, attempt.PointsTotal, attempt.IsFinal()),
	}, nil
}

// GradeRow is one submitted attempt in a student's grade list.
type GradeRow struct {
	AttemptID     uuid.UUID  `json:"attempt_id"`
	ExamID        uuid.UUID  `json:"exam_id"`
	ExamTitle     string     `json:"exam_title"`
	CourseID      *uuid.UUID `json:"course_id,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	PointsAwarded float64    `json:"points_awarded"`
	PointsTotal   float64    `json:"points_total"`
	NeedsReview   bool       `json:"needs_review"`
	ScorePercent  float64    `json:"score_percent"`
	Grade         *string    `json:"grade"`
	Passed        *bool      `json:"passed"`
}

// GetMyGrades lists a student's submitted attempts with their summaries, most
// recent first.
func (s *ResultsService) GetMyGrades(ctx context.Context, studentID uuid.UUID) ([]GradeRow, error) {
	attempts, err := s.attempts.ListSubmittedByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	exams, err := s.examsForAttempts(ctx, attempts)
	if err != nil {
		return nil, err
	}

	rows := make([]GradeRow, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		summary := grading.Summarize(a.PointsAwarded, a.PointsTotal, a.IsFinal())
		row := GradeRow{
			AttemptID:     a.ID,
			ExamID:        a.ExamID,
			SubmittedAt:   *a.SubmittedAt,
			PointsAwarded: a.PointsAwarded,
			PointsTotal:   a.PointsTotal,
			NeedsReview:   a.NeedsReview,
			ScorePercent:  summary.ScorePercent,
			Grade:         summary.Grade,
			Passed:        summary.Passed,
		}
		if e, ok := exams[a.ExamID]; ok {
			row.ExamTitle = e.Title
			row.CourseID = e.CourseID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CourseBreakdown aggregates a student's final results within one course.
// Attempts still pending manual review are excluded from the statistics.
type CourseBreakdown struct {
	CourseID        uuid.UUID `json:"course_id"`
	CourseTitle     string    `json:"course_title"`
	ExamsTaken      int       `json:"exams_taken"`
	PendingReview   int       `json:"pending_review"`
	Passed          int       `json:"passed"`
	Failed          int       `json:"failed"`
	AvgScorePercent float64   `json:"avg_score_percent"`
}

// StudentReview is the per-course pass/fail dashboard for one student.
type StudentReview struct {
	StudentID uuid.UUID         `json:"student_id"`
	Courses   []CourseBreakdown `json:"courses"`
	Grades    []GradeRow        `json:"grades"`
}

// GetStudentReview builds the per-course breakdown over a student's
// submitted attempts.
func (s *ResultsService) GetStudentReview(ctx context.Context, studentID uuid.UUID) (*StudentReview, error) {
	grades, err := s.GetMyGrades(ctx, studentID)
	if err != nil {
		return nil, err
	}

	type courseAgg struct {
		taken, pending, passed, failed int
		scoreSum                       float64
	}
	aggs := map[uuid.UUID]*courseAgg{}
	order := []uuid.UUID{}
	for _, g := range grades {
		if g.CourseID == nil {
			continue
		}
		agg, ok := aggs[*g.CourseID]
		if !ok {
			agg = &courseAgg{}
			aggs[*g.CourseID] = agg
			order = append(order, *g.CourseID)
		}
		agg.taken++
		if g.Passed == nil {
			agg.pending++
			continue
		}
		agg.scoreSum += g.ScorePercent
		if *g.Passed {
			agg.passed++
		} else {
			agg.failed++
		}
	}

	breakdown := make([]CourseBreakdown, 0, len(order))
	for _, courseID := range order {
		agg := aggs[courseID]
		entry := CourseBreakdown{
			CourseID:      courseID,
			ExamsTaken:    agg.taken,
			PendingReview: agg.pending,
			Passed:        agg.passed,
			Failed:        agg.failed,
		}
		if final := agg.passed + agg.failed; final > 0 {
			entry.AvgScorePercent = agg.scoreSum / float64(final)
		}
		if course, err := s.courses.GetByID(ctx, courseID); err == nil {
			entry.CourseTitle = course.Title
		}
		breakdown = append(breakdown, entry)
	}

	return &StudentReview{StudentID: studentID, Courses: breakdown, Grades: grades}, nil
}

func (s *ResultsService) examsForAttempts(ctx context.Context, attempts []model.ExamAttempt) (map[uuid.UUID]model.Exam, error) {
	seen := map[uuid.UUID]bool{}
	ids := []uuid.UUID{}
	for i := range attempts {
		if !seen[attempts[i].ExamID] {
			seen[attempts[i].ExamID] = true
			ids = append(ids, attempts[i].ExamID)
		}
	}
	exams, err := s.exams.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve exams: %w", err)
	}
	return exams, nil
}
