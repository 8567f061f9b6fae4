package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/clock"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

var (
	ErrExamPublished = errors.New("exam is already published, its question set is frozen")
)

const defaultDurationMinutes = 60

// ExamService handles exam business logic.
type ExamService struct {
	examRepo     *repository.ExamRepository
	courseRepo   *repository.CourseRepository
	questionRepo *repository.QuestionRepository
	selection    *SelectionService
	clk          clock.Clock
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	courseRepo *repository.CourseRepository,
	questionRepo *repository.QuestionRepository,
	selection *SelectionService,
	clk clock.Clock,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		courseRepo:   courseRepo,
		questionRepo: questionRepo,
		selection:    selection,
		clk:          clk,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Create creates a draft exam.
func (s *ExamService) Create(ctx context.Context, creatorID uuid.UUID, req *model.CreateExamRequest) (*model.Exam, error) {
	if req.CourseID != nil {
		if _, err := s.courseRepo.GetByID(ctx, *req.CourseID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrCourseNotFound
			}
			return nil, fmt.Errorf("get course: %w", err)
		}
	}

	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		CourseID:        req.CourseID,
		SelectionMode:   model.SelectionMode(req.SelectionMode),
		QuestionIDs:     req.QuestionIDs,
		RandomConfig:    req.RandomConfig,
		QuestionCount:   req.QuestionCount,
		CreatedBy:       &creatorID,
	}
	if exam.DurationMinutes <= 0 {
		exam.DurationMinutes = defaultDurationMinutes
	}
	if exam.SelectionMode == "" {
		exam.SelectionMode = model.SelectionModeManual
	}
	if exam.QuestionCount == 0 {
		switch {
		case len(exam.QuestionIDs) > 0:
			exam.QuestionCount = len(exam.QuestionIDs)
		case exam.RandomConfig != nil:
			exam.QuestionCount = exam.RandomConfig.TypedTotal()
		}
	}

	if len(exam.QuestionIDs) > 0 {
		if err := s.verifyQuestions(ctx, exam.CourseID, exam.QuestionIDs); err != nil {
			return nil, err
		}
	}

	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Str("title", exam.Title).Msg("Exam created")
	return exam, nil
}

// Update mutates a draft exam's schedule and composition fields.
func (s *ExamService) Update(ctx context.Context, examID uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.Get(ctx, examID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Date != nil {
		exam.Date = *req.Date
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.RandomConfig != nil {
		exam.RandomConfig = req.RandomConfig
	}
	if req.QuestionCount != nil {
		exam.QuestionCount = *req.QuestionCount
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Get retrieves an exam by id.
func (s *ExamService) Get(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Delete removes an exam outright. Existing attempts keep their snapshots.
func (s *ExamService) Delete(ctx context.Context, examID uuid.UUID) error {
	err := s.examRepo.Delete(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrExamNotFound
	}
	if err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam deleted")
	return nil
}

// SetQuestions replaces the exam's manual question list. Refused once the
// exam is published.
func (s *ExamService) SetQuestions(ctx context.Context, examID uuid.UUID, questionIDs []uuid.UUID) (*model.Exam, error) {
	exam, err := s.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Published {
		return nil, ErrExamPublished
	}
	if err := s.verifyQuestions(ctx, exam.CourseID, questionIDs); err != nil {
		return nil, err
	}

	if err := s.examRepo.SetQuestionIDs(ctx, examID, questionIDs); err != nil {
		return nil, fmt.Errorf("set exam questions: %w", err)
	}
	exam.QuestionIDs = questionIDs
	exam.QuestionCount = len(questionIDs)
	return exam, nil
}

// Publish makes the exam startable. Manual mode requires a non-empty question
// list; random mode requires the course pool to satisfy the composition.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Published {
		return nil, ErrExamPublished
	}

	switch exam.SelectionMode {
	case model.SelectionModeRandom:
		if err := s.selection.Validate(ctx, exam); err != nil {
			return nil, err
		}
	default:
		if len(exam.QuestionIDs) == 0 && !(exam.CourseID != nil && exam.QuestionCount > 0) {
			return nil, ErrNoQuestions
		}
	}

	if err := s.examRepo.MarkPublished(ctx, examID); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	now := s.clk.Now()
	exam.Published = true
	exam.PublishedAt = &now

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return exam, nil
}

// ListByCourse lists a course's exams.
func (s *ExamService) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.Exam, error) {
	return s.examRepo.ListByCourse(ctx, courseID)
}

// GetAvailable lists the published exams the student can start right now:
// the current time falls inside the window and the student is enrolled in the
// owning course.
func (s *ExamService) GetAvailable(ctx context.Context, studentID uuid.UUID) ([]model.Exam, error) {
	courses, err := s.courseRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	courseIDs := make([]uuid.UUID, len(courses))
	for i := range courses {
		courseIDs[i] = courses[i].ID
	}

	exams, err := s.examRepo.ListPublishedByCourses(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	now := s.clk.Now()
	available := []model.Exam{}
	for i := range exams {
		if exams[i].AvailableAt(now) {
			available = append(available, exams[i])
		}
	}
	return available, nil
}

// verifyQuestions checks that every id resolves and, when the exam is bound
// to a course, belongs to that course's bank.
func (s *ExamService) verifyQuestions(ctx context.Context, courseID *uuid.UUID, ids []uuid.UUID) error {
	docs, err := s.questionRepo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("get questions: %w", err)
	}
	for _, id := range ids {
		q, ok := docs[id]
		if !ok {
			return ErrQuestionNotFound
		}
		if courseID != nil && q.CourseID != *courseID {
			return ErrQuestionNotFound
		}
	}
	return nil
}
