package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

var (
	ErrBadQuestionShape = errors.New("question payload does not match its type")
)

// QuestionService handles question-bank business logic.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	courseRepo   *repository.CourseRepository
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, courseRepo *repository.CourseRepository, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		courseRepo:   courseRepo,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// Create adds a question to a course's bank after enforcing the type-shape
// invariants: multiple-choice needs at least two options and a correct answer
// among them, true/false needs a boolean key, subjective types carry neither.
func (s *QuestionService) Create(ctx context.Context, courseID, creatorID uuid.UUID, req *model.CreateQuestionRequest) (*model.Question, error) {
	if _, err := s.courseRepo.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	qtype := model.QuestionType(req.Type)
	if err := validateQuestionShape(qtype, req); err != nil {
		return nil, err
	}

	question := &model.Question{
		CourseID:  courseID,
		Type:      qtype,
		Content:   req.Content,
		Points:    1,
		CreatedBy: &creatorID,
	}
	if req.Points != nil {
		question.Points = *req.Points
	}
	if qtype.IsObjective() {
		question.CorrectAnswer = req.CorrectAnswer
	}
	if qtype == model.QuestionTypeMultipleChoice {
		question.Options = req.Options
	}

	if err := s.questionRepo.Create(ctx, question); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.log.Info().
		Str("question_id", question.ID.String()).
		Str("course_id", courseID.String()).
		Str("type", string(qtype)).
		Msg("Question created")
	return question, nil
}

func validateQuestionShape(qtype model.QuestionType, req *model.CreateQuestionRequest) error {
	switch qtype {
	case model.QuestionTypeMultipleChoice:
		if len(req.Options) < 2 {
			return fmt.Errorf("%w: multiple-choice requires at least 2 options", ErrBadQuestionShape)
		}
		var answer string
		if err := json.Unmarshal(req.CorrectAnswer, &answer); err != nil {
			return fmt.Errorf("%w: multiple-choice requires a string correct answer", ErrBadQuestionShape)
		}
		for _, opt := range req.Options {
			if opt == answer {
				return nil
			}
		}
		return fmt.Errorf("%w: correct answer must be one of the options", ErrBadQuestionShape)
	case model.QuestionTypeTrueFalse:
		var answer bool
		if err := json.Unmarshal(req.CorrectAnswer, &answer); err != nil {
			return fmt.Errorf("%w: tf requires a boolean correct answer", ErrBadQuestionShape)
		}
		return nil
	case model.QuestionTypeEssay, model.QuestionTypeImageUpload:
		if len(req.Options) > 0 || len(req.CorrectAnswer) > 0 {
			return fmt.Errorf("%w: %s questions carry no options or answer key", ErrBadQuestionShape, qtype)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadQuestionShape, qtype)
	}
}

// ListByCourse lists a course's bank, optionally filtered to one type.
func (s *QuestionService) ListByCourse(ctx context.Context, courseID uuid.UUID, qtype string) ([]model.Question, error) {
	if _, err := s.courseRepo.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return s.questionRepo.ListByCourse(ctx, courseID, model.QuestionType(qtype))
}

// Delete removes a question from the bank. Attempt snapshots that reference
// it keep their stored answer records.
func (s *QuestionService) Delete(ctx context.Context, questionID uuid.UUID) error {
	err := s.questionRepo.Delete(ctx, questionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}
