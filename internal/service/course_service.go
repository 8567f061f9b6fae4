package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/repository"
)

var (
	ErrCourseNotFound      = errors.New("course not found")
	ErrAlreadyEnrolled     = errors.New("student is already enrolled in this course")
	ErrNoPendingEnrollment = errors.New("no pending enrollment request for this student")
)

// CourseService handles course and enrollment business logic.
type CourseService struct {
	courseRepo *repository.CourseRepository
	userRepo   *repository.UserRepository
	log        zerolog.Logger
}

// NewCourseService creates a new CourseService.
func NewCourseService(courseRepo *repository.CourseRepository, userRepo *repository.UserRepository, log zerolog.Logger) *CourseService {
	return &CourseService{
		courseRepo: courseRepo,
		userRepo:   userRepo,
		log:        log.With().Str("component", "course_service").Logger(),
	}
}

// Create creates a new course owned by the instructor.
func (s *CourseService) Create(ctx context.Context, creatorID uuid.UUID, req *model.CreateCourseRequest) (*model.Course, error) {
	course := &model.Course{
		Title:       req.Title,
		CourseCode:  req.CourseCode,
		Description: req.Description,
		CreatedBy:   &creatorID,
	}
	if err := s.courseRepo.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info().Str("course_id", course.ID.String()).Str("title", course.Title).Msg("Course created")
	return course, nil
}

// List returns every course.
func (s *CourseService) List(ctx context.Context) ([]model.Course, error) {
	return s.courseRepo.List(ctx)
}

// ListMine returns the courses the student is enrolled in.
func (s *CourseService) ListMine(ctx context.Context, studentID uuid.UUID) ([]model.Course, error) {
	return s.courseRepo.ListByStudent(ctx, studentID)
}

// Get retrieves a course by id.
func (s *CourseService) Get(ctx context.Context, courseID uuid.UUID) (*model.Course, error) {
	course, err := s.courseRepo.GetByID(ctx, courseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return course, nil
}

// RequestEnrollment files a student's request to join a course. Repeating a
// pending request is a no-op; requesting while already enrolled fails.
func (s *CourseService) RequestEnrollment(ctx context.Context, courseID, studentID uuid.UUID) error {
	if _, err := s.Get(ctx, courseID); err != nil {
		return err
	}

	enrolled, err := s.courseRepo.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled {
		return ErrAlreadyEnrolled
	}

	if err := s.courseRepo.CreateEnrollmentRequest(ctx, courseID, studentID); err != nil {
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// ListEnrollmentRequests lists a course's pending enrollment requests.
func (s *CourseService) ListEnrollmentRequests(ctx context.Context, courseID uuid.UUID) ([]model.EnrollmentRequest, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return s.courseRepo.ListEnrollmentRequests(ctx, courseID)
}

// ApproveEnrollment turns a pending request into a roster entry.
func (s *CourseService) ApproveEnrollment(ctx context.Context, courseID, studentID uuid.UUID) error {
	err := s.courseRepo.DeleteEnrollmentRequest(ctx, courseID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoPendingEnrollment
	}
	if err != nil {
		return fmt.Errorf("consume enrollment request: %w", err)
	}

	if err := s.courseRepo.Enroll(ctx, courseID, studentID); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}

	s.log.Info().
		Str("course_id", courseID.String()).
		Str("student_id", studentID.String()).
		Msg("Enrollment approved")
	return nil
}

// RejectEnrollment discards a pending request.
func (s *CourseService) RejectEnrollment(ctx context.Context, courseID, studentID uuid.UUID) error {
	err := s.courseRepo.DeleteEnrollmentRequest(ctx, courseID, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoPendingEnrollment
	}
	if err != nil {
		return fmt.Errorf("discard enrollment request: %w", err)
	}
	return nil
}

// ListStudents returns the course roster.
func (s *CourseService) ListStudents(ctx context.Context, courseID uuid.UUID) ([]model.User, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}

	ids, err := s.courseRepo.ListStudentIDs(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	users, err := s.userRepo.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}

	students := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			students = append(students, *u)
		}
	}
	return students, nil
}
