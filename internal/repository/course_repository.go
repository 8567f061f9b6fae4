package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// CourseRepository handles course and enrollment data access.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// GetByID retrieves a course by id.
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c := &model.Course{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, course_code, description, created_by, created_at
		 FROM courses WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.CourseCode, &c.Description, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, c *model.Course) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO courses (title, course_code, description, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		c.Title, c.CourseCode, c.Description, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt)
}

// List returns every course, newest first.
func (r *CourseRepository) List(ctx context.Context) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, course_code, description, created_by, created_at
		 FROM courses ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

// ListByStudent lists the courses a student is enrolled in.
func (r *CourseRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.title, c.course_code, c.description, c.created_by, c.created_at
		 FROM courses c
		 JOIN course_students cs ON cs.course_id = c.id
		 WHERE cs.student_id = $1
		 ORDER BY c.created_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

func scanCourses(rows pgx.Rows) ([]model.Course, error) {
	courses := []model.Course{}
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.CourseCode, &c.Description, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// IsEnrolled reports whether the student belongs to the course.
func (r *CourseRepository) IsEnrolled(ctx context.Context, courseID, studentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM course_students
			WHERE course_id = $1 AND student_id = $2
		)`, courseID, studentID,
	).Scan(&exists)
	return exists, err
}

// Enroll adds a student to a course. Enrolling twice is a no-op.
func (r *CourseRepository) Enroll(ctx context.Context, courseID, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO course_students (course_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (course_id, student_id) DO NOTHING`,
		courseID, studentID,
	)
	return err
}

// CreateEnrollmentRequest records a pending enrollment request. Repeating the
// request while one is already pending is a no-op.
func (r *CourseRepository) CreateEnrollmentRequest(ctx context.Context, courseID, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enrollment_requests (course_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (course_id, student_id) DO NOTHING`,
		courseID, studentID,
	)
	return err
}

// ListEnrollmentRequests lists pending enrollment requests for a course,
// oldest first.
func (r *CourseRepository) ListEnrollmentRequests(ctx context.Context, courseID uuid.UUID) ([]model.EnrollmentRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id, student_id, requested_at
		 FROM enrollment_requests
		 WHERE course_id = $1
		 ORDER BY requested_at ASC`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []model.EnrollmentRequest{}
	for rows.Next() {
		var er model.EnrollmentRequest
		if err := rows.Scan(&er.CourseID, &er.StudentID, &er.RequestedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, er)
	}
	return reqs, rows.Err()
}

// DeleteEnrollmentRequest removes the pending request for the pair. It returns
// pgx.ErrNoRows when no pending request exists.
func (r *CourseRepository) DeleteEnrollmentRequest(ctx context.Context, courseID, studentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM enrollment_requests
		 WHERE course_id = $1 AND student_id = $2`,
		courseID, studentID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListStudentIDs returns the ids of students enrolled in the course.
func (r *CourseRepository) ListStudentIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM course_students WHERE course_id = $1`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
