package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, date, duration_minutes, course_id,
	selection_mode, question_ids, random_config, question_count,
	published, published_at, created_by, created_at, updated_at`

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	cfg, err := marshalRandomConfig(e.RandomConfig)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, date, duration_minutes, course_id,
			selection_mode, question_ids, random_config, question_count, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.Date, e.DurationMinutes, e.CourseID,
		e.SelectionMode, e.QuestionIDs, cfg, e.QuestionCount, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update persists mutable exam fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	cfg, err := marshalRandomConfig(e.RandomConfig)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $2, description = $3, date = $4, duration_minutes = $5,
		     selection_mode = $6, question_ids = $7, random_config = $8,
		     question_count = $9, updated_at = now()
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Date, e.DurationMinutes,
		e.SelectionMode, e.QuestionIDs, cfg, e.QuestionCount,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetQuestionIDs replaces the exam's manual question list.
func (r *ExamRepository) SetQuestionIDs(ctx context.Context, examID uuid.UUID, ids []uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET question_ids = $2, question_count = $3, updated_at = now()
		 WHERE id = $1`,
		examID, ids, len(ids),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkPublished flips the exam to published.
func (r *ExamRepository) MarkPublished(ctx context.Context, examID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET published = TRUE, published_at = now(), updated_at = now()
		 WHERE id = $1`, examID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetByID retrieves an exam by id.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	)
	return scanExam(row)
}

// ListByCourse lists a course's exams, soonest first.
func (r *ExamRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE course_id = $1 ORDER BY date ASC`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExams(rows)
}

// ListPublishedByCourses lists published exams across the given courses,
// soonest first. Used to build a student's available-exam feed.
func (r *ExamRepository) ListPublishedByCourses(ctx context.Context, courseIDs []uuid.UUID) ([]model.Exam, error) {
	if len(courseIDs) == 0 {
		return []model.Exam{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE published = TRUE AND course_id = ANY($1)
		 ORDER BY date ASC`, courseIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExams(rows)
}

// GetManyByIDs retrieves exams by id, keyed by id.
func (r *ExamRepository) GetManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Exam, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.Exam{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := make(map[uuid.UUID]model.Exam, len(ids))
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams[e.ID] = *e
	}
	return exams, rows.Err()
}

// Delete removes an exam.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanExams(rows pgx.Rows) ([]model.Exam, error) {
	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	var (
		e   model.Exam
		cfg []byte
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.DurationMinutes,
		&e.CourseID, &e.SelectionMode, &e.QuestionIDs, &cfg, &e.QuestionCount,
		&e.Published, &e.PublishedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		rc := &model.RandomConfig{}
		if err := json.Unmarshal(cfg, rc); err != nil {
			return nil, err
		}
		e.RandomConfig = rc
	}
	return &e, nil
}

func marshalRandomConfig(cfg *model.RandomConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
