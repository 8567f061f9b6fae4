package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// QuestionRepository handles question-bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, course_id, type, content, options, correct_answer, points, created_by, created_at`

// Create inserts a question into a course's bank.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (course_id, type, content, options, correct_answer, points, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		q.CourseID, q.Type, q.Content, q.Options, q.CorrectAnswer, q.Points, q.CreatedBy,
	).Scan(&q.ID, &q.CreatedAt)
}

// GetByIDs retrieves questions by id, keyed by id. Missing ids are simply
// absent from the result.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.Question{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions[q.ID] = *q
	}
	return questions, rows.Err()
}

// ListByCourse lists a course's question bank, optionally restricted to one
// question type. Pass an empty type for the whole bank.
func (r *QuestionRepository) ListByCourse(ctx context.Context, courseID uuid.UUID, qtype model.QuestionType) ([]model.Question, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if qtype == "" {
		rows, err = r.pool.Query(ctx,
			`SELECT `+questionColumns+` FROM questions
			 WHERE course_id = $1 ORDER BY created_at ASC`, courseID,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+questionColumns+` FROM questions
			 WHERE course_id = $1 AND type = $2 ORDER BY created_at ASC`, courseID, qtype,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// CountByCourseAndType returns per-type question counts for a course's bank.
func (r *QuestionRepository) CountByCourseAndType(ctx context.Context, courseID uuid.UUID) (map[model.QuestionType]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, COUNT(*) FROM questions
		 WHERE course_id = $1 GROUP BY type`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.QuestionType]int{}
	for rows.Next() {
		var (
			t model.QuestionType
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// Delete removes a question from the bank.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(&q.ID, &q.CourseID, &q.Type, &q.Content, &q.Options, &q.CorrectAnswer, &q.Points, &q.CreatedBy, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}
