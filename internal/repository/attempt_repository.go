package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examly/examly-backend/internal/model"
)

// AttemptRepository handles exam attempt data access, including the
// database-side copy of autosaved draft answers.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, started_at, expires_at, submitted_at,
	question_ids, answers, points_awarded, points_total, needs_review,
	graded_at, graded_by,
	review_requested, review_requested_at, review_request_message,
	review_response_message, review_appointment_at, review_responded_at, review_responded_by,
	created_at, updated_at`

// Create inserts an attempt for the (exam, student) pair. The unique index on
// the pair makes concurrent starts race-safe: exactly one insert wins and the
// losers fall through to fetching the winner's row. The returned bool is true
// when this call created the row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, student_id, started_at, expires_at, question_ids)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.ExamID, a.StudentID, a.StartedAt, a.ExpiresAt, a.QuestionIDs,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := r.GetByExamAndStudent(ctx, a.ExamID, a.StudentID)
		if ferr != nil {
			return false, ferr
		}
		*a = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id,
	)
	return scanAttempt(row)
}

// GetByExamAndStudent retrieves the single attempt for the pair, if any.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	)
	return scanAttempt(row)
}

// FindLatestUnsubmittedByStudent returns the student's most recently started
// attempt that has no submitted_at, if any.
func (r *AttemptRepository) FindLatestUnsubmittedByStudent(ctx context.Context, studentID uuid.UUID) (*model.ExamAttempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE student_id = $1 AND submitted_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`, studentID,
	)
	return scanAttempt(row)
}

// SetExpiresAt backfills the deadline on attempts that predate deadline
// tracking. It never moves an existing deadline.
func (r *AttemptRepository) SetExpiresAt(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET expires_at = $2, updated_at = now()
		 WHERE id = $1 AND expires_at IS NULL`,
		id, expiresAt,
	)
	return err
}

// Finalize writes the graded result and stamps submitted_at. The guard on
// submitted_at makes finalization first-write-wins: a second call is a no-op
// and reports false.
func (r *AttemptRepository) Finalize(ctx context.Context, a *model.ExamAttempt) (bool, error) {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET submitted_at = $2, answers = $3, points_awarded = $4,
		     points_total = $5, needs_review = $6, updated_at = now()
		 WHERE id = $1 AND submitted_at IS NULL`,
		a.ID, a.SubmittedAt, answers, a.PointsAwarded, a.PointsTotal, a.NeedsReview,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkReviewRequested records the student's review request. The guard on
// review_requested makes the operation idempotent: only the first request
// writes, and the return value reports whether this call was the first.
func (r *AttemptRepository) MarkReviewRequested(ctx context.Context, id uuid.UUID, at time.Time, message string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET review_requested = TRUE, review_requested_at = $2,
		     review_request_message = $3, updated_at = now()
		 WHERE id = $1 AND review_requested = FALSE`,
		id, at, nullableString(message),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SaveReviewResponse persists the instructor's reply fields verbatim,
// including explicit clears (nil pointers write NULL).
func (r *AttemptRepository) SaveReviewResponse(ctx context.Context, a *model.ExamAttempt) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET review_response_message = $2, review_appointment_at = $3,
		     review_responded_at = $4, review_responded_by = $5, updated_at = now()
		 WHERE id = $1`,
		a.ID, nullableString(a.ReviewResponseMessage), a.ReviewAppointmentAt,
		a.ReviewRespondedAt, a.ReviewRespondedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ApplyManualGrade overwrites the attempt's answers and totals with the
// reviewer's adjustments and stamps graded_at / graded_by.
func (r *AttemptRepository) ApplyManualGrade(ctx context.Context, a *model.ExamAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET answers = $2, points_awarded = $3, points_total = $4,
		     needs_review = $5, graded_at = $6, graded_by = $7, updated_at = now()
		 WHERE id = $1`,
		a.ID, answers, a.PointsAwarded, a.PointsTotal, a.NeedsReview, a.GradedAt, a.GradedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListSubmittedByExam lists an exam's submitted attempts ranked by points
// awarded, ties broken by earlier submission.
func (r *AttemptRepository) ListSubmittedByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE exam_id = $1 AND submitted_at IS NOT NULL
		 ORDER BY points_awarded DESC, submitted_at ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// ListSubmittedByStudent lists a student's submitted attempts, most recent
// submission first.
func (r *AttemptRepository) ListSubmittedByStudent(ctx context.Context, studentID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE student_id = $1 AND submitted_at IS NOT NULL
		 ORDER BY submitted_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows pgx.Rows) ([]model.ExamAttempt, error) {
	attempts := []model.ExamAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	var (
		a           model.ExamAttempt
		answers     []byte
		requestMsg  *string
		responseMsg *string
	)
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.ExpiresAt, &a.SubmittedAt,
		&a.QuestionIDs, &answers, &a.PointsAwarded, &a.PointsTotal, &a.NeedsReview,
		&a.GradedAt, &a.GradedBy,
		&a.ReviewRequested, &a.ReviewRequestedAt, &requestMsg,
		&responseMsg, &a.ReviewAppointmentAt, &a.ReviewRespondedAt, &a.ReviewRespondedBy,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, err
		}
	}
	if requestMsg != nil {
		a.ReviewRequestMessage = *requestMsg
	}
	if responseMsg != nil {
		a.ReviewResponseMessage = *responseMsg
	}
	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpsertDraftAnswers writes a batch of draft answers for the attempt in one
// round trip. Later saves for the same question overwrite earlier ones.
func (r *AttemptRepository) UpsertDraftAnswers(ctx context.Context, attemptID uuid.UUID, patches []model.AnswerPatch) error {
	if len(patches) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range patches {
		batch.Queue(
			`INSERT INTO attempt_draft_answers (attempt_id, question_id, answer, saved_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (attempt_id, question_id)
			 DO UPDATE SET answer = EXCLUDED.answer, saved_at = now()`,
			attemptID, p.QuestionID, []byte(p.Answer),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range patches {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListDraftAnswers returns the attempt's persisted draft answers keyed by
// question id.
func (r *AttemptRepository) ListDraftAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]json.RawMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer FROM attempt_draft_answers
		 WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := map[uuid.UUID]json.RawMessage{}
	for rows.Next() {
		var (
			qid    uuid.UUID
			answer []byte
		)
		if err := rows.Scan(&qid, &answer); err != nil {
			return nil, err
		}
		drafts[qid] = json.RawMessage(answer)
	}
	return drafts, rows.Err()
}

// DeleteDraftAnswers drops the attempt's persisted drafts after submission.
func (r *AttemptRepository) DeleteDraftAnswers(ctx context.Context, attemptID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM attempt_draft_answers WHERE attempt_id = $1`, attemptID,
	)
	return err
}
