package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptAnswer is one per-question answer record inside an attempt. Before
// submission only QuestionID and Answer are meaningful; grading fills in the
// rest. Answer is an opaque payload whose shape depends on the question type:
// a JSON string for multiple-choice and essay, a JSON boolean for tf, and an
// ImageAnswer object for image-upload.
type AttemptAnswer struct {
	QuestionID    uuid.UUID       `json:"question_id"`
	Answer        json.RawMessage `json:"answer,omitempty"`
	IsCorrect     *bool           `json:"is_correct,omitempty"`
	PointsAwarded float64         `json:"points_awarded"`
	MaxPoints     float64         `json:"max_points"`
}

// ImageAnswer is the stored payload for an image-upload answer.
type ImageAnswer struct {
	Kind         string    `json:"kind"` // always "image"
	Path         string    `json:"path"`
	OriginalName string    `json:"originalName"`
	Mimetype     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ExamAttempt is one student's timed instance of taking one exam. At most one
// attempt exists per (exam, student) pair. Once SubmittedAt is set the attempt
// is terminal for the student-facing flow and is mutated only by the review
// workflow and manual grading.
type ExamAttempt struct {
	ID          uuid.UUID   `json:"id"`
	ExamID      uuid.UUID   `json:"exam_id"`
	StudentID   uuid.UUID   `json:"student_id"`
	StartedAt   time.Time   `json:"started_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty"`
	QuestionIDs []uuid.UUID `json:"question_ids,omitempty"`

	Answers       []AttemptAnswer `json:"answers"`
	PointsAwarded float64         `json:"points_awarded"`
	PointsTotal   float64         `json:"points_total"`
	NeedsReview   bool            `json:"needs_review"`

	GradedAt *time.Time `json:"graded_at,omitempty"`
	GradedBy *uuid.UUID `json:"graded_by,omitempty"`

	ReviewRequested      bool       `json:"review_requested"`
	ReviewRequestedAt    *time.Time `json:"review_requested_at,omitempty"`
	ReviewRequestMessage string     `json:"review_request_message,omitempty"`

	ReviewResponseMessage string     `json:"review_response_message,omitempty"`
	ReviewAppointmentAt   *time.Time `json:"review_appointment_at,omitempty"`
	ReviewRespondedAt     *time.Time `json:"review_responded_at,omitempty"`
	ReviewRespondedBy     *uuid.UUID `json:"review_responded_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submitted reports whether the attempt has reached its terminal state.
func (a *ExamAttempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// ExpiredAt reports whether the attempt's deadline has passed at the given
// instant. Attempts without a recorded deadline never expire on their own.
func (a *ExamAttempt) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// IsFinal reports whether the attempt's grade is authoritative: an attempt
// pending manual review (needsReview with no gradedAt) is provisional.
func (a *ExamAttempt) IsFinal() bool {
	return !(a.NeedsReview && a.GradedAt == nil)
}

// AnswerPatch is one autosaved draft answer for a single question.
type AnswerPatch struct {
	QuestionID uuid.UUID       `json:"question_id" binding:"required"`
	Answer     json.RawMessage `json:"answer"`
}

// AutosaveRequest carries a batch of draft-answer patches.
type AutosaveRequest struct {
	Answers []AnswerPatch `json:"answers" binding:"required,dive"`
}

// SubmitRequest optionally carries the final answer list; when absent the
// stored draft is used.
type SubmitRequest struct {
	Answers []AnswerPatch `json:"answers" binding:"omitempty,dive"`
}

// RequestReviewRequest carries the optional student message.
type RequestReviewRequest struct {
	Message string `json:"message" binding:"omitempty,max=1000"`
}

// ReviewResponseRequest is the instructor's reply to a review request.
// A field that is present and JSON null clears the stored value; a string
// sets it; an absent field leaves it unchanged.
type ReviewResponseRequest struct {
	AppointmentAt json.RawMessage `json:"appointmentAt,omitempty"`
	Message       json.RawMessage `json:"message,omitempty"`
}

// GradeAttemptRequest carries per-question manual point overrides.
type GradeAttemptRequest struct {
	PointsByQuestion map[string]float64 `json:"points_by_question" binding:"required"`
}
