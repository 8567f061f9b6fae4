package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuestionType is the closed set of supported question types.
type QuestionType string

const (
	QuestionTypeEssay          QuestionType = "essay"
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeTrueFalse      QuestionType = "tf"
	QuestionTypeImageUpload    QuestionType = "image-upload"
)

// IsObjective reports whether the type is auto-gradable.
func (t QuestionType) IsObjective() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeTrueFalse
}

// Question is one item in a course's question bank. CorrectAnswer is
// type-dependent: a JSON string (one of Options) for multiple-choice, a JSON
// boolean for tf, and absent for essay and image-upload.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	CourseID      uuid.UUID       `json:"course_id"`
	Type          QuestionType    `json:"type"`
	Content       string          `json:"content"`
	Options       []string        `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Points        float64         `json:"points"`
	CreatedBy     *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CorrectOption returns the multiple-choice answer key, if one is stored.
func (q *Question) CorrectOption() (string, bool) {
	var s string
	if err := json.Unmarshal(q.CorrectAnswer, &s); err != nil {
		return "", false
	}
	return s, true
}

// CorrectBool returns the true/false answer key, if one is stored.
func (q *Question) CorrectBool() (bool, bool) {
	var b bool
	if err := json.Unmarshal(q.CorrectAnswer, &b); err != nil {
		return false, false
	}
	return b, true
}

// MaxPoints returns the question's point value, defaulting to 1 when the
// stored value is malformed or non-positive.
func (q *Question) MaxPoints() float64 {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// QuestionForStudent is a question with the answer key stripped, safe to send
// to a student while the attempt is in progress.
type QuestionForStudent struct {
	ID      uuid.UUID    `json:"id"`
	Type    QuestionType `json:"type"`
	Content string       `json:"content"`
	Options []string     `json:"options,omitempty"`
	Points  float64      `json:"points"`
}

// ForStudent strips the answer key from a question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:      q.ID,
		Type:    q.Type,
		Content: q.Content,
		Options: q.Options,
		Points:  q.MaxPoints(),
	}
}

// CreateQuestionRequest is the payload for adding a question to a course bank.
// Type-shape invariants (options for multiple-choice, boolean key for tf) are
// enforced in the service, not here.
type CreateQuestionRequest struct {
	Type          string          `json:"type" binding:"required,oneof=essay multiple-choice tf image-upload"`
	Content       string          `json:"content" binding:"required,min=1,max=4000"`
	Options       []string        `json:"options" binding:"omitempty,dive,min=1"`
	CorrectAnswer json.RawMessage `json:"correct_answer" binding:"omitempty"`
	Points        *float64        `json:"points" binding:"omitempty,gt=0"`
}
