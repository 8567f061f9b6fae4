package model

import (
	"time"

	"github.com/google/uuid"
)

// SelectionMode determines how an exam's question list is produced.
type SelectionMode string

const (
	SelectionModeManual SelectionMode = "manual"
	SelectionModeRandom SelectionMode = "random"
)

// RandomConfig is the composition for random question selection: how many
// questions of each type to draw from the course pool.
type RandomConfig struct {
	MCCount      int  `json:"mc_count"`
	TFCount      int  `json:"tf_count"`
	ImageCount   int  `json:"image_count"`
	EssayCount   int  `json:"essay_count"`
	PerStudent   bool `json:"per_student"`
	ShuffleOrder bool `json:"shuffle_order"`
}

// TypedTotal returns the sum of the per-type counts.
func (c RandomConfig) TypedTotal() int {
	return c.MCCount + c.TFCount + c.ImageCount + c.EssayCount
}

// Exam identifies a scheduled assessment.
type Exam struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	Date            time.Time     `json:"date"`
	DurationMinutes int           `json:"duration_minutes"`
	CourseID        *uuid.UUID    `json:"course_id,omitempty"`
	SelectionMode   SelectionMode `json:"selection_mode"`
	QuestionIDs     []uuid.UUID   `json:"question_ids,omitempty"`
	RandomConfig    *RandomConfig `json:"random_config,omitempty"`
	QuestionCount   int           `json:"question_count"`
	Published       bool          `json:"published"`
	PublishedAt     *time.Time    `json:"published_at,omitempty"`
	CreatedBy       *uuid.UUID    `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EndsAt returns the moment the exam's availability window closes.
func (e *Exam) EndsAt() time.Time {
	return e.Date.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// AvailableAt reports whether the exam can be started at the given instant:
// it must be published and the instant must fall inside the scheduled window.
func (e *Exam) AvailableAt(now time.Time) bool {
	return e.Published && !now.Before(e.Date) && !now.After(e.EndsAt())
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string        `json:"title" binding:"required,min=3,max=255"`
	Description     string        `json:"description" binding:"omitempty,max=2000"`
	Date            time.Time     `json:"date" binding:"required"`
	DurationMinutes int           `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	CourseID        *uuid.UUID    `json:"course_id" binding:"omitempty"`
	SelectionMode   string        `json:"selection_mode" binding:"omitempty,oneof=manual random"`
	QuestionIDs     []uuid.UUID   `json:"question_ids" binding:"omitempty"`
	RandomConfig    *RandomConfig `json:"random_config" binding:"omitempty"`
	QuestionCount   int           `json:"question_count" binding:"omitempty,min=1"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title           string        `json:"title" binding:"omitempty,min=3,max=255"`
	Description     *string       `json:"description" binding:"omitempty,max=2000"`
	Date            *time.Time    `json:"date" binding:"omitempty"`
	DurationMinutes *int          `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	RandomConfig    *RandomConfig `json:"random_config" binding:"omitempty"`
	QuestionCount   *int          `json:"question_count" binding:"omitempty,min=1"`
}

// SetExamQuestionsRequest replaces an unpublished exam's manual question list.
type SetExamQuestionsRequest struct {
	QuestionIDs []uuid.UUID `json:"question_ids" binding:"required"`
}
