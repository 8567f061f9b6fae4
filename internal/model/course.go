package model

import (
	"time"

	"github.com/google/uuid"
)

// Course represents a course owning a question bank and an enrollment roster.
type Course struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	CourseCode  string     `json:"course_code"`
	Description string     `json:"description,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EnrollmentRequest is a pending student request to join a course.
type EnrollmentRequest struct {
	CourseID    uuid.UUID `json:"course_id"`
	StudentID   uuid.UUID `json:"student_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// CreateCourseRequest is the payload for creating a new course.
type CreateCourseRequest struct {
	Title       string `json:"title" binding:"required,min=3,max=255"`
	CourseCode  string `json:"course_code" binding:"required,min=2,max=20"`
	Description string `json:"description" binding:"omitempty,max=2000"`
}
