package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
	"github.com/examly/examly-backend/internal/validator"
)

// CourseHandler handles course and enrollment endpoints.
type CourseHandler struct {
	courseService *service.CourseService
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courseService *service.CourseService) *CourseHandler {
	return &CourseHandler{courseService: courseService}
}

// Create godoc
// POST /api/v1/courses
func (h *CourseHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateCourseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	course, err := h.courseService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"course": course})
}

// List godoc
// GET /api/v1/courses
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courseService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// ListMine godoc
// GET /api/v1/courses/mine
// Lists the courses the authenticated student is enrolled in.
func (h *CourseHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)

	courses, err := h.courseService.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// Get godoc
// GET /api/v1/courses/:id
func (h *CourseHandler) Get(c *gin.Context) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	course, err := h.courseService.Get(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"course": course})
}

// RequestEnrollment godoc
// POST /api/v1/courses/:id/enroll
// Files (or re-files, as a no-op) a pending enrollment request.
func (h *CourseHandler) RequestEnrollment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := h.courseService.RequestEnrollment(c.Request.Context(), courseID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCourseNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAlreadyEnrolled):
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"status": "pending"})
}

// ListEnrollmentRequests godoc
// GET /api/v1/courses/:id/enrollment-requests
func (h *CourseHandler) ListEnrollmentRequests(c *gin.Context) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	requests, err := h.courseService.ListEnrollmentRequests(c.Request.Context(), courseID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"requests": requests})
}

// ApproveEnrollment godoc
// POST /api/v1/courses/:id/enrollment-requests/:studentId/approve
func (h *CourseHandler) ApproveEnrollment(c *gin.Context) {
	h.decideEnrollment(c, true)
}

// RejectEnrollment godoc
// POST /api/v1/courses/:id/enrollment-requests/:studentId/reject
func (h *CourseHandler) RejectEnrollment(c *gin.Context) {
	h.decideEnrollment(c, false)
}

func (h *CourseHandler) decideEnrollment(c *gin.Context, approve bool) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := parseIDParam(c, "studentId")
	if !ok {
		return
	}

	var err error
	if approve {
		err = h.courseService.ApproveEnrollment(c.Request.Context(), courseID, studentID)
	} else {
		err = h.courseService.RejectEnrollment(c.Request.Context(), courseID, studentID)
	}
	if err != nil {
		if errors.Is(err, service.ErrNoPendingEnrollment) {
			response.Fail(c, http.StatusNotFound, response.ErrNoPendingEnrollment)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	status := "rejected"
	if approve {
		status = "enrolled"
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// ListStudents godoc
// GET /api/v1/courses/:id/students
func (h *CourseHandler) ListStudents(c *gin.Context) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	students, err := h.courseService.ListStudents(c.Request.Context(), courseID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"students": students})
}

// parseIDParam parses a UUID path param, failing the request on bad input.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
