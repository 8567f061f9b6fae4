package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
	"github.com/examly/examly-backend/internal/validator"
)

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// Create godoc
// POST /api/v1/exams
func (h *ExamHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// Update godoc
// PATCH /api/v1/exams/:id
func (h *ExamHandler) Update(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, &req)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Get godoc
// GET /api/v1/exams/:id
func (h *ExamHandler) Get(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), examID)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Delete godoc
// DELETE /api/v1/exams/:id
func (h *ExamHandler) Delete(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID); err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// SetQuestions godoc
// PUT /api/v1/exams/:id/questions
// Replaces an unpublished exam's manual question list.
func (h *ExamHandler) SetQuestions(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.SetExamQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.SetQuestions(c.Request.Context(), examID, req.QuestionIDs)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Publish godoc
// POST /api/v1/exams/:id/publish
// Validates the question source and makes the exam visible to students.
func (h *ExamHandler) Publish(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), examID)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListByCourse godoc
// GET /api/v1/courses/:id/exams
func (h *ExamHandler) ListByCourse(c *gin.Context) {
	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exams, err := h.examService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetAvailable godoc
// GET /api/v1/exams/available
// Lists published exams open right now in the student's enrolled courses.
func (h *ExamHandler) GetAvailable(c *gin.Context) {
	claims := middleware.GetClaims(c)

	exams, err := h.examService.GetAvailable(c.Request.Context(), claims.UserID)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// failExam maps exam service errors to API error responses.
func (h *ExamHandler) failExam(c *gin.Context, err error) {
	var shortfall *service.PoolShortfallError
	switch {
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.As(err, &shortfall):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrInsufficientPool,
			map[string]string{"detail": shortfall.Error()})
	case errors.Is(err, service.ErrInsufficientPool):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInsufficientPool)
	case errors.Is(err, service.ErrSelectionBadCounts), errors.Is(err, service.ErrSelectionNoCourse):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"detail": err.Error()})
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
