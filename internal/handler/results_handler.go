package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
)

// ResultsHandler handles result and grade reporting endpoints.
type ResultsHandler struct {
	resultsService *service.ResultsService
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(resultsService *service.ResultsService) *ResultsHandler {
	return &ResultsHandler{resultsService: resultsService}
}

// ExamResults godoc
// GET /api/v1/exams/:id/results
// Lists every submitted attempt for the exam, best score first.
func (h *ResultsHandler) ExamResults(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	results, err := h.resultsService.GetExamResults(c.Request.Context(), examID)
	if err != nil {
		h.failResults(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}

// AttemptReview godoc
// GET /api/v1/attempts/:id/review
// Returns the per-question breakdown of a submitted attempt. Students may
// only read their own attempts.
func (h *ResultsHandler) AttemptReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	review, err := h.resultsService.GetAttemptReview(c.Request.Context(), attemptID, claims.UserID, claims.Role)
	if err != nil {
		h.failResults(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// MyGrades godoc
// GET /api/v1/grades
// Lists the authenticated student's grades across all submitted attempts.
func (h *ResultsHandler) MyGrades(c *gin.Context) {
	claims := middleware.GetClaims(c)

	grades, err := h.resultsService.GetMyGrades(c.Request.Context(), claims.UserID)
	if err != nil {
		h.failResults(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"grades": grades})
}

// StudentReview godoc
// GET /api/v1/students/:id/review
// Returns a per-course performance breakdown for one student.
func (h *ResultsHandler) StudentReview(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	review, err := h.resultsService.GetStudentReview(c.Request.Context(), studentID)
	if err != nil {
		h.failResults(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// failResults maps results service errors to API error responses.
func (h *ResultsHandler) failResults(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrAttemptNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotSubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
