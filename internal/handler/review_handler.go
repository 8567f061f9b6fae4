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

// ReviewHandler handles the instructor side of the review workflow.
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// Respond godoc
// POST /api/v1/attempts/:id/review-response
// Replies to a student's review request. A JSON null clears a stored field,
// a string sets it, and an absent field is left unchanged.
func (h *ReviewHandler) Respond(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.ReviewResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info, err := h.reviewService.RespondToReview(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		h.failReview(c, err)
		return
	}

	response.Success(c, http.StatusOK, info)
}

// Grade godoc
// POST /api/v1/attempts/:id/grade
// Applies manual point overrides and finalizes the attempt's grade.
func (h *ReviewHandler) Grade(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.GradeAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.reviewService.GradeAttempt(c.Request.Context(), attemptID, claims.UserID, req.PointsByQuestion)
	if err != nil {
		h.failReview(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// failReview maps review service errors to API error responses.
func (h *ReviewHandler) failReview(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotSubmitted)
	case errors.Is(err, service.ErrNoReviewRequest):
		response.Fail(c, http.StatusConflict, response.ErrNoReviewRequest)
	case errors.Is(err, service.ErrBadAppointmentDate), errors.Is(err, service.ErrBadReviewMessage):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"detail": err.Error()})
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
