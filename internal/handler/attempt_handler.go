package handler

import (
	"encoding/json"
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

// AttemptHandler handles the student attempt lifecycle: start, autosave,
// image uploads, submit, and review requests.
type AttemptHandler struct {
	attemptService *service.AttemptService
	reviewService  *service.ReviewService
	mediaService   *service.MediaService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	attemptService *service.AttemptService,
	reviewService *service.ReviewService,
	mediaService *service.MediaService,
) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		reviewService:  reviewService,
		mediaService:   mediaService,
	}
}

// Start godoc
// POST /api/v1/exams/:id/attempt
// Starts the student's attempt, or resumes the existing one. An expired
// attempt is auto-submitted here and reported as inactive.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	res, err := h.attemptService.StartAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Active godoc
// GET /api/v1/attempts/active
// Reports the student's in-progress attempt, if any.
func (h *AttemptHandler) Active(c *gin.Context) {
	claims := middleware.GetClaims(c)

	status, err := h.attemptService.GetActiveAttempt(c.Request.Context(), claims.UserID)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// Autosave godoc
// PUT /api/v1/attempts/:id/answers
// Saves a batch of draft answers and echoes the merged draft back.
func (h *AttemptHandler) Autosave(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	draft, err := h.attemptService.Autosave(c.Request.Context(), attemptID, claims.UserID, req.Answers)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answers": draftToJSON(draft)})
}

// UploadImageAnswer godoc
// POST /api/v1/attempts/:id/answers/:questionId/image
// Stores an uploaded image as the draft answer for an image-upload question.
func (h *AttemptHandler) UploadImageAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := parseIDParam(c, "questionId")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	img, err := h.mediaService.SaveAnswerImage(file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	upload, err := h.attemptService.SaveImageAnswer(c.Request.Context(), attemptID, claims.UserID, questionID, *img)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, upload)
}

// Submit godoc
// POST /api/v1/attempts/:id/submit
// Grades and finalizes the attempt. Without an explicit answer list the
// stored draft is submitted.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, req.Answers)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RequestReview godoc
// POST /api/v1/attempts/:id/review-request
// Files the student's request for a manual review of a submitted attempt.
func (h *AttemptHandler) RequestReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.RequestReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	info, err := h.reviewService.RequestReview(c.Request.Context(), attemptID, claims.UserID, req.Message)
	if err != nil {
		h.failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusCreated, info)
}

// failAttempt maps attempt lifecycle errors to API error responses.
func (h *AttemptHandler) failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrInsufficientPool):
		response.FailWithFields(c, http.StatusConflict, response.ErrInsufficientPool,
			map[string]string{"detail": err.Error()})
	case errors.Is(err, service.ErrNotAttemptOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrAttemptSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptSubmitted)
	case errors.Is(err, service.ErrAttemptNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotSubmitted)
	case errors.Is(err, service.ErrAttemptExpired):
		response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrReviewAlreadyRequested):
		response.Fail(c, http.StatusConflict, response.ErrReviewAlreadyRequested)
	case errors.Is(err, service.ErrQuestionNotInAttempt):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrQuestionNotInAttempt)
	case errors.Is(err, service.ErrNotImageQuestion):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNotImageQuestion)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// draftToJSON renders a draft answer map with string keys for the response body.
func draftToJSON(draft map[uuid.UUID]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(draft))
	for id, answer := range draft {
		out[id.String()] = answer
	}
	return out
}
