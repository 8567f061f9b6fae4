package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam / attempt state ──────────────────────────────────────────
	ErrExamNotAvailable       ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamPublished          ErrCode = "EXAM_ALREADY_PUBLISHED"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrInsufficientPool       ErrCode = "INSUFFICIENT_QUESTION_POOL"
	ErrAttemptSubmitted       ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrAttemptNotSubmitted    ErrCode = "ATTEMPT_NOT_SUBMITTED"
	ErrAttemptExpired         ErrCode = "ATTEMPT_EXPIRED"
	ErrReviewAlreadyRequested ErrCode = "REVIEW_ALREADY_REQUESTED"
	ErrNoReviewRequest        ErrCode = "NO_REVIEW_REQUEST"
	ErrQuestionNotInAttempt   ErrCode = "QUESTION_NOT_IN_ATTEMPT"
	ErrNotImageQuestion       ErrCode = "NOT_IMAGE_QUESTION"
	ErrNoPendingEnrollment    ErrCode = "NO_PENDING_ENROLLMENT"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamPublished:
		return "This exam is already published; its question set is locked."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrInsufficientPool:
		return "The course question pool cannot satisfy the requested composition."
	case ErrAttemptSubmitted:
		return "This attempt has already been submitted."
	case ErrAttemptNotSubmitted:
		return "This attempt has not been submitted yet."
	case ErrAttemptExpired:
		return "Time is up for this attempt."
	case ErrReviewAlreadyRequested:
		return "A review has already been requested for this attempt."
	case ErrNoReviewRequest:
		return "No review request exists for this attempt."
	case ErrQuestionNotInAttempt:
		return "This question is not part of the attempt."
	case ErrNotImageQuestion:
		return "This question does not accept an image answer."
	case ErrNoPendingEnrollment:
		return "No pending enrollment request for this student."

	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
