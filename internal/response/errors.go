package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrNoSession        ErrCode = "NO_EXAM_SESSION"
	ErrNotStarted       ErrCode = "EXAM_NOT_STARTED"
	ErrAlreadySubmitted ErrCode = "EXAM_ALREADY_SUBMITTED"
	ErrUnknownOption    ErrCode = "UNKNOWN_OPTION"
	ErrNothingToRetry   ErrCode = "NOTHING_TO_RETRY"
	ErrRequestInFlight  ErrCode = "REQUEST_IN_FLIGHT"

	// ─── Exam service ──────────────────────────────────────────────────
	ErrStartFailed  ErrCode = "START_FAILED"
	ErrSubmitFailed ErrCode = "SUBMIT_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired. Please log in again."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrNoSession:
		return "No exam is open. Start an exam first."
	case ErrNotStarted:
		return "The exam has not started yet."
	case ErrAlreadySubmitted:
		return "The exam has already been submitted."
	case ErrUnknownOption:
		return "That option does not belong to the current question."
	case ErrNothingToRetry:
		return "There is no failed request to retry."
	case ErrRequestInFlight:
		return "A request to the exam service is still in progress."

	// ─── Exam service ──────────────────────────────────────────────────
	case ErrStartFailed:
		return "The exam could not be started. Check your connection and try again."
	case ErrSubmitFailed:
		return "Your answers are locked in, but the score could not be retrieved. Retry to resend them."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal error occurred."
	default:
		return "An unexpected error occurred."
	}
}
