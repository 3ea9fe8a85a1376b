package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrSessionActive     ErrCode = "SESSION_ACTIVE"
	ErrSessionEnded      ErrCode = "SESSION_ENDED"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrInvalidQuestion   ErrCode = "INVALID_QUESTION"
	ErrUnknownQuestion   ErrCode = "UNKNOWN_QUESTION"
	ErrOptionOutOfRange  ErrCode = "OPTION_OUT_OF_RANGE"
	ErrIndexOutOfRange   ErrCode = "INDEX_OUT_OF_RANGE"
	ErrInvalidHighlight  ErrCode = "INVALID_HIGHLIGHT"
	ErrInvalidMode       ErrCode = "INVALID_MODE"
	ErrInvalidDuration   ErrCode = "INVALID_DURATION"
	ErrTooManyQuestions  ErrCode = "TOO_MANY_QUESTIONS"
	ErrFeedbackHidden    ErrCode = "FEEDBACK_HIDDEN"
	ErrPersistenceFailed ErrCode = "PERSISTENCE_FAILED"

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
		return "An access token is required."
	case ErrTokenInvalid:
		return "The access token is invalid or has expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "The submitted data is invalid."
	case ErrInvalidID:
		return "The id format is invalid."
	case ErrInvalidPayload:
		return "The request body could not be read."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The requested resource was not found."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrSessionActive:
		return "The exam session has not ended yet."
	case ErrSessionEnded:
		return "The exam session has already ended."
	case ErrNoQuestions:
		return "No questions matched the selection."
	case ErrInvalidQuestion:
		return "The question bank returned a malformed question."
	case ErrUnknownQuestion:
		return "The question is not part of this session."
	case ErrOptionOutOfRange:
		return "The option index is out of range."
	case ErrIndexOutOfRange:
		return "The question index is out of range."
	case ErrInvalidHighlight:
		return "The highlight range is invalid."
	case ErrInvalidMode:
		return "The session mode is invalid."
	case ErrInvalidDuration:
		return "Timed sessions require a positive duration."
	case ErrTooManyQuestions:
		return "Too many questions requested for one session."
	case ErrFeedbackHidden:
		return "Feedback for this question is not available yet."
	case ErrPersistenceFailed:
		return "The session could not be saved. Please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."

	default:
		return "An unknown error occurred."
	}
}
