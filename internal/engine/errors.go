package engine

import "errors"

// Domain errors.
var (
	ErrNoQuestions      = errors.New("session requires at least one question")
	ErrInvalidQuestion  = errors.New("invalid question")
	ErrInvalidMode      = errors.New("invalid session mode")
	ErrInvalidDuration  = errors.New("timed session requires a positive duration")
	ErrUnknownQuestion  = errors.New("question is not part of this session")
	ErrOptionOutOfRange = errors.New("option index out of range")
	ErrIndexOutOfRange  = errors.New("question index out of range")
	ErrInvalidHighlight = errors.New("invalid highlight range")
	ErrInvalidLevel     = errors.New("invalid confidence level")
	ErrSessionEnded     = errors.New("session has ended")
	ErrSessionActive    = errors.New("session has not ended")
	ErrSessionNotFound  = errors.New("session not found")
	ErrFeedbackHidden   = errors.New("feedback is not available yet")
	ErrInvalidSnapshot  = errors.New("invalid session snapshot")
)

// IsIgnorable reports whether err is a benign rejection that callers may drop,
// such as a stray command arriving after the session ended.
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrSessionEnded)
}

// IsRejected reports whether err rejected an operation without mutating state.
func IsRejected(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownQuestion),
		errors.Is(err, ErrOptionOutOfRange),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrInvalidHighlight),
		errors.Is(err, ErrInvalidLevel),
		errors.Is(err, ErrSessionEnded):
		return true
	}
	return false
}
