package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
)

// errInvalidCommand marks a malformed WebSocket command.
var errInvalidCommand = errors.New("invalid command")

// classify maps a domain error to its HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, errInvalidCommand):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, engine.ErrSessionActive):
		return http.StatusConflict, response.ErrSessionActive
	case errors.Is(err, engine.ErrSessionEnded):
		return http.StatusConflict, response.ErrSessionEnded
	case errors.Is(err, engine.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case errors.Is(err, service.ErrQuestionNotInBank),
		errors.Is(err, engine.ErrUnknownQuestion):
		return http.StatusUnprocessableEntity, response.ErrUnknownQuestion
	case errors.Is(err, engine.ErrOptionOutOfRange):
		return http.StatusUnprocessableEntity, response.ErrOptionOutOfRange
	case errors.Is(err, engine.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, response.ErrIndexOutOfRange
	case errors.Is(err, engine.ErrInvalidHighlight):
		return http.StatusUnprocessableEntity, response.ErrInvalidHighlight
	case errors.Is(err, engine.ErrInvalidLevel):
		return http.StatusUnprocessableEntity, response.ErrValidation
	case errors.Is(err, engine.ErrInvalidMode):
		return http.StatusBadRequest, response.ErrInvalidMode
	case errors.Is(err, engine.ErrInvalidDuration):
		return http.StatusBadRequest, response.ErrInvalidDuration
	case errors.Is(err, service.ErrTooManyQuestions):
		return http.StatusBadRequest, response.ErrTooManyQuestions
	case errors.Is(err, engine.ErrFeedbackHidden):
		return http.StatusForbidden, response.ErrFeedbackHidden
	case errors.Is(err, engine.ErrInvalidQuestion):
		return http.StatusInternalServerError, response.ErrInvalidQuestion
	case errors.Is(err, service.ErrPersistence):
		return http.StatusServiceUnavailable, response.ErrPersistenceFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes err as an API error. Unexpected errors are logged.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Str("session_id", c.GetString(response.ContextKeySessionID)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
