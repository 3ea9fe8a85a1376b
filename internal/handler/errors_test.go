package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/examsim-backend/internal/engine"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{engine.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{fmt.Errorf("load: %w", engine.ErrSessionNotFound), http.StatusNotFound, response.ErrSessionNotFound},
		{fmt.Errorf("%w: q7", service.ErrQuestionNotInBank), http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
		{fmt.Errorf("%w: 500 > 200", service.ErrTooManyQuestions), http.StatusBadRequest, response.ErrTooManyQuestions},
		{fmt.Errorf("%w: redis down", service.ErrPersistence), http.StatusServiceUnavailable, response.ErrPersistenceFailed},
		{fmt.Errorf("%w: unknown action", errInvalidCommand), http.StatusBadRequest, response.ErrValidation},
		{engine.ErrFeedbackHidden, http.StatusForbidden, response.ErrFeedbackHidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
