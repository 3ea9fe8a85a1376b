package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
	"github.com/stemsi/examsim-backend/internal/validator"
)

type progressQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ProgressHandler serves the caller's aggregated answer history.
type ProgressHandler struct {
	progressService *service.ProgressService
	log             zerolog.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(progressService *service.ProgressService, log zerolog.Logger) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		log:             log.With().Str("component", "progress_handler").Logger(),
	}
}

// GetProgress godoc
// GET /api/v1/progress?limit=100
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q progressQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rows, err := h.progressService.History(c.Request.Context(), claims.OwnerID(), q.Limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"progress": rows})
}
