package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams session state over SSE for clients that cannot
// hold a WebSocket.
type MonitorHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

func NewMonitorHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// SessionEventsSSE godoc
// GET /api/v1/sessions/:id/events
func (h *MonitorHandler) SessionEventsSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sub, err := h.sessionService.Subscribe(c.Request.Context(), claims.OwnerID(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	defer sub.Close()

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("state", sub.Initial)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Debug().Str("session_id", id.String()).Msg("Client attached to session SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Str("session_id", id.String()).Msg("Client detached from session SSE")
			return

		case st, ok := <-sub.Updates:
			if !ok {
				c.SSEvent("closed", gin.H{"session_id": id})
				c.Writer.Flush()
				return
			}
			c.SSEvent("state", st)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{})
			c.Writer.Flush()
		}
	}
}
