package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/model"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
	"github.com/stemsi/examsim-backend/internal/validator"
)

// ExamSessionHandler handles exam session endpoints.
type ExamSessionHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewExamSessionHandler creates a new ExamSessionHandler.
func NewExamSessionHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *ExamSessionHandler {
	return &ExamSessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "exam_session_handler").Logger(),
	}
}

// sessionTarget extracts the caller and the session id from the request. It
// writes the error response itself and returns ok=false on failure.
func sessionTarget(c *gin.Context) (ownerID string, id uuid.UUID, ok bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", uuid.Nil, false
	}
	return claims.OwnerID(), id, true
}

// StartSession godoc
// POST /api/v1/sessions
// Builds a session from the question bank and starts its clock.
func (h *ExamSessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessionService.Start(c.Request.Context(), claims.OwnerID(), &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": view})
}

// ListSessions godoc
// GET /api/v1/sessions?status=active|ended&page=1&per_page=20
// Lists the caller's sessions from durable storage.
func (h *ExamSessionHandler) ListSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.ListSessionsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sessions, pagination, err := h.sessionService.List(c.Request.Context(), claims.OwnerID(), &q)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if sessions == nil {
		sessions = []model.SessionSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"sessions": sessions}, pagination)
}

// GetSession godoc
// GET /api/v1/sessions/:id
// Returns the session state. Answers stay hidden until they may be shown.
func (h *ExamSessionHandler) GetSession(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Get(c.Request.Context(), ownerID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SelectAnswer godoc
// POST /api/v1/sessions/:id/answer
func (h *ExamSessionHandler) SelectAnswer(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.OptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.SelectAnswer(c.Request.Context(), ownerID, id, req.QuestionID, *req.OptionIndex)
	h.writeResult(c, res, err)
}

// ToggleStrike godoc
// POST /api/v1/sessions/:id/strike
func (h *ExamSessionHandler) ToggleStrike(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.OptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.ToggleStrike(c.Request.Context(), ownerID, id, req.QuestionID, *req.OptionIndex)
	h.writeResult(c, res, err)
}

// ToggleFlag godoc
// POST /api/v1/sessions/:id/flag
func (h *ExamSessionHandler) ToggleFlag(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.ToggleFlag(c.Request.Context(), ownerID, id, req.QuestionID)
	h.writeResult(c, res, err)
}

// SetConfidence godoc
// POST /api/v1/sessions/:id/confidence
// An empty level clears the confidence marker.
func (h *ExamSessionHandler) SetConfidence(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.ConfidenceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.SetConfidence(c.Request.Context(), ownerID, id, req.QuestionID, req.Level)
	h.writeResult(c, res, err)
}

// AddHighlight godoc
// POST /api/v1/sessions/:id/highlights
func (h *ExamSessionHandler) AddHighlight(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.HighlightRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	hl := model.Highlight{Start: req.Start, End: req.End, Color: req.Color}
	res, err := h.sessionService.AddHighlight(c.Request.Context(), ownerID, id, req.QuestionID, hl)
	h.writeResult(c, res, err)
}

// ClearHighlights godoc
// DELETE /api/v1/sessions/:id/questions/:qid/highlights
func (h *ExamSessionHandler) ClearHighlights(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	res, err := h.sessionService.ClearHighlights(c.Request.Context(), ownerID, id, c.Param("qid"))
	h.writeResult(c, res, err)
}

// Navigate godoc
// POST /api/v1/sessions/:id/navigate
func (h *ExamSessionHandler) Navigate(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Navigate(c.Request.Context(), ownerID, id, req.Action, req.Index)
	h.writeResult(c, res, err)
}

// EndSession godoc
// POST /api/v1/sessions/:id/end
// Submits the session. Ending twice is not an error.
func (h *ExamSessionHandler) EndSession(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	res, err := h.sessionService.End(c.Request.Context(), ownerID, id)
	h.writeResult(c, res, err)
}

// EnterReview godoc
// POST /api/v1/sessions/:id/review
func (h *ExamSessionHandler) EnterReview(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	view, err := h.sessionService.EnterReview(c.Request.Context(), ownerID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// SuspendSession godoc
// POST /api/v1/sessions/:id/suspend
// Saves the session and releases it from memory. The clock does not run
// while suspended.
func (h *ExamSessionHandler) SuspendSession(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	if err := h.sessionService.Suspend(c.Request.Context(), ownerID, id); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "suspended"})
}

// GetNavigator godoc
// GET /api/v1/sessions/:id/navigator
func (h *ExamSessionHandler) GetNavigator(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	nav, err := h.sessionService.Navigator(c.Request.Context(), ownerID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"navigator": nav})
}

// GetReport godoc
// GET /api/v1/sessions/:id/report
// Available once the session has ended.
func (h *ExamSessionHandler) GetReport(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	report, err := h.sessionService.Report(c.Request.Context(), ownerID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// GetFeedback godoc
// GET /api/v1/sessions/:id/questions/:qid/feedback
func (h *ExamSessionHandler) GetFeedback(c *gin.Context) {
	ownerID, id, ok := sessionTarget(c)
	if !ok {
		return
	}

	fb, err := h.sessionService.Feedback(c.Request.Context(), ownerID, id, c.Param("qid"))
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"feedback": fb})
}

func (h *ExamSessionHandler) writeResult(c *gin.Context, res *service.CommandResult, err error) {
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
