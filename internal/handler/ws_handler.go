package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examsim-backend/internal/middleware"
	"github.com/stemsi/examsim-backend/internal/model"
	"github.com/stemsi/examsim-backend/internal/response"
	"github.com/stemsi/examsim-backend/internal/service"
	ws "github.com/stemsi/examsim-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session state and accepts commands over WebSocket.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream?token=...
// Pushes the session state on every tick and change, and accepts the same
// commands as the REST endpoints.
func (h *WSHandler) SessionStream(c *gin.Context) {
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
	ownerID := claims.OwnerID()

	// Subscribe before upgrading so a missing session is a plain 404.
	sub, err := h.sessionService.Subscribe(c.Request.Context(), ownerID, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	defer sub.Close()

	// The handshake echoes the request id so clients can quote it in reports.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, http.Header{
		response.HeaderRequestID: []string{response.RequestID(c)},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("owner_id", ownerID).
		Str("session_id", id.String()).
		Str("request_id", response.RequestID(c)).
		Logger()
	wsLog.Info().Msg("Client connected")

	w := ws.NewWriter(conn)
	if err := w.WriteTyped(ws.StateResponse{Event: ws.EventState, State: sub.Initial}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readLoop(ctx, conn, w, wsLog, ownerID, id)
	}()

	for {
		select {
		case <-readDone:
			return
		case st, ok := <-sub.Updates:
			if !ok {
				// Session suspended or retired.
				_ = w.WriteTyped(ws.ClosedResponse{Event: ws.EventClosed})
				_ = w.WriteClose("session closed")
				return
			}
			if err := w.WriteTyped(ws.StateResponse{Event: ws.EventState, State: st}); err != nil {
				wsLog.Debug().Err(err).Msg("State push failed")
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, w *ws.Writer, wsLog zerolog.Logger, ownerID string, id uuid.UUID) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if msg.Action == ws.ActionPing {
			_ = w.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			continue
		}

		res, err := h.dispatch(ctx, ownerID, id, &msg)
		if err != nil {
			status, code := classify(err)
			if status >= http.StatusInternalServerError {
				wsLog.Error().Err(err).Str("action", string(msg.Action)).Msg("Command failed")
			}
			_ = w.WriteError(msg.Action, string(code), response.GetMessage(code))
			continue
		}
		_ = w.WriteTyped(ws.ResultResponse{Event: ws.EventResult, Action: msg.Action, Result: res})
	}
}

func (h *WSHandler) dispatch(ctx context.Context, ownerID string, id uuid.UUID, msg *ws.RequestPayload) (*service.CommandResult, error) {
	svc := h.sessionService
	switch msg.Action {
	case ws.ActionAnswer, ws.ActionStrike:
		if msg.OptionIndex == nil {
			return nil, fmt.Errorf("%w: option_index is required", errInvalidCommand)
		}
		if msg.Action == ws.ActionAnswer {
			return svc.SelectAnswer(ctx, ownerID, id, msg.QuestionID, *msg.OptionIndex)
		}
		return svc.ToggleStrike(ctx, ownerID, id, msg.QuestionID, *msg.OptionIndex)
	case ws.ActionFlag:
		return svc.ToggleFlag(ctx, ownerID, id, msg.QuestionID)
	case ws.ActionConfidence:
		return svc.SetConfidence(ctx, ownerID, id, msg.QuestionID, msg.Level)
	case ws.ActionHighlight:
		return svc.AddHighlight(ctx, ownerID, id, msg.QuestionID, model.Highlight{Start: msg.Start, End: msg.End, Color: msg.Color})
	case ws.ActionNavigate:
		switch msg.Nav {
		case model.NavigateNext, model.NavigatePrev, model.NavigateGoTo:
		default:
			return nil, fmt.Errorf("%w: nav must be next, prev or goto", errInvalidCommand)
		}
		return svc.Navigate(ctx, ownerID, id, msg.Nav, msg.Index)
	case ws.ActionEnd:
		return svc.End(ctx, ownerID, id)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", errInvalidCommand, msg.Action)
	}
}
