package websocket

import "github.com/stemsi/examsim-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer     Action = "answer"
	ActionStrike     Action = "strike"
	ActionFlag       Action = "flag"
	ActionConfidence Action = "confidence"
	ActionHighlight  Action = "highlight"
	ActionNavigate   Action = "navigate"
	ActionEnd        Action = "end"
	ActionPing       Action = "ping"
)

// RequestPayload carries every client command. Fields unused by an action
// are ignored.
type RequestPayload struct {
	Action      Action               `json:"action"`
	QuestionID  string               `json:"question_id,omitempty"`
	OptionIndex *int                 `json:"option_index,omitempty"`
	Level       model.Confidence     `json:"level,omitempty"`
	Nav         model.NavigateAction `json:"nav,omitempty"`
	Index       *int                 `json:"index,omitempty"`
	Start       int                  `json:"start,omitempty"`
	End         int                  `json:"end,omitempty"`
	Color       string               `json:"color,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventResult Event = "result"
	EventClosed Event = "closed"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateResponse is pushed on every tick and every accepted command.
type StateResponse struct {
	Event Event           `json:"event"`
	State model.TickState `json:"state"`
}

// ResultResponse answers a client command.
type ResultResponse struct {
	Event  Event       `json:"event"`
	Action Action      `json:"action"`
	Result interface{} `json:"result"`
}

// ClosedResponse tells the client the session left memory and the stream
// is about to close.
type ClosedResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
