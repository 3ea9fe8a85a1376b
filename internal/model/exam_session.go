package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode enumerates exam session modes.
type Mode string

const (
	ModeTutor  Mode = "tutor"
	ModeTimed  Mode = "timed"
	ModeReview Mode = "review"
)

// EndReason records why a session was finalized.
type EndReason string

const (
	EndReasonTimeout   EndReason = "timeout"
	EndReasonSubmitted EndReason = "submitted"
)

// Confidence is the self-reported certainty attached to an answer.
type Confidence string

const (
	ConfidenceNone   Confidence = ""
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence level (empty allowed).
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceNone, ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Highlight is an opaque text-range marker within a question stem.
type Highlight struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Color string `json:"color,omitempty"`
}

// QuestionResponse is the per-question interaction state.
type QuestionResponse struct {
	SelectedIndex *int        `json:"selected_index"`
	Struck        []int       `json:"struck"` // sorted, unique
	IsFlagged     bool        `json:"is_flagged"`
	TimeSpent     int         `json:"time_spent"`
	Highlights    []Highlight `json:"highlights"`
	Confidence    Confidence  `json:"confidence,omitempty"`
}

// IsStruck reports whether option index is currently struck.
func (r *QuestionResponse) IsStruck(index int) bool {
	for _, s := range r.Struck {
		if s == index {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the response.
func (r *QuestionResponse) Clone() *QuestionResponse {
	c := *r
	if r.SelectedIndex != nil {
		v := *r.SelectedIndex
		c.SelectedIndex = &v
	}
	c.Struck = append(make([]int, 0, len(r.Struck)), r.Struck...)
	c.Highlights = append(make([]Highlight, 0, len(r.Highlights)), r.Highlights...)
	return &c
}

// ExamSession is the root aggregate for one exam attempt.
type ExamSession struct {
	ID              uuid.UUID                    `json:"id"`
	OwnerID         string                       `json:"owner_id"`
	Questions       []ExamQuestion               `json:"questions"`
	Responses       map[string]*QuestionResponse `json:"responses"`
	CurrentIndex    int                          `json:"current_index"`
	Mode            Mode                         `json:"mode"`
	InitialMode     Mode                         `json:"initial_mode"`
	DurationSeconds int                          `json:"duration_seconds"`
	TimeRemaining   int                          `json:"time_remaining"`
	ElapsedSeconds  int                          `json:"elapsed_seconds"`
	IsEnded         bool                         `json:"is_ended"`
	EndReason       EndReason                    `json:"end_reason,omitempty"`
	StartedAt       time.Time                    `json:"started_at"`
	EndedAt         *time.Time                   `json:"ended_at,omitempty"`
	Version         int64                        `json:"version"`
}

// Clone returns a deep copy; questions are immutable and shared.
func (s *ExamSession) Clone() *ExamSession {
	c := *s
	c.Responses = make(map[string]*QuestionResponse, len(s.Responses))
	for id, r := range s.Responses {
		c.Responses[id] = r.Clone()
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// QuestionByID returns the question with the given id and its index.
func (s *ExamSession) QuestionByID(id string) (*ExamQuestion, int, bool) {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i], i, true
		}
	}
	return nil, -1, false
}

// StartSessionRequest is the payload for starting a new exam session.
type StartSessionRequest struct {
	QuestionIDs     []string `json:"question_ids" binding:"omitempty,max=400,dive,required,max=64"`
	Category        string   `json:"category" binding:"omitempty,max=100"`
	Subcategory     string   `json:"subcategory" binding:"omitempty,max=100"`
	Count           int      `json:"count" binding:"omitempty,min=1,max=400"`
	Mode            Mode     `json:"mode" binding:"required,oneof=tutor timed"`
	DurationSeconds int      `json:"duration_seconds" binding:"omitempty,min=1,max=86400"`
}

// OptionRequest addresses one option of one question.
type OptionRequest struct {
	QuestionID  string `json:"question_id" binding:"required,max=64"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

// QuestionRequest addresses a single question.
type QuestionRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
}

// ConfidenceRequest sets the confidence level for a question.
type ConfidenceRequest struct {
	QuestionID string     `json:"question_id" binding:"required,max=64"`
	Level      Confidence `json:"level" binding:"omitempty,oneof=low medium high"`
}

// HighlightRequest adds a highlight marker to a question stem.
type HighlightRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
	Start      int    `json:"start" binding:"min=0"`
	End        int    `json:"end" binding:"required,gtfield=Start"`
	Color      string `json:"color" binding:"omitempty,max=32"`
}

// NavigateAction enumerates navigation commands.
type NavigateAction string

const (
	NavigateNext NavigateAction = "next"
	NavigatePrev NavigateAction = "prev"
	NavigateGoTo NavigateAction = "goto"
)

// NavigateRequest moves the current question pointer.
type NavigateRequest struct {
	Action NavigateAction `json:"action" binding:"required,oneof=next prev goto"`
	Index  *int           `json:"index" binding:"required_if=Action goto"`
}

// SessionSummary is a listing row for an owner's sessions.
type SessionSummary struct {
	ID            uuid.UUID  `json:"id"`
	Mode          Mode       `json:"mode"`
	InitialMode   Mode       `json:"initial_mode"`
	QuestionCount int        `json:"question_count"`
	TimeRemaining int        `json:"time_remaining"`
	IsEnded       bool       `json:"is_ended"`
	EndReason     EndReason  `json:"end_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// ListSessionsQuery filters an owner's session listing.
type ListSessionsQuery struct {
	Status  string `form:"status" binding:"omitempty,oneof=active ended"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}
