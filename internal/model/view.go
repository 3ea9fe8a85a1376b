package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionView is a question as shown to the candidate. Answer fields are
// only populated once feedback for the question is visible.
type QuestionView struct {
	ID                   string     `json:"id"`
	Stem                 string     `json:"stem"`
	Options              []string   `json:"options"`
	Category             string     `json:"category"`
	Subcategory          string     `json:"subcategory"`
	Difficulty           Difficulty `json:"difficulty"`
	CorrectIndex         *int       `json:"correct_index,omitempty"`
	Explanation          string     `json:"explanation,omitempty"`
	EducationalObjective string     `json:"educational_objective,omitempty"`
	PeerPerformance      *float64   `json:"peer_performance,omitempty"`
}

// SessionView is the client-facing projection of an ExamSession.
type SessionView struct {
	ID             uuid.UUID                    `json:"id"`
	Mode           Mode                         `json:"mode"`
	InitialMode    Mode                         `json:"initial_mode"`
	CurrentIndex   int                          `json:"current_index"`
	TimeRemaining  int                          `json:"time_remaining"`
	ElapsedSeconds int                          `json:"elapsed_seconds"`
	IsEnded        bool                         `json:"is_ended"`
	EndReason      EndReason                    `json:"end_reason,omitempty"`
	StartedAt      time.Time                    `json:"started_at"`
	EndedAt        *time.Time                   `json:"ended_at,omitempty"`
	Version        int64                        `json:"version"`
	Questions      []QuestionView               `json:"questions"`
	Responses      map[string]*QuestionResponse `json:"responses"`
}

// TickState is the compact state pushed to stream subscribers.
type TickState struct {
	SessionID     uuid.UUID `json:"session_id"`
	Mode          Mode      `json:"mode"`
	CurrentIndex  int       `json:"current_index"`
	TimeRemaining int       `json:"time_remaining"`
	IsEnded       bool      `json:"is_ended"`
	Version       int64     `json:"version"`
}
