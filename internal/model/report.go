package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStatus is the navigator status of a single question.
type QuestionStatus string

const (
	StatusFlagged     QuestionStatus = "flagged"
	StatusAttempted   QuestionStatus = "attempted"
	StatusUnattempted QuestionStatus = "unattempted"
)

// NavigatorEntry is one cell of the navigator grid.
type NavigatorEntry struct {
	Index      int            `json:"index"`
	QuestionID string         `json:"question_id"`
	Status     QuestionStatus `json:"status"`
	IsCurrent  bool           `json:"is_current"`
}

// NavigatorData is the full navigator projection with per-status totals.
type NavigatorData struct {
	Entries     []NavigatorEntry `json:"entries"`
	Flagged     int              `json:"flagged"`
	Attempted   int              `json:"attempted"`
	Unattempted int              `json:"unattempted"`
}

// GroupPerformance is the score breakdown of a group of questions.
type GroupPerformance struct {
	Name       string `json:"name"`
	Total      int    `json:"total"`
	Correct    int    `json:"correct"`
	Percentage int    `json:"percentage"`
	TimeSpent  int    `json:"time_spent"`
}

// QuestionResult is the per-question line of a report.
type QuestionResult struct {
	QuestionID    string `json:"question_id"`
	Category      string `json:"category"`
	SelectedIndex *int   `json:"selected_index"`
	CorrectIndex  int    `json:"correct_index"`
	IsCorrect     bool   `json:"is_correct"`
	IsFlagged     bool   `json:"is_flagged"`
	TimeSpent     int    `json:"time_spent"`
}

// Report is the scored result of a terminated session.
type Report struct {
	SessionID              uuid.UUID          `json:"session_id"`
	Mode                   Mode               `json:"mode"`
	EndReason              EndReason          `json:"end_reason"`
	TotalQuestions         int                `json:"total_questions"`
	Attempted              int                `json:"attempted"`
	Correct                int                `json:"correct"`
	Incorrect              int                `json:"incorrect"`
	Unattempted            int                `json:"unattempted"`
	Flagged                int                `json:"flagged"`
	PercentageCorrect      int                `json:"percentage_correct"`
	TotalTimeSpent         int                `json:"total_time_spent"`
	AverageTimePerQuestion float64            `json:"average_time_per_question"`
	SubjectPerformance     []GroupPerformance `json:"subject_performance"`
	SubcategoryPerformance []GroupPerformance `json:"subcategory_performance"`
	DifficultyPerformance  []GroupPerformance `json:"difficulty_performance"`
	Questions              []QuestionResult   `json:"questions"`
	StartedAt              time.Time          `json:"started_at"`
	EndedAt                *time.Time         `json:"ended_at,omitempty"`
}

// Feedback is the correctness of one answered question, when visible.
type Feedback struct {
	QuestionID           string   `json:"question_id"`
	SelectedIndex        int      `json:"selected_index"`
	CorrectIndex         int      `json:"correct_index"`
	IsCorrect            bool     `json:"is_correct"`
	Explanation          string   `json:"explanation"`
	EducationalObjective string   `json:"educational_objective,omitempty"`
	PeerPerformance      *float64 `json:"peer_performance,omitempty"`
}

// ProgressEvent is emitted on each answer submission for progress tracking.
type ProgressEvent struct {
	SessionID  uuid.UUID  `json:"session_id"`
	OwnerID    string     `json:"owner_id"`
	QuestionID string     `json:"question_id"`
	IsCorrect  bool       `json:"is_correct"`
	Confidence Confidence `json:"confidence"`
	AnsweredAt time.Time  `json:"answered_at"`
}

// ProgressAggregate is an owner's accumulated record for one question.
type ProgressAggregate struct {
	OwnerID        string     `json:"owner_id"`
	QuestionID     string     `json:"question_id"`
	Attempts       int        `json:"attempts"`
	Correct        int        `json:"correct"`
	LastCorrect    bool       `json:"last_correct"`
	LastConfidence Confidence `json:"last_confidence,omitempty"`
	LastAnsweredAt time.Time  `json:"last_answered_at"`
}
