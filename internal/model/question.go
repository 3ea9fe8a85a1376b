package model

import (
	"encoding/json"
	"fmt"
)

// Difficulty is informational metadata attached to a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ExamQuestion is an immutable question as supplied by the question bank.
type ExamQuestion struct {
	ID                   string     `json:"id"`
	Stem                 string     `json:"stem"`
	Options              []string   `json:"options"`
	CorrectIndex         int        `json:"correct_index"`
	Explanation          string     `json:"explanation"`
	EducationalObjective string     `json:"educational_objective"`
	Category             string     `json:"category"`
	Subcategory          string     `json:"subcategory"`
	TopicTags            []string   `json:"topic_tags"`
	PeerPerformance      *float64   `json:"peer_performance,omitempty"`
	Difficulty           Difficulty `json:"difficulty"`
}

// QuestionRow is the question bank's storage shape (options and tags as JSONB).
type QuestionRow struct {
	ID                   string          `json:"id"`
	Stem                 string          `json:"stem"`
	Options              json.RawMessage `json:"options"`
	CorrectIndex         int             `json:"correct_index"`
	Explanation          string          `json:"explanation"`
	EducationalObjective string          `json:"educational_objective"`
	Category             string          `json:"category"`
	Subcategory          string          `json:"subcategory"`
	TopicTags            json.RawMessage `json:"topic_tags"`
	PeerPerformance      *float64        `json:"peer_performance,omitempty"`
	Difficulty           Difficulty      `json:"difficulty"`
}

// CategoryCount summarizes how many bank questions exist per category/subcategory.
type CategoryCount struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Count       int    `json:"count"`
}

// ImportQuestionRequest is one entry of a question bank import file.
type ImportQuestionRequest struct {
	ID                   string   `json:"id" validate:"required,max=64"`
	Stem                 string   `json:"stem" validate:"required"`
	Options              []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectIndex         int      `json:"correct_index" validate:"min=0"`
	Explanation          string   `json:"explanation"`
	EducationalObjective string   `json:"educational_objective"`
	Category             string   `json:"category" validate:"required,max=100"`
	Subcategory          string   `json:"subcategory" validate:"max=100"`
	TopicTags            []string `json:"topic_tags"`
	PeerPerformance      *float64 `json:"peer_performance" validate:"omitempty,min=0,max=100"`
	Difficulty           string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// ToQuestion decodes the JSONB columns of a stored row.
func (r QuestionRow) ToQuestion() (ExamQuestion, error) {
	q := ExamQuestion{
		ID:                   r.ID,
		Stem:                 r.Stem,
		CorrectIndex:         r.CorrectIndex,
		Explanation:          r.Explanation,
		EducationalObjective: r.EducationalObjective,
		Category:             r.Category,
		Subcategory:          r.Subcategory,
		PeerPerformance:      r.PeerPerformance,
		Difficulty:           r.Difficulty,
	}
	if err := json.Unmarshal(r.Options, &q.Options); err != nil {
		return ExamQuestion{}, fmt.Errorf("decode options of %s: %w", r.ID, err)
	}
	q.TopicTags = []string{}
	if len(r.TopicTags) > 0 {
		if err := json.Unmarshal(r.TopicTags, &q.TopicTags); err != nil {
			return ExamQuestion{}, fmt.Errorf("decode topic tags of %s: %w", r.ID, err)
		}
	}
	return q, nil
}

// NewQuestionRow encodes q into its storage shape.
func NewQuestionRow(q ExamQuestion) (QuestionRow, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return QuestionRow{}, err
	}
	tags := q.TopicTags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return QuestionRow{}, err
	}
	return QuestionRow{
		ID:                   q.ID,
		Stem:                 q.Stem,
		Options:              opts,
		CorrectIndex:         q.CorrectIndex,
		Explanation:          q.Explanation,
		EducationalObjective: q.EducationalObjective,
		Category:             q.Category,
		Subcategory:          q.Subcategory,
		TopicTags:            rawTags,
		PeerPerformance:      q.PeerPerformance,
		Difficulty:           q.Difficulty,
	}, nil
}

// ToQuestion converts an import entry into a bank question.
func (r ImportQuestionRequest) ToQuestion() ExamQuestion {
	diff := Difficulty(r.Difficulty)
	if diff == "" {
		diff = DifficultyMedium
	}
	return ExamQuestion{
		ID:                   r.ID,
		Stem:                 r.Stem,
		Options:              r.Options,
		CorrectIndex:         r.CorrectIndex,
		Explanation:          r.Explanation,
		EducationalObjective: r.EducationalObjective,
		Category:             r.Category,
		Subcategory:          r.Subcategory,
		TopicTags:            r.TopicTags,
		PeerPerformance:      r.PeerPerformance,
		Difficulty:           diff,
	}
}
