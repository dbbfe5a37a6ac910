package dto

import (
	"time"

	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
)

// AnswerInput is one question's answer as sent by the client, both for autosave and submit.
type AnswerInput struct {
	QuestionID string `json:"question_id" binding:"required"`
	// SelectedOptionID is null or empty when the question was skipped.
	SelectedOptionID *string `json:"selected_option_id"`
	TimeSpentMs      int64   `json:"time_spent_ms"`
}

type SaveProgressRequest struct {
	Answers []AnswerInput `json:"answers" binding:"omitempty,dive"`
}

type TelemetryEventDTO struct {
	Type      string         `json:"type" binding:"required"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type SubmitExamRequest struct {
	// AttemptID is the id returned by start. Clients should always send it back.
	AttemptID string              `json:"attempt_id"`
	Answers   []AnswerInput       `json:"answers" binding:"omitempty,dive"`
	Telemetry []TelemetryEventDTO `json:"telemetry" binding:"omitempty,dive"`
}

// OptionView is an answer option without its correctness flag.
type OptionView struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

type QuestionView struct {
	QuestionID    string           `json:"id"`
	Text          string           `json:"text"`
	Difficulty    model.Difficulty `json:"difficulty"`
	Position      int              `json:"position"`
	Marks         decimal.Decimal  `json:"marks"`
	NegativeMarks decimal.Decimal  `json:"negative_marks"`
	Options       []OptionView     `json:"options"`
}

type SavedAnswerView struct {
	QuestionID       string  `json:"question_id"`
	SelectedOptionID *string `json:"selected_option_id"`
	TimeSpentMs      int64   `json:"time_spent_ms"`
}

type StartExamResponse struct {
	AttemptID        string            `json:"attempt_id"`
	ExamID           string            `json:"exam_id"`
	Title            string            `json:"title"`
	Resumed          bool              `json:"resumed"`
	ServerStartTime  time.Time         `json:"server_start_time"`
	ServerTime       time.Time         `json:"server_time"`
	DurationSeconds  int               `json:"duration_seconds"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Questions        []QuestionView    `json:"questions"`
	SavedAnswers     []SavedAnswerView `json:"saved_answers"`
}

type ResultDTO struct {
	Passed   bool            `json:"passed"`
	MaxMarks decimal.Decimal `json:"max_marks"`
	// Percentage is rounded to two places.
	Percentage decimal.Decimal `json:"percentage"`
}

type SubmitExamResponse struct {
	AttemptID        string                 `json:"attempt_id"`
	Status           model.AttemptStatus    `json:"status"`
	EnrichmentStatus model.EnrichmentStatus `json:"enrichment_status"`
	SubmittedAt      time.Time              `json:"submitted_at"`
	TotalScore       decimal.Decimal        `json:"total_score"`
	Result           ResultDTO              `json:"result"`
}

type AnswerDetailDTO struct {
	ID               string          `json:"id"`
	QuestionID       string          `json:"question_id"`
	Position         int             `json:"position"`
	SelectedOptionID *string         `json:"selected_option_id"`
	IsCorrect        bool            `json:"is_correct"`
	MarksAwarded     decimal.Decimal `json:"marks_awarded"`
	TimeSpentMs      int64           `json:"time_spent_ms"`
	InsightScore     int             `json:"insight_score"`
	AIFeedback       *string         `json:"ai_feedback"`
}

type AttemptSummaryDTO struct {
	ID               string                 `json:"id"`
	ExamID           string                 `json:"exam_id"`
	UserID           string                 `json:"user_id"`
	Status           model.AttemptStatus    `json:"status"`
	EnrichmentStatus model.EnrichmentStatus `json:"enrichment_status,omitempty"`
	StartedAt        time.Time              `json:"started_at"`
	SubmittedAt      *time.Time             `json:"submitted_at,omitempty"`
	TotalScore       *decimal.Decimal       `json:"total_score"`
	Result           *ResultDTO             `json:"result,omitempty"`
}

type AttemptDetailResponse struct {
	AttemptSummaryDTO
	Answers   []AnswerDetailDTO   `json:"answers"`
	Telemetry []TelemetryEventDTO `json:"telemetry"`
}
