package dto

import (
	"time"

	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
)

type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type CreateExamQuestionRequest struct {
	Text          string                `json:"text" binding:"required"`
	Explanation   string                `json:"explanation"`
	Difficulty    model.Difficulty      `json:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
	Marks         decimal.Decimal       `json:"marks"`
	NegativeMarks decimal.Decimal       `json:"negative_marks"`
	Options       []CreateOptionRequest `json:"options" binding:"required,min=2,dive"`
}

type CreateExamRequest struct {
	Title               string                      `json:"title" binding:"required"`
	Description         string                      `json:"description"`
	DurationSeconds     int                         `json:"duration_seconds" binding:"required,min=1"`
	PassPercentage      decimal.Decimal             `json:"pass_percentage"`
	ScheduledAt         *time.Time                  `json:"scheduled_at"`
	MaxAttempts         int                         `json:"max_attempts" binding:"min=0"`
	IsAIAnalysisEnabled *bool                       `json:"is_ai_analysis_enabled"`
	Questions           []CreateExamQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

type ExamResponse struct {
	ID                  string           `json:"id"`
	OrganizationID      string           `json:"organization_id"`
	Title               string           `json:"title"`
	Description         string           `json:"description,omitempty"`
	DurationSeconds     int              `json:"duration_seconds"`
	PassPercentage      decimal.Decimal  `json:"pass_percentage"`
	ScheduledAt         *time.Time       `json:"scheduled_at,omitempty"`
	Status              model.ExamStatus `json:"status"`
	MaxAttempts         int              `json:"max_attempts"`
	IsAIAnalysisEnabled bool             `json:"is_ai_analysis_enabled"`
	QuestionCount       int              `json:"question_count"`
	CreatedAt           time.Time        `json:"created_at"`
}

type ErrorResponse struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}
