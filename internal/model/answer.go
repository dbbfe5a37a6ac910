package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnswerRecord is the scored answer to one question, created in bulk at submit.
// Only the enrichment step mutates it afterwards.
type AnswerRecord struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AttemptID        string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_answer_attempt_question" json:"attempt_id"`
	QuestionID       string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_answer_attempt_question" json:"question_id"`
	// Position is the question's position in the exam at submit time.
	Position         int             `gorm:"not null;default:0" json:"position"`
	SelectedOptionID *string         `gorm:"type:varchar(36)" json:"selected_option_id"`
	IsCorrect        bool            `gorm:"not null" json:"is_correct"`
	MarksAwarded     decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"marks_awarded"`
	TimeSpentMs      int64           `gorm:"not null" json:"time_spent_ms"`
	InsightScore     int             `json:"insight_score"`
	AIFeedback       *string         `gorm:"type:text" json:"ai_feedback"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (AnswerRecord) TableName() string { return "attempt_answers" }

func (a *AnswerRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ProgressAnswer is the unscored autosave snapshot for an IN_PROGRESS attempt.
type ProgressAnswer struct {
	AttemptID        string    `gorm:"primaryKey;type:varchar(36)" json:"attempt_id"`
	QuestionID       string    `gorm:"primaryKey;type:varchar(36)" json:"question_id"`
	SelectedOptionID *string   `gorm:"type:varchar(36)" json:"selected_option_id"`
	TimeSpentMs      int64     `gorm:"not null" json:"time_spent_ms"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ProgressAnswer) TableName() string { return "attempt_progress" }

type TelemetryEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TelemetryBatch is appended once at submit and never reconciled.
type TelemetryBatch struct {
	ID        string                               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AttemptID string                               `gorm:"type:varchar(36);not null;index" json:"attempt_id"`
	Events    datatypes.JSONType[[]TelemetryEvent] `json:"events"`
	CreatedAt time.Time                            `json:"created_at"`
}

func (t *TelemetryBatch) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
