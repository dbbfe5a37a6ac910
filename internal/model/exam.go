package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
)

// ExamSettings is stored as JSON on the exam row.
type ExamSettings struct {
	MaxAttempts         int   `json:"maxAttempts"` // 0 = unlimited
	IsAIAnalysisEnabled *bool `json:"isAiAnalysisEnabled,omitempty"`
}

// AIAnalysisEnabled reports whether background enrichment should run. Only an
// explicit false disables it.
func (s ExamSettings) AIAnalysisEnabled() bool {
	return s.IsAIAnalysisEnabled == nil || *s.IsAIAnalysisEnabled
}

type Exam struct {
	ID              string                           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID  string                           `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Title           string                           `gorm:"not null" json:"title"`
	Description     string                           `gorm:"type:text" json:"description,omitempty"`
	DurationSeconds int                              `gorm:"not null" json:"duration_seconds"`
	PassPercentage  decimal.Decimal                  `gorm:"type:numeric(5,2);not null" json:"pass_percentage"`
	ScheduledAt     *time.Time                       `json:"scheduled_at,omitempty"`
	Status          ExamStatus                       `gorm:"type:varchar(16);not null;index" json:"status"`
	Settings        datatypes.JSONType[ExamSettings] `json:"settings"`
	Questions       []ExamQuestion                   `gorm:"foreignKey:ExamID" json:"questions,omitempty"`
	CreatedAt       time.Time                        `json:"created_at"`
	UpdatedAt       time.Time                        `json:"updated_at"`
	DeletedAt       gorm.DeletedAt                   `gorm:"index" json:"-"`
}

func (e *Exam) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ExamQuestion weights a bank question within one exam.
type ExamQuestion struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExamID        string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_exam_question" json:"exam_id"`
	QuestionID    string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_exam_question" json:"question_id"`
	Question      Question        `gorm:"foreignKey:QuestionID" json:"question"`
	Position      int             `gorm:"not null" json:"position"`
	Marks         decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"marks"`
	NegativeMarks decimal.Decimal `gorm:"type:numeric(8,2);not null" json:"negative_marks"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (eq *ExamQuestion) BeforeCreate(tx *gorm.DB) error {
	if eq.ID == "" {
		eq.ID = uuid.NewString()
	}
	return nil
}
