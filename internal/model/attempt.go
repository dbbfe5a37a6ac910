package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusEvaluated  AttemptStatus = "EVALUATED"
)

// Completed reports whether the attempt counts towards the max-attempts limit.
func (s AttemptStatus) Completed() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusEvaluated
}

type EnrichmentStatus string

const (
	EnrichmentPending EnrichmentStatus = "PENDING"
	EnrichmentRunning EnrichmentStatus = "RUNNING"
	EnrichmentDone    EnrichmentStatus = "DONE"
	EnrichmentSkipped EnrichmentStatus = "SKIPPED"
)

// AttemptResult is the snapshot written at submit time.
type AttemptResult struct {
	Passed     bool            `json:"passed"`
	MaxMarks   decimal.Decimal `json:"maxMarks"`
	Percentage decimal.Decimal `json:"percentage"`
}

type Attempt struct {
	ID               string                             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExamID           string                             `gorm:"type:varchar(36);not null;index:idx_attempt_exam_user" json:"exam_id"`
	UserID           string                             `gorm:"type:varchar(36);not null;index:idx_attempt_exam_user" json:"user_id"`
	OrganizationID   string                             `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Status           AttemptStatus                      `gorm:"type:varchar(16);not null" json:"status"`
	EnrichmentStatus EnrichmentStatus                   `gorm:"type:varchar(16)" json:"enrichment_status,omitempty"`
	StartedAt        time.Time                          `gorm:"not null" json:"started_at"`
	SubmittedAt      *time.Time                         `json:"submitted_at,omitempty"`
	TotalScore       decimal.NullDecimal                `gorm:"type:numeric(12,2)" json:"total_score"`
	Result           *datatypes.JSONType[AttemptResult] `json:"result,omitempty"`
	Answers          []AnswerRecord                     `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
	Telemetry        []TelemetryBatch                   `gorm:"foreignKey:AttemptID" json:"telemetry,omitempty"`
	CreatedAt        time.Time                          `json:"created_at"`
	UpdatedAt        time.Time                          `json:"updated_at"`

	// EnrichmentClaimedAt is when the current RUNNING claim was taken.
	EnrichmentClaimedAt *time.Time `json:"-"`
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ResultSnapshot returns the stored result, or false while the attempt is still open.
func (a *Attempt) ResultSnapshot() (AttemptResult, bool) {
	if a.Result == nil {
		return AttemptResult{}, false
	}
	return a.Result.Data(), true
}
