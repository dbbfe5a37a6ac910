package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

type Question struct {
	ID             string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string           `gorm:"type:varchar(36);not null;index" json:"organization_id"`
	Text           string           `gorm:"type:text;not null" json:"text"`
	Explanation    string           `gorm:"type:text" json:"explanation,omitempty"`
	Difficulty     Difficulty       `gorm:"type:varchar(8);not null;default:'MEDIUM'" json:"difficulty"`
	Options        []QuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

type QuestionOption struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	QuestionID string `gorm:"type:varchar(36);not null;index" json:"question_id"`
	Text       string `gorm:"type:text;not null" json:"text"`
	Position   int    `gorm:"not null" json:"position"`
	IsCorrect  bool   `gorm:"not null" json:"is_correct"`
}

func (o *QuestionOption) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// ScoredQuestion is the read-only snapshot of one exam question together with
// its weighting and answer key. It never leaves the server unsanitized.
type ScoredQuestion struct {
	QuestionID    string          `json:"questionId"`
	Text          string          `json:"text"`
	Explanation   string          `json:"explanation"`
	Difficulty    Difficulty      `json:"difficulty"`
	Position      int             `json:"position"`
	Marks         decimal.Decimal `json:"marks"`
	NegativeMarks decimal.Decimal `json:"negativeMarks"`
	Options       []ScoredOption  `json:"options"`
}

type ScoredOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
	IsCorrect bool   `json:"isCorrect"`
}

// Option returns the option with the given id.
func (q ScoredQuestion) Option(id string) (ScoredOption, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ScoredOption{}, false
}

// CorrectOption returns the first option flagged correct.
func (q ScoredQuestion) CorrectOption() (ScoredOption, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return ScoredOption{}, false
}
