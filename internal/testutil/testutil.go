// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database. The pool is limited to one
// connection so concurrent callers are serialized like rows under a lock.
// Callers run repository.AutoMigrate themselves.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type QuestionFixture struct {
	Difficulty    model.Difficulty
	Marks         string
	NegativeMarks string
	// Options defaults to 4; the first option is the correct one.
	Options int
}

type ExamFixture struct {
	OrganizationID string
	Status         model.ExamStatus
	PassPercentage string
	ScheduledAt    *time.Time
	Settings       model.ExamSettings
	Questions      []QuestionFixture
}

// SeedExam inserts an exam with its questions and returns it with IDs filled in.
func SeedExam(t *testing.T, db *gorm.DB, f ExamFixture) *model.Exam {
	t.Helper()
	if f.Status == "" {
		f.Status = model.ExamStatusPublished
	}
	if f.PassPercentage == "" {
		f.PassPercentage = "50"
	}
	exam := &model.Exam{
		OrganizationID:  f.OrganizationID,
		Title:           "Fixture exam",
		DurationSeconds: 1800,
		PassPercentage:  decimal.RequireFromString(f.PassPercentage),
		ScheduledAt:     f.ScheduledAt,
		Status:          f.Status,
		Settings:        datatypes.NewJSONType(f.Settings),
	}
	for i, qf := range f.Questions {
		n := qf.Options
		if n == 0 {
			n = 4
		}
		difficulty := qf.Difficulty
		if difficulty == "" {
			difficulty = model.DifficultyMedium
		}
		q := model.Question{
			OrganizationID: f.OrganizationID,
			Text:           "Question text",
			Explanation:    "Because.",
			Difficulty:     difficulty,
		}
		for j := 0; j < n; j++ {
			q.Options = append(q.Options, model.QuestionOption{
				Text:      "Option",
				Position:  j + 1,
				IsCorrect: j == 0,
			})
		}
		exam.Questions = append(exam.Questions, model.ExamQuestion{
			Question:      q,
			Position:      i + 1,
			Marks:         decimal.RequireFromString(qf.Marks),
			NegativeMarks: decimal.RequireFromString(orZero(qf.NegativeMarks)),
		})
	}
	require.NoError(t, db.Create(exam).Error)
	return exam
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// CorrectOption returns the id of the correct option of the i-th question.
func CorrectOption(exam *model.Exam, i int) string {
	return exam.Questions[i].Question.Options[0].ID
}

// WrongOption returns the id of an incorrect option of the i-th question.
func WrongOption(exam *model.Exam, i int) string {
	return exam.Questions[i].Question.Options[1].ID
}

func QuestionID(exam *model.Exam, i int) string {
	return exam.Questions[i].QuestionID
}
