package repository

import (
	"context"
	"sort"

	"github.com/lshigami/examcore/internal/model"
	"gorm.io/gorm"
)

// QuestionRepository is the read-only question snapshot for an exam.
type QuestionRepository interface {
	// FindScoredByExamID returns the exam's questions ordered by position, each
	// with its options and answer key. gorm.ErrRecordNotFound if the exam is missing.
	FindScoredByExamID(ctx context.Context, examID string) ([]model.ScoredQuestion, error)
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) FindScoredByExamID(ctx context.Context, examID string) ([]model.ScoredQuestion, error) {
	var exists int64
	if err := r.db.WithContext(ctx).Model(&model.Exam{}).Where("id = ?", examID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var rows []model.ExamQuestion
	err := r.db.WithContext(ctx).
		Preload("Question").
		Preload("Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.position ASC")
		}).
		Where("exam_id = ?", examID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	snapshot := make([]model.ScoredQuestion, 0, len(rows))
	for _, eq := range rows {
		sq := model.ScoredQuestion{
			QuestionID:    eq.QuestionID,
			Text:          eq.Question.Text,
			Explanation:   eq.Question.Explanation,
			Difficulty:    eq.Question.Difficulty,
			Position:      eq.Position,
			Marks:         eq.Marks,
			NegativeMarks: eq.NegativeMarks,
			Options:       make([]model.ScoredOption, 0, len(eq.Question.Options)),
		}
		for _, o := range eq.Question.Options {
			sq.Options = append(sq.Options, model.ScoredOption{
				ID:        o.ID,
				Text:      o.Text,
				Position:  o.Position,
				IsCorrect: o.IsCorrect,
			})
		}
		snapshot = append(snapshot, sq)
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Position < snapshot[j].Position
	})
	return snapshot, nil
}
