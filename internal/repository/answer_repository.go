package repository

import (
	"context"

	"github.com/lshigami/examcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerRepository interface {
	FindByAttempt(ctx context.Context, attemptID string) ([]model.AnswerRecord, error)
	// UpdateFeedback overwrites the enrichment text of one answer.
	UpdateFeedback(ctx context.Context, answerID, feedback string) error
}

type answerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) FindByAttempt(ctx context.Context, attemptID string) ([]model.AnswerRecord, error) {
	var answers []model.AnswerRecord
	err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("position ASC").Find(&answers).Error
	return answers, err
}

func (r *answerRepository) UpdateFeedback(ctx context.Context, answerID, feedback string) error {
	res := r.db.WithContext(ctx).Model(&model.AnswerRecord{}).
		Where("id = ?", answerID).
		Update("ai_feedback", feedback)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type ProgressRepository interface {
	// Upsert stores the latest autosave per (attempt, question); last write wins.
	Upsert(ctx context.Context, answers []model.ProgressAnswer) error
	FindByAttempt(ctx context.Context, attemptID string) ([]model.ProgressAnswer, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Upsert(ctx context.Context, answers []model.ProgressAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"selected_option_id", "time_spent_ms", "updated_at"}),
	}).Create(&answers).Error
}

func (r *progressRepository) FindByAttempt(ctx context.Context, attemptID string) ([]model.ProgressAnswer, error) {
	var answers []model.ProgressAnswer
	err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}
