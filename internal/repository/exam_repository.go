package repository

import (
	"context"

	"github.com/lshigami/examcore/internal/model"
	"gorm.io/gorm"
)

type ExamRepository interface {
	Create(ctx context.Context, exam *model.Exam) error
	FindByIDForOrg(ctx context.Context, orgID, examID string) (*model.Exam, error)
	UpdateStatus(ctx context.Context, examID string, status model.ExamStatus) error
}

type examRepository struct {
	db *gorm.DB
}

func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *model.Exam) error {
	// GORM creates exam questions, their bank questions and options through the associations.
	return r.db.WithContext(ctx).Create(exam).Error
}

// FindByIDForOrg returns gorm.ErrRecordNotFound when the exam does not exist or
// belongs to another organization.
func (r *examRepository) FindByIDForOrg(ctx context.Context, orgID, examID string) (*model.Exam, error) {
	var exam model.Exam
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", examID, orgID).
		First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *examRepository) UpdateStatus(ctx context.Context, examID string, status model.ExamStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Exam{}).Where("id = ?", examID).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
