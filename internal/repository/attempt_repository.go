package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatusConflict is returned when a compare-and-set on attempt status loses.
var ErrStatusConflict = errors.New("attempt status changed concurrently")

// SubmissionRecord is everything written by the single submit commit.
type SubmissionRecord struct {
	AttemptID        string
	SubmittedAt      time.Time
	TotalScore       decimal.Decimal
	Result           model.AttemptResult
	EnrichmentStatus model.EnrichmentStatus
	Answers          []model.AnswerRecord
	// Telemetry is stored as one batch; nil means the client sent none.
	Telemetry []model.TelemetryEvent
}

type AttemptRepository interface {
	// ListByExamAndUser returns every attempt for the pair, newest first.
	ListByExamAndUser(ctx context.Context, examID, userID string) ([]model.Attempt, error)
	FindInProgress(ctx context.Context, examID, userID string) (*model.Attempt, error)
	// CreateInProgress inserts attempt unless an IN_PROGRESS attempt already
	// exists for the same exam and user, in which case attempt is overwritten
	// with the existing row and created is false.
	CreateInProgress(ctx context.Context, attempt *model.Attempt) (created bool, err error)
	// CommitSubmission moves the attempt IN_PROGRESS -> SUBMITTED and inserts its
	// answers and telemetry in one transaction. ErrStatusConflict if the attempt
	// was no longer IN_PROGRESS.
	CommitSubmission(ctx context.Context, rec SubmissionRecord) error
	FindByID(ctx context.Context, id string) (*model.Attempt, error)
	FindByIDWithDetails(ctx context.Context, id string) (*model.Attempt, error)
	ListCompletedByUser(ctx context.Context, orgID, userID string) ([]model.Attempt, error)
	ListByExam(ctx context.Context, examID string) ([]model.Attempt, error)
	// ListPendingEnrichment returns submitted attempts whose enrichment is
	// PENDING or whose RUNNING claim was taken before staleBefore, oldest first.
	ListPendingEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]model.Attempt, error)
	// ClaimEnrichment moves a submitted attempt to RUNNING if it is PENDING or
	// its RUNNING claim was taken before staleBefore.
	ClaimEnrichment(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	// CompleteEnrichment marks enrichment DONE and the attempt EVALUATED in one update.
	CompleteEnrichment(ctx context.Context, id string) (bool, error)
	TransitionEnrichment(ctx context.Context, id string, from []model.EnrichmentStatus, to model.EnrichmentStatus) (bool, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) ListByExamAndUser(ctx context.Context, examID, userID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("exam_id = ? AND user_id = ?", examID, userID).
		Order("started_at DESC").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) FindInProgress(ctx context.Context, examID, userID string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.WithContext(ctx).
		Where("exam_id = ? AND user_id = ? AND status = ?", examID, userID, model.AttemptStatusInProgress).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) CreateInProgress(ctx context.Context, attempt *model.Attempt) (bool, error) {
	attempt.Status = model.AttemptStatusInProgress
	// The partial unique index on (exam_id, user_id) WHERE status = 'IN_PROGRESS'
	// turns a concurrent second insert into a no-op.
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(attempt)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	existing, err := r.FindInProgress(ctx, attempt.ExamID, attempt.UserID)
	if err != nil {
		return false, err
	}
	*attempt = *existing
	return false, nil
}

func (r *attemptRepository) CommitSubmission(ctx context.Context, rec SubmissionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := datatypes.NewJSONType(rec.Result)
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND status = ?", rec.AttemptID, model.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":            model.AttemptStatusSubmitted,
				"submitted_at":      rec.SubmittedAt,
				"total_score":       decimal.NewNullDecimal(rec.TotalScore),
				"result":            result,
				"enrichment_status": rec.EnrichmentStatus,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}

		if len(rec.Answers) > 0 {
			for i := range rec.Answers {
				rec.Answers[i].AttemptID = rec.AttemptID
			}
			if err := tx.Create(&rec.Answers).Error; err != nil {
				return err
			}
		}

		if rec.Telemetry != nil {
			batch := model.TelemetryBatch{
				AttemptID: rec.AttemptID,
				Events:    datatypes.NewJSONType(rec.Telemetry),
			}
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *attemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	if err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindByIDWithDetails(ctx context.Context, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_answers.position ASC")
		}).
		Preload("Telemetry").
		First(&attempt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) ListCompletedByUser(ctx context.Context, orgID, userID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND status IN ?", orgID, userID,
			[]model.AttemptStatus{model.AttemptStatusSubmitted, model.AttemptStatusEvaluated}).
		Order("started_at DESC").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) ListByExam(ctx context.Context, examID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("started_at DESC").
		Find(&attempts).Error
	return attempts, err
}

// claimable matches submitted attempts that no live run owns. A RUNNING row
// without a claim time predates claim tracking and is treated as stale.
func claimable(db *gorm.DB, staleBefore time.Time) *gorm.DB {
	return db.Where(`status = ? AND (enrichment_status = ? OR
		(enrichment_status = ? AND (enrichment_claimed_at IS NULL OR enrichment_claimed_at < ?)))`,
		model.AttemptStatusSubmitted, model.EnrichmentPending, model.EnrichmentRunning, staleBefore)
}

func (r *attemptRepository) ListPendingEnrichment(ctx context.Context, staleBefore time.Time, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := claimable(r.db.WithContext(ctx), staleBefore).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) ClaimEnrichment(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	res := claimable(r.db.WithContext(ctx).Model(&model.Attempt{}).Where("id = ?", id), staleBefore).
		Updates(map[string]interface{}{
			"enrichment_status":     model.EnrichmentRunning,
			"enrichment_claimed_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *attemptRepository) CompleteEnrichment(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND enrichment_status = ?", id, model.EnrichmentRunning).
		Updates(map[string]interface{}{
			"enrichment_status": model.EnrichmentDone,
			"status":            model.AttemptStatusEvaluated,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *attemptRepository) TransitionEnrichment(ctx context.Context, id string, from []model.EnrichmentStatus, to model.EnrichmentStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND enrichment_status IN ?", id, from).
		Update("enrichment_status", to)
	return res.RowsAffected == 1, res.Error
}
