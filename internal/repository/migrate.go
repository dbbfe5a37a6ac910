package repository

import (
	"github.com/lshigami/examcore/internal/model"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AutoMigrate creates the schema, including the partial unique index that
// allows at most one IN_PROGRESS attempt per exam and user.
func AutoMigrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Exam{},
		&model.Question{},
		&model.QuestionOption{},
		&model.ExamQuestion{},
		&model.Attempt{},
		&model.AnswerRecord{},
		&model.ProgressAnswer{},
		&model.TelemetryBatch{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}

	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_single_in_progress
		ON attempts (exam_id, user_id) WHERE status = 'IN_PROGRESS'`).Error
	if err != nil {
		log.Error().Err(err).Msg("Failed to create in-progress attempt index")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
