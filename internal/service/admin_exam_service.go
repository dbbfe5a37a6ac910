package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	hundred = decimal.NewFromInt(100)
	// maxMarks is the first value a numeric(8,2) column cannot hold.
	maxMarks = decimal.NewFromInt(1_000_000)
)

// markScale is the number of decimal places stored for marks and percentages.
const markScale = 2

func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(markScale))
}

// AdminExamService is the minimal authoring surface: create an exam with its
// questions as DRAFT, then publish it.
type AdminExamService interface {
	CreateExam(ctx context.Context, p model.Principal, req dto.CreateExamRequest) (*dto.ExamResponse, error)
	PublishExam(ctx context.Context, p model.Principal, examID string) (*dto.ExamResponse, error)
}

type adminExamService struct {
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
}

func NewAdminExamService(examRepo repository.ExamRepository, questionRepo repository.QuestionRepository) AdminExamService {
	return &adminExamService{examRepo: examRepo, questionRepo: questionRepo}
}

func validateExamRequest(req dto.CreateExamRequest) error {
	if req.PassPercentage.IsNegative() || req.PassPercentage.GreaterThan(hundred) {
		return fmt.Errorf("pass_percentage must be between 0 and 100, got %s: %w", req.PassPercentage, ErrInvalidInput)
	}
	if !fitsScale(req.PassPercentage) {
		return fmt.Errorf("pass_percentage allows at most %d decimal places, got %s: %w", markScale, req.PassPercentage, ErrInvalidInput)
	}
	for i, q := range req.Questions {
		if !q.Marks.IsPositive() {
			return fmt.Errorf("question %d: marks must be positive: %w", i+1, ErrInvalidInput)
		}
		if q.NegativeMarks.IsNegative() {
			return fmt.Errorf("question %d: negative_marks must not be negative: %w", i+1, ErrInvalidInput)
		}
		if !fitsScale(q.Marks) || !fitsScale(q.NegativeMarks) {
			return fmt.Errorf("question %d: marks allow at most %d decimal places: %w", i+1, markScale, ErrInvalidInput)
		}
		if q.Marks.GreaterThanOrEqual(maxMarks) || q.NegativeMarks.GreaterThanOrEqual(maxMarks) {
			return fmt.Errorf("question %d: marks must be below %s: %w", i+1, maxMarks, ErrInvalidInput)
		}
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return fmt.Errorf("question %d has no correct option: %w", i+1, ErrInvalidInput)
		}
	}
	return nil
}

func (s *adminExamService) CreateExam(ctx context.Context, p model.Principal, req dto.CreateExamRequest) (*dto.ExamResponse, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("creating exams: %w", ErrForbidden)
	}
	if err := validateExamRequest(req); err != nil {
		return nil, err
	}

	exam := model.Exam{
		OrganizationID:  p.OrganizationID,
		Title:           req.Title,
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
		PassPercentage:  req.PassPercentage,
		ScheduledAt:     req.ScheduledAt,
		Status:          model.ExamStatusDraft,
		Settings: datatypes.NewJSONType(model.ExamSettings{
			MaxAttempts:         req.MaxAttempts,
			IsAIAnalysisEnabled: req.IsAIAnalysisEnabled,
		}),
	}
	for i, qReq := range req.Questions {
		difficulty := qReq.Difficulty
		if difficulty == "" {
			difficulty = model.DifficultyMedium
		}
		question := model.Question{
			OrganizationID: p.OrganizationID,
			Text:           qReq.Text,
			Explanation:    qReq.Explanation,
			Difficulty:     difficulty,
		}
		for j, oReq := range qReq.Options {
			question.Options = append(question.Options, model.QuestionOption{
				Text:      oReq.Text,
				Position:  j + 1,
				IsCorrect: oReq.IsCorrect,
			})
		}
		exam.Questions = append(exam.Questions, model.ExamQuestion{
			Question:      question,
			Position:      i + 1,
			Marks:         qReq.Marks,
			NegativeMarks: qReq.NegativeMarks,
		})
	}

	if err := s.examRepo.Create(ctx, &exam); err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("Failed to create exam in database")
		return nil, fmt.Errorf("database error creating exam: %w", err)
	}
	log.Info().Str("examID", exam.ID).Int("questions", len(exam.Questions)).Msg("Exam created")
	return examResponse(&exam, len(exam.Questions))
}

func (s *adminExamService) PublishExam(ctx context.Context, p model.Principal, examID string) (*dto.ExamResponse, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("publishing exams: %w", ErrForbidden)
	}
	exam, err := s.examRepo.FindByIDForOrg(ctx, p.OrganizationID, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
		}
		return nil, fmt.Errorf("load exam %s: %w", examID, err)
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("exam %s is already %s: %w", examID, exam.Status, ErrInvalidState)
	}

	questions, err := s.questionRepo.FindScoredByExamID(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions for exam %s: %w", exam.ID, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("exam %s has no questions: %w", exam.ID, ErrInvalidState)
	}

	if err := s.examRepo.UpdateStatus(ctx, exam.ID, model.ExamStatusPublished); err != nil {
		return nil, fmt.Errorf("publish exam %s: %w", exam.ID, err)
	}
	exam.Status = model.ExamStatusPublished
	log.Info().Str("examID", exam.ID).Msg("Exam published")
	return examResponse(exam, len(questions))
}

func examResponse(exam *model.Exam, questionCount int) (*dto.ExamResponse, error) {
	var resp dto.ExamResponse
	if err := copier.Copy(&resp, exam); err != nil {
		log.Error().Err(err).Msg("Failed to copy Exam model to ExamResponse")
		return nil, fmt.Errorf("error preparing response data: %w", err)
	}
	settings := exam.Settings.Data()
	resp.MaxAttempts = settings.MaxAttempts
	resp.IsAIAnalysisEnabled = settings.AIAnalysisEnabled()
	resp.QuestionCount = questionCount
	return &resp, nil
}
