package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/examcore/config"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"gorm.io/gorm"
)

// EnrichmentService attaches a reasoning-service explanation to every answer of
// a submitted attempt.
type EnrichmentService interface {
	// Process runs the pipeline for one attempt. It returns nil when another
	// delivery already claimed the attempt.
	Process(ctx context.Context, attemptID string) error
}

type enrichmentService struct {
	attemptRepo  repository.AttemptRepository
	answerRepo   repository.AnswerRepository
	questionRepo repository.QuestionRepository
	reasoning    ReasoningService
	workers      int
	callTimeout  time.Duration
	lease        time.Duration
	now          func() time.Time
}

func NewEnrichmentService(
	cfg *config.Config,
	attemptRepo repository.AttemptRepository,
	answerRepo repository.AnswerRepository,
	questionRepo repository.QuestionRepository,
	reasoning ReasoningService,
) EnrichmentService {
	s := &enrichmentService{
		attemptRepo:  attemptRepo,
		answerRepo:   answerRepo,
		questionRepo: questionRepo,
		reasoning:    reasoning,
		workers:      cfg.Enrichment.Workers,
		callTimeout:  cfg.Enrichment.CallTimeout,
		lease:        cfg.Enrichment.Lease,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if s.workers <= 0 {
		s.workers = 3
	}
	if s.callTimeout <= 0 {
		s.callTimeout = 20 * time.Second
	}
	if s.lease <= 0 {
		s.lease = 10 * time.Minute
	}
	return s
}

func (s *enrichmentService) Process(ctx context.Context, attemptID string) error {
	now := s.now()
	claimed, err := s.attemptRepo.ClaimEnrichment(ctx, attemptID, now, now.Add(-s.lease))
	if err != nil {
		return fmt.Errorf("claim enrichment for attempt %s: %w", attemptID, err)
	}
	if !claimed {
		log.Debug().Str("attemptID", attemptID).Msg("Enrichment: attempt not claimable, skipping delivery")
		return nil
	}
	log.Info().Str("attemptID", attemptID).Msg("Enrichment: started")

	answers, questions, err := s.load(ctx, attemptID)
	if err != nil {
		s.release(ctx, attemptID)
		return err
	}

	byID := make(map[string]model.ScoredQuestion, len(questions))
	for _, q := range questions {
		byID[q.QuestionID] = q
	}

	p := pool.New().WithMaxGoroutines(s.workers)
	for _, answer := range answers {
		q, ok := byID[answer.QuestionID]
		if !ok {
			log.Warn().Str("attemptID", attemptID).Str("questionID", answer.QuestionID).Msg("Enrichment: question no longer in exam, skipping answer")
			continue
		}
		p.Go(func() {
			s.enrichAnswer(ctx, attemptID, answer, q)
		})
	}
	p.Wait()

	if ctx.Err() != nil {
		// Shutdown mid-run. Feedback already written stays; a later run overwrites it.
		s.release(ctx, attemptID)
		return ctx.Err()
	}

	// On failure the claim stays RUNNING and is taken over once the lease expires.
	done, err := s.attemptRepo.CompleteEnrichment(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("complete enrichment for attempt %s: %w", attemptID, err)
	}
	if !done {
		log.Warn().Str("attemptID", attemptID).Msg("Enrichment: claim was lost before completion")
		return nil
	}
	log.Info().Str("attemptID", attemptID).Int("answers", len(answers)).Msg("Enrichment: complete")
	return nil
}

func (s *enrichmentService) load(ctx context.Context, attemptID string) ([]model.AnswerRecord, []model.ScoredQuestion, error) {
	attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	answers, err := s.answerRepo.FindByAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("load answers for attempt %s: %w", attemptID, err)
	}
	questions, err := s.questionRepo.FindScoredByExamID(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("load questions for exam %s: %w", attempt.ExamID, err)
	}
	return answers, questions, nil
}

// release hands a claimed attempt back so a later delivery can pick it up.
func (s *enrichmentService) release(ctx context.Context, attemptID string) {
	if _, err := s.attemptRepo.TransitionEnrichment(context.WithoutCancel(ctx), attemptID,
		[]model.EnrichmentStatus{model.EnrichmentRunning}, model.EnrichmentPending); err != nil {
		log.Error().Err(err).Str("attemptID", attemptID).Msg("Enrichment: failed to release attempt")
	}
}

func (s *enrichmentService) enrichAnswer(ctx context.Context, attemptID string, answer model.AnswerRecord, q model.ScoredQuestion) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	text, err := s.reasoning.Explain(callCtx, insightRequestFor(answer, q))
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a failed call; the released attempt is retried whole.
			return
		}
		log.Warn().Err(err).Str("attemptID", attemptID).Str("answerID", answer.ID).Msg("Enrichment: reasoning call failed, storing fallback insight")
		text = failedInsight
	}
	if err := s.answerRepo.UpdateFeedback(ctx, answer.ID, text); err != nil {
		log.Error().Err(err).Str("attemptID", attemptID).Str("answerID", answer.ID).Msg("Enrichment: failed to store feedback")
	}
}

func insightRequestFor(answer model.AnswerRecord, q model.ScoredQuestion) InsightRequest {
	req := InsightRequest{
		QuestionText:    q.Text,
		SubmittedAnswer: "No Answer",
		CorrectAnswer:   "Answer",
		Explanation:     q.Explanation,
		Difficulty:      q.Difficulty,
		IsCorrect:       answer.IsCorrect,
	}
	if answer.SelectedOptionID != nil {
		req.SubmittedAnswer = "Unknown"
		if opt, ok := q.Option(*answer.SelectedOptionID); ok {
			req.SubmittedAnswer = opt.Text
		}
	}
	if opt, ok := q.CorrectOption(); ok {
		req.CorrectAnswer = opt.Text
	}
	if req.Explanation == "" {
		req.Explanation = "No explanation provided."
	}
	return req
}
