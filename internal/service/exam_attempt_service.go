package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/lshigami/examcore/internal/scoring"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// resubmitWindow is how long after a commit a submit without attempt id is
	// treated as a repeat of that commit instead of a new attempt.
	resubmitWindow  = time.Minute
	dispatchTimeout = 5 * time.Second
)

// ExamAttemptService owns the attempt state machine: start/resume, autosave,
// submit and the read side of finished attempts.
type ExamAttemptService interface {
	Start(ctx context.Context, p model.Principal, examID string) (*dto.StartExamResponse, error)
	SaveProgress(ctx context.Context, p model.Principal, examID string, req dto.SaveProgressRequest) error
	Submit(ctx context.Context, p model.Principal, examID string, req dto.SubmitExamRequest) (*dto.SubmitExamResponse, error)
	GetAttemptDetails(ctx context.Context, p model.Principal, attemptID string) (*dto.AttemptDetailResponse, error)
	ListMyAttempts(ctx context.Context, p model.Principal) ([]dto.AttemptSummaryDTO, error)
	ListExamAttempts(ctx context.Context, p model.Principal, examID string) ([]dto.AttemptSummaryDTO, error)
}

type examAttemptService struct {
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
	attemptRepo  repository.AttemptRepository
	answerRepo   repository.AnswerRepository
	progressRepo repository.ProgressRepository
	engine       *scoring.Engine
	dispatcher   EnrichmentDispatcher
	now          func() time.Time
}

func NewExamAttemptService(
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	attemptRepo repository.AttemptRepository,
	answerRepo repository.AnswerRepository,
	progressRepo repository.ProgressRepository,
	engine *scoring.Engine,
	dispatcher EnrichmentDispatcher,
) ExamAttemptService {
	return &examAttemptService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		answerRepo:   answerRepo,
		progressRepo: progressRepo,
		engine:       engine,
		dispatcher:   dispatcher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *examAttemptService) loadExam(ctx context.Context, orgID, examID string) (*model.Exam, error) {
	exam, err := s.examRepo.FindByIDForOrg(ctx, orgID, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
		}
		return nil, fmt.Errorf("load exam %s: %w", examID, err)
	}
	return exam, nil
}

func (s *examAttemptService) loadQuestions(ctx context.Context, examID string) ([]model.ScoredQuestion, error) {
	questions, err := s.questionRepo.FindScoredByExamID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("questions for exam %s: %w", examID, ErrNotFound)
		}
		return nil, fmt.Errorf("load questions for exam %s: %w", examID, err)
	}
	return questions, nil
}

func (s *examAttemptService) checkStartable(exam *model.Exam, now time.Time) error {
	if exam.Status != model.ExamStatusPublished {
		return fmt.Errorf("exam %s is not published: %w", exam.ID, ErrInvalidState)
	}
	if exam.ScheduledAt != nil && exam.ScheduledAt.After(now) {
		return fmt.Errorf("exam %s opens at %s: %w", exam.ID, exam.ScheduledAt.Format(time.RFC3339), ErrInvalidState)
	}
	return nil
}

func (s *examAttemptService) Start(ctx context.Context, p model.Principal, examID string) (*dto.StartExamResponse, error) {
	exam, err := s.loadExam(ctx, p.OrganizationID, examID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.checkStartable(exam, now); err != nil {
		return nil, err
	}
	questions, err := s.loadQuestions(ctx, exam.ID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attemptRepo.ListByExamAndUser(ctx, exam.ID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var active *model.Attempt
	completed := 0
	for i := range attempts {
		if attempts[i].Status == model.AttemptStatusInProgress && active == nil {
			active = &attempts[i]
		}
		if attempts[i].Status.Completed() {
			completed++
		}
	}

	resumed := active != nil
	if active == nil {
		if limit := exam.Settings.Data().MaxAttempts; limit > 0 && completed >= limit {
			return nil, fmt.Errorf("%d of %d attempts used: %w", completed, limit, ErrAttemptLimitReached)
		}
		attempt := &model.Attempt{
			ExamID:         exam.ID,
			UserID:         p.UserID,
			OrganizationID: p.OrganizationID,
			StartedAt:      now,
		}
		created, err := s.attemptRepo.CreateInProgress(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		resumed = !created
		active = attempt
		if created {
			log.Info().Str("attemptID", attempt.ID).Str("examID", exam.ID).Str("userID", p.UserID).Msg("Attempt started")
		}
	}

	resp := &dto.StartExamResponse{
		AttemptID:        active.ID,
		ExamID:           exam.ID,
		Title:            exam.Title,
		Resumed:          resumed,
		ServerStartTime:  active.StartedAt,
		ServerTime:       now,
		DurationSeconds:  exam.DurationSeconds,
		RemainingSeconds: remainingSeconds(exam.DurationSeconds, active.StartedAt, now),
		SavedAnswers:     []dto.SavedAnswerView{},
	}
	if err := copier.Copy(&resp.Questions, &questions); err != nil {
		return nil, fmt.Errorf("prepare question view: %w", err)
	}

	if resumed {
		saved, err := s.progressRepo.FindByAttempt(ctx, active.ID)
		if err != nil {
			return nil, fmt.Errorf("load saved progress: %w", err)
		}
		if err := copier.Copy(&resp.SavedAnswers, &saved); err != nil {
			return nil, fmt.Errorf("prepare saved answers: %w", err)
		}
	}
	return resp, nil
}

func remainingSeconds(duration int, startedAt, now time.Time) int {
	left := time.Duration(duration)*time.Second - now.Sub(startedAt)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func (s *examAttemptService) SaveProgress(ctx context.Context, p model.Principal, examID string, req dto.SaveProgressRequest) error {
	attempt, err := s.attemptRepo.FindInProgress(ctx, examID, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Debug().Str("examID", examID).Str("userID", p.UserID).Msg("SaveProgress: no attempt in progress, nothing to save")
			return nil
		}
		return fmt.Errorf("find attempt in progress: %w", err)
	}
	if attempt.OrganizationID != p.OrganizationID {
		return nil
	}

	questions, err := s.loadQuestions(ctx, examID)
	if err != nil {
		return err
	}
	inExam := make(map[string]bool, len(questions))
	for _, q := range questions {
		inExam[q.QuestionID] = true
	}

	now := s.now()
	index := make(map[string]int, len(req.Answers))
	rows := make([]model.ProgressAnswer, 0, len(req.Answers))
	for _, a := range req.Answers {
		if !inExam[a.QuestionID] {
			continue
		}
		row := model.ProgressAnswer{
			AttemptID:        attempt.ID,
			QuestionID:       a.QuestionID,
			SelectedOptionID: selectedOption(a.SelectedOptionID),
			TimeSpentMs:      max(a.TimeSpentMs, 0),
			UpdatedAt:        now,
		}
		// A question repeated in one request keeps its last value.
		if i, ok := index[a.QuestionID]; ok {
			rows[i] = row
			continue
		}
		index[a.QuestionID] = len(rows)
		rows = append(rows, row)
	}

	if err := s.progressRepo.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func selectedOption(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}

func (s *examAttemptService) Submit(ctx context.Context, p model.Principal, examID string, req dto.SubmitExamRequest) (*dto.SubmitExamResponse, error) {
	exam, err := s.loadExam(ctx, p.OrganizationID, examID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.resolveSubmitAttempt(ctx, p, exam, req.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status.Completed() {
		log.Info().Str("attemptID", attempt.ID).Msg("Submit: attempt already submitted, returning stored result")
		return submitResponseFromAttempt(attempt)
	}

	questions, err := s.loadQuestions(ctx, exam.ID)
	if err != nil {
		return nil, err
	}

	answers := make(scoring.Submission, len(req.Answers))
	for _, a := range req.Answers {
		ans := scoring.Answer{TimeSpentMs: a.TimeSpentMs}
		if a.SelectedOptionID != nil {
			ans.OptionID = *a.SelectedOptionID
		}
		answers[a.QuestionID] = ans
	}
	scored := s.engine.Score(questions, answers, exam.PassPercentage)

	enrichment := model.EnrichmentPending
	if !exam.Settings.Data().AIAnalysisEnabled() {
		enrichment = model.EnrichmentSkipped
	}

	positions := make(map[string]int, len(questions))
	for _, q := range questions {
		positions[q.QuestionID] = q.Position
	}
	records := make([]model.AnswerRecord, 0, len(scored.Answers))
	for _, o := range scored.Answers {
		records = append(records, model.AnswerRecord{
			QuestionID:       o.QuestionID,
			Position:         positions[o.QuestionID],
			SelectedOptionID: o.SelectedOptionID,
			IsCorrect:        o.IsCorrect,
			MarksAwarded:     o.MarksAwarded,
			TimeSpentMs:      o.TimeSpentMs,
			InsightScore:     o.InsightScore,
		})
	}

	var telemetry []model.TelemetryEvent
	if len(req.Telemetry) > 0 {
		if err := copier.Copy(&telemetry, &req.Telemetry); err != nil {
			return nil, fmt.Errorf("prepare telemetry: %w", err)
		}
	}

	rec := repository.SubmissionRecord{
		AttemptID:        attempt.ID,
		SubmittedAt:      s.now(),
		TotalScore:       scored.TotalScore,
		Result:           model.AttemptResult{Passed: scored.Passed, MaxMarks: scored.MaxMarks, Percentage: scored.Percentage},
		EnrichmentStatus: enrichment,
		Answers:          records,
		Telemetry:        telemetry,
	}
	if err := s.attemptRepo.CommitSubmission(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.resolveLostSubmit(ctx, attempt.ID)
		}
		log.Error().Err(err).Str("attemptID", attempt.ID).Msg("Submit: commit failed")
		return nil, fmt.Errorf("commit submission: %w", err)
	}
	log.Info().
		Str("attemptID", attempt.ID).
		Str("totalScore", scored.TotalScore.String()).
		Bool("passed", scored.Passed).
		Str("enrichment", string(enrichment)).
		Msg("Submit: attempt scored")

	if enrichment == model.EnrichmentPending {
		s.dispatchEnrichment(ctx, AttemptScoredEvent{AttemptID: attempt.ID, ExamID: exam.ID, SubmittedAt: rec.SubmittedAt})
	}

	return &dto.SubmitExamResponse{
		AttemptID:        attempt.ID,
		Status:           model.AttemptStatusSubmitted,
		EnrichmentStatus: enrichment,
		SubmittedAt:      rec.SubmittedAt,
		TotalScore:       scored.TotalScore,
		Result: dto.ResultDTO{
			Passed:     scored.Passed,
			MaxMarks:   scored.MaxMarks,
			Percentage: scoring.RoundPercentage(scored.Percentage),
		},
	}, nil
}

// resolveSubmitAttempt finds the attempt a submit applies to. The attempt id
// issued by start is authoritative; without it the open attempt is used, and as
// a last resort one is created so the answers are not lost.
func (s *examAttemptService) resolveSubmitAttempt(ctx context.Context, p model.Principal, exam *model.Exam, attemptID string) (*model.Attempt, error) {
	if attemptID != "" {
		attempt, err := s.attemptRepo.FindByID(ctx, attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
			}
			return nil, fmt.Errorf("load attempt %s: %w", attemptID, err)
		}
		if attempt.UserID != p.UserID || attempt.ExamID != exam.ID || attempt.OrganizationID != p.OrganizationID {
			return nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
		}
		return attempt, nil
	}
	return s.openOrCreateSubmitAttempt(ctx, p, exam, true)
}

// openOrCreateSubmitAttempt resolves a submit that carries no attempt id. When
// the create races a submit that commits first, the lookup runs once more so
// the committed attempt is found through the resubmit window.
func (s *examAttemptService) openOrCreateSubmitAttempt(ctx context.Context, p model.Principal, exam *model.Exam, retry bool) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.FindInProgress(ctx, exam.ID, p.UserID)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find attempt in progress: %w", err)
	}

	now := s.now()
	attempts, err := s.attemptRepo.ListByExamAndUser(ctx, exam.ID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	completed := 0
	for i := range attempts {
		a := &attempts[i]
		if !a.Status.Completed() {
			continue
		}
		if completed == 0 && a.SubmittedAt != nil && now.Sub(*a.SubmittedAt) < resubmitWindow {
			return a, nil
		}
		completed++
	}

	if err := s.checkStartable(exam, now); err != nil {
		return nil, err
	}
	if limit := exam.Settings.Data().MaxAttempts; limit > 0 && completed >= limit {
		return nil, fmt.Errorf("%d of %d attempts used: %w", completed, limit, ErrAttemptLimitReached)
	}

	log.Warn().Str("examID", exam.ID).Str("userID", p.UserID).Msg("Submit: no attempt in progress, creating one for the submission")
	attempt = &model.Attempt{
		ExamID:         exam.ID,
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
		StartedAt:      now.Add(-time.Second),
	}
	if _, err := s.attemptRepo.CreateInProgress(ctx, attempt); err != nil {
		if retry && errors.Is(err, gorm.ErrRecordNotFound) {
			log.Info().Str("examID", exam.ID).Str("userID", p.UserID).Msg("Submit: open attempt was committed concurrently, resolving again")
			return s.openOrCreateSubmitAttempt(ctx, p, exam, false)
		}
		return nil, fmt.Errorf("create attempt for submission: %w", err)
	}
	return attempt, nil
}

// resolveLostSubmit handles a submit that lost the status compare-and-set to a
// concurrent submit of the same attempt.
func (s *examAttemptService) resolveLostSubmit(ctx context.Context, attemptID string) (*dto.SubmitExamResponse, error) {
	winner, err := s.attemptRepo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("reload attempt %s: %w", attemptID, err)
	}
	if !winner.Status.Completed() {
		return nil, fmt.Errorf("attempt %s is %s: %w", attemptID, winner.Status, ErrConflict)
	}
	log.Info().Str("attemptID", attemptID).Msg("Submit: concurrent submit already committed, returning its result")
	return submitResponseFromAttempt(winner)
}

func (s *examAttemptService) dispatchEnrichment(ctx context.Context, ev AttemptScoredEvent) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := s.dispatcher.Dispatch(dctx, ev); err != nil {
		log.Error().Err(err).Str("attemptID", ev.AttemptID).Msg("Submit: failed to dispatch enrichment; attempt stays pending")
	}
}

func submitResponseFromAttempt(a *model.Attempt) (*dto.SubmitExamResponse, error) {
	result, ok := a.ResultSnapshot()
	if !ok || a.SubmittedAt == nil || !a.TotalScore.Valid {
		return nil, fmt.Errorf("attempt %s has no stored result: %w", a.ID, ErrConflict)
	}
	return &dto.SubmitExamResponse{
		AttemptID:        a.ID,
		Status:           a.Status,
		EnrichmentStatus: a.EnrichmentStatus,
		SubmittedAt:      *a.SubmittedAt,
		TotalScore:       a.TotalScore.Decimal,
		Result: dto.ResultDTO{
			Passed:     result.Passed,
			MaxMarks:   result.MaxMarks,
			Percentage: scoring.RoundPercentage(result.Percentage),
		},
	}, nil
}

func (s *examAttemptService) GetAttemptDetails(ctx context.Context, p model.Principal, attemptID string) (*dto.AttemptDetailResponse, error) {
	attempt, err := s.attemptRepo.FindByIDWithDetails(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
		}
		return nil, fmt.Errorf("load attempt %s: %w", attemptID, err)
	}
	if attempt.OrganizationID != p.OrganizationID {
		return nil, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if attempt.UserID != p.UserID && !p.IsStaff() {
		return nil, fmt.Errorf("attempt %s belongs to another user: %w", attemptID, ErrForbidden)
	}

	resp := &dto.AttemptDetailResponse{
		AttemptSummaryDTO: summarizeAttempt(attempt),
		Answers:           []dto.AnswerDetailDTO{},
		Telemetry:         []dto.TelemetryEventDTO{},
	}
	if err := copier.Copy(&resp.Answers, &attempt.Answers); err != nil {
		return nil, fmt.Errorf("prepare answers: %w", err)
	}
	for _, batch := range attempt.Telemetry {
		var events []dto.TelemetryEventDTO
		data := batch.Events.Data()
		if err := copier.Copy(&events, &data); err != nil {
			return nil, fmt.Errorf("prepare telemetry: %w", err)
		}
		resp.Telemetry = append(resp.Telemetry, events...)
	}
	return resp, nil
}

func (s *examAttemptService) ListMyAttempts(ctx context.Context, p model.Principal) ([]dto.AttemptSummaryDTO, error) {
	attempts, err := s.attemptRepo.ListCompletedByUser(ctx, p.OrganizationID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return summarizeAttempts(attempts), nil
}

func (s *examAttemptService) ListExamAttempts(ctx context.Context, p model.Principal, examID string) ([]dto.AttemptSummaryDTO, error) {
	if !p.IsStaff() {
		return nil, fmt.Errorf("listing exam attempts: %w", ErrForbidden)
	}
	exam, err := s.loadExam(ctx, p.OrganizationID, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attemptRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return summarizeAttempts(attempts), nil
}

func summarizeAttempts(attempts []model.Attempt) []dto.AttemptSummaryDTO {
	out := make([]dto.AttemptSummaryDTO, 0, len(attempts))
	for i := range attempts {
		out = append(out, summarizeAttempt(&attempts[i]))
	}
	return out
}

func summarizeAttempt(a *model.Attempt) dto.AttemptSummaryDTO {
	summary := dto.AttemptSummaryDTO{
		ID:               a.ID,
		ExamID:           a.ExamID,
		UserID:           a.UserID,
		Status:           a.Status,
		EnrichmentStatus: a.EnrichmentStatus,
		StartedAt:        a.StartedAt,
		SubmittedAt:      a.SubmittedAt,
	}
	if a.TotalScore.Valid {
		total := a.TotalScore.Decimal
		summary.TotalScore = &total
	}
	if result, ok := a.ResultSnapshot(); ok {
		summary.Result = &dto.ResultDTO{
			Passed:     result.Passed,
			MaxMarks:   result.MaxMarks,
			Percentage: scoring.RoundPercentage(result.Percentage),
		}
	}
	return summary
}
