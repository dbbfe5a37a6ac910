package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReasoning struct {
	mu       sync.Mutex
	requests []InsightRequest
	explain  func(ctx context.Context, req InsightRequest) (string, error)
}

func (r *fakeReasoning) Explain(ctx context.Context, req InsightRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.explain(ctx, req)
}

func (r *fakeReasoning) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func submitted(t *testing.T, f *fixture, settings model.ExamSettings, correct ...bool) (*model.Exam, string) {
	t.Helper()
	exam := f.twoQuestionExam(t, settings)
	resp, err := f.attempts.Submit(context.Background(), student, exam.ID, dto.SubmitExamRequest{Answers: answersFor(exam, correct...)})
	require.NoError(t, err)
	return exam, resp.AttemptID
}

func TestEnrichment_FailedCallGetsFallbackText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, false)

	reasoning := &fakeReasoning{explain: func(_ context.Context, req InsightRequest) (string, error) {
		if !req.IsCorrect {
			return "", errors.New("model overloaded")
		}
		return "Solid grasp of the basics.", nil
	}}
	require.NoError(t, f.enrichment(reasoning).Process(ctx, attemptID))
	assert.Equal(t, 2, reasoning.Calls())

	answers, err := f.answerRepo.FindByAttempt(ctx, attemptID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	for _, a := range answers {
		require.NotNil(t, a.AIFeedback)
		if a.IsCorrect {
			assert.Equal(t, "Solid grasp of the basics.", *a.AIFeedback)
		} else {
			assert.Equal(t, failedInsight, *a.AIFeedback)
		}
	}

	attempt, err := f.attemptRepo.FindByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusEvaluated, attempt.Status)
	assert.Equal(t, model.EnrichmentDone, attempt.EnrichmentStatus)
	// Scores are untouched by enrichment.
	assert.True(t, attempt.TotalScore.Decimal.Equal(decimal.NewFromInt(3)))
}

func TestEnrichment_HungCallTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, false)

	reasoning := &fakeReasoning{explain: func(callCtx context.Context, req InsightRequest) (string, error) {
		if !req.IsCorrect {
			<-callCtx.Done()
			return "", callCtx.Err()
		}
		return "Solid grasp of the basics.", nil
	}}

	started := time.Now()
	require.NoError(t, f.enrichmentWithTimeout(reasoning, 100*time.Millisecond).Process(ctx, attemptID))
	assert.Less(t, time.Since(started), 2*time.Second)

	answers, err := f.answerRepo.FindByAttempt(ctx, attemptID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	for _, a := range answers {
		require.NotNil(t, a.AIFeedback)
		if a.IsCorrect {
			assert.Equal(t, "Solid grasp of the basics.", *a.AIFeedback)
		} else {
			assert.Equal(t, failedInsight, *a.AIFeedback)
		}
	}

	attempt, err := f.attemptRepo.FindByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusEvaluated, attempt.Status)
	assert.Equal(t, model.EnrichmentDone, attempt.EnrichmentStatus)
}

func TestEnrichment_StaleRunningClaimIsTakenOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, true)

	// A run that died an hour ago left the attempt RUNNING.
	require.NoError(t, f.db.Model(&model.Attempt{}).Where("id = ?", attemptID).Updates(map[string]interface{}{
		"enrichment_status":     model.EnrichmentRunning,
		"enrichment_claimed_at": time.Now().UTC().Add(-time.Hour),
	}).Error)

	dispatcher := &recordingDispatcher{}
	n, err := RequeuePendingEnrichment(ctx, f.attemptRepo, dispatcher, time.Now().UTC().Add(-10*time.Minute), 100)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, attemptID, dispatcher.Events()[0].AttemptID)

	reasoning := &fakeReasoning{explain: func(context.Context, InsightRequest) (string, error) {
		return "ok", nil
	}}
	require.NoError(t, f.enrichment(reasoning).Process(ctx, attemptID))
	assert.Equal(t, 2, reasoning.Calls())

	attempt, err := f.attemptRepo.FindByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusEvaluated, attempt.Status)
	assert.Equal(t, model.EnrichmentDone, attempt.EnrichmentStatus)
}

func TestEnrichment_LiveRunningClaimIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, true)

	require.NoError(t, f.db.Model(&model.Attempt{}).Where("id = ?", attemptID).Updates(map[string]interface{}{
		"enrichment_status":     model.EnrichmentRunning,
		"enrichment_claimed_at": time.Now().UTC(),
	}).Error)

	dispatcher := &recordingDispatcher{}
	n, err := RequeuePendingEnrichment(ctx, f.attemptRepo, dispatcher, time.Now().UTC().Add(-10*time.Minute), 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	reasoning := &fakeReasoning{explain: func(context.Context, InsightRequest) (string, error) {
		return "ok", nil
	}}
	require.NoError(t, f.enrichment(reasoning).Process(ctx, attemptID))
	assert.Zero(t, reasoning.Calls())

	attempt, err := f.attemptRepo.FindByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentRunning, attempt.EnrichmentStatus)
}

func TestEnrichment_RedeliveryIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, true)

	reasoning := &fakeReasoning{explain: func(context.Context, InsightRequest) (string, error) {
		return "ok", nil
	}}
	enrich := f.enrichment(reasoning)
	require.NoError(t, enrich.Process(ctx, attemptID))
	require.NoError(t, enrich.Process(ctx, attemptID))
	assert.Equal(t, 2, reasoning.Calls())
}

func TestEnrichment_SkippedAttemptIsNotProcessed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{IsAIAnalysisEnabled: boolPtr(false)}, true, true)

	reasoning := &fakeReasoning{explain: func(context.Context, InsightRequest) (string, error) {
		return "ok", nil
	}}
	require.NoError(t, f.enrichment(reasoning).Process(ctx, attemptID))
	assert.Zero(t, reasoning.Calls())

	attempt, err := f.attemptRepo.FindByID(ctx, attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, attempt.Status)
	assert.Equal(t, model.EnrichmentSkipped, attempt.EnrichmentStatus)
}

func TestEnrichment_CancelledRunIsReleased(t *testing.T) {
	f := newFixture(t)
	_, attemptID := submitted(t, f, model.ExamSettings{}, true, false)

	ctx, cancel := context.WithCancel(context.Background())
	reasoning := &fakeReasoning{explain: func(callCtx context.Context, _ InsightRequest) (string, error) {
		cancel()
		return "", callCtx.Err()
	}}
	err := f.enrichment(reasoning).Process(ctx, attemptID)
	assert.ErrorIs(t, err, context.Canceled)

	attempt, err := f.attemptRepo.FindByID(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, attempt.Status)
	assert.Equal(t, model.EnrichmentPending, attempt.EnrichmentStatus)
}

func TestEnrichment_PromptInputs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exam := f.twoQuestionExam(t, model.ExamSettings{})
	resp, err := f.attempts.Submit(ctx, student, exam.ID, dto.SubmitExamRequest{Answers: answersFor(exam, true)})
	require.NoError(t, err)

	reasoning := &fakeReasoning{explain: func(context.Context, InsightRequest) (string, error) {
		return "ok", nil
	}}
	require.NoError(t, f.enrichment(reasoning).Process(ctx, resp.AttemptID))

	require.Len(t, reasoning.requests, 2)
	var answered, skipped InsightRequest
	for _, r := range reasoning.requests {
		if r.IsCorrect {
			answered = r
		} else {
			skipped = r
		}
	}
	assert.Equal(t, "Option", answered.SubmittedAnswer)
	assert.Equal(t, model.DifficultyEasy, answered.Difficulty)
	assert.Equal(t, "No Answer", skipped.SubmittedAnswer)
	assert.Equal(t, "Option", skipped.CorrectAnswer)
	assert.Equal(t, "Because.", skipped.Explanation)
}

func TestInsightRequestFor_Defaults(t *testing.T) {
	q := model.ScoredQuestion{
		QuestionID: "q1",
		Text:       "2 + 2?",
		Difficulty: model.DifficultyEasy,
		Options: []model.ScoredOption{
			{ID: "a", Text: "4", IsCorrect: true},
			{ID: "b", Text: "5"},
		},
	}

	req := insightRequestFor(model.AnswerRecord{QuestionID: "q1", SelectedOptionID: strPtr("b")}, q)
	assert.Equal(t, "5", req.SubmittedAnswer)
	assert.Equal(t, "4", req.CorrectAnswer)
	assert.Equal(t, "No explanation provided.", req.Explanation)

	req = insightRequestFor(model.AnswerRecord{QuestionID: "q1", SelectedOptionID: strPtr("gone")}, q)
	assert.Equal(t, "Unknown", req.SubmittedAnswer)

	q.Options = nil
	req = insightRequestFor(model.AnswerRecord{QuestionID: "q1"}, q)
	assert.Equal(t, "No Answer", req.SubmittedAnswer)
	assert.Equal(t, "Answer", req.CorrectAnswer)
}
