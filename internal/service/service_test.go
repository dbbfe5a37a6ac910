package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lshigami/examcore/config"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/lshigami/examcore/internal/scoring"
	"github.com/lshigami/examcore/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	student      = model.Principal{UserID: "student-1", OrganizationID: "org-1", Role: model.RoleStudent}
	otherStudent = model.Principal{UserID: "student-2", OrganizationID: "org-1", Role: model.RoleStudent}
	teacher      = model.Principal{UserID: "teacher-1", OrganizationID: "org-1", Role: model.RoleTeacher}
	outsider     = model.Principal{UserID: "student-1", OrganizationID: "org-2", Role: model.RoleAdmin}
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []AttemptScoredEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev AttemptScoredEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, ev)
	return nil
}

func (d *recordingDispatcher) Events() []AttemptScoredEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AttemptScoredEvent(nil), d.events...)
}

type fixture struct {
	db           *gorm.DB
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
	attemptRepo  repository.AttemptRepository
	answerRepo   repository.AnswerRepository
	progressRepo repository.ProgressRepository
	dispatcher   *recordingDispatcher
	attempts     *examAttemptService
	clock        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, repository.AutoMigrate(db))

	f := &fixture{
		db:           db,
		examRepo:     repository.NewExamRepository(db),
		questionRepo: repository.NewQuestionRepository(db),
		attemptRepo:  repository.NewAttemptRepository(db),
		answerRepo:   repository.NewAnswerRepository(db),
		progressRepo: repository.NewProgressRepository(db),
		dispatcher:   &recordingDispatcher{},
		clock:        time.Now().UTC().Truncate(time.Second),
	}
	f.attempts = NewExamAttemptService(f.examRepo, f.questionRepo, f.attemptRepo, f.answerRepo,
		f.progressRepo, scoring.NewEngine(), f.dispatcher).(*examAttemptService)
	f.attempts.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// twoQuestionExam is worth 8 marks with a 1 mark penalty per wrong answer.
func (f *fixture) twoQuestionExam(t *testing.T, settings model.ExamSettings) *model.Exam {
	t.Helper()
	return testutil.SeedExam(t, f.db, testutil.ExamFixture{
		OrganizationID: "org-1",
		PassPercentage: "40",
		Settings:       settings,
		Questions: []testutil.QuestionFixture{
			{Marks: "4", NegativeMarks: "1", Difficulty: model.DifficultyEasy},
			{Marks: "4", NegativeMarks: "1", Difficulty: model.DifficultyHard},
		},
	})
}

func (f *fixture) enrichment(reasoning ReasoningService) EnrichmentService {
	return f.enrichmentWithTimeout(reasoning, time.Second)
}

func (f *fixture) enrichmentWithTimeout(reasoning ReasoningService, callTimeout time.Duration) EnrichmentService {
	cfg := &config.Config{}
	cfg.Enrichment.Workers = 2
	cfg.Enrichment.CallTimeout = callTimeout
	cfg.Enrichment.Lease = 10 * time.Minute
	return NewEnrichmentService(cfg, f.attemptRepo, f.answerRepo, f.questionRepo, reasoning)
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
