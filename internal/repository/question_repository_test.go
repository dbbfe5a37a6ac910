package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/lshigami/examcore/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFindScoredByExamID(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	exam := testutil.SeedExam(t, db, testutil.ExamFixture{
		OrganizationID: "org-1",
		Questions: []testutil.QuestionFixture{
			{Marks: "4", NegativeMarks: "1"},
			{Marks: "2.5", Options: 3, Difficulty: model.DifficultyHard},
		},
	})
	repo := repository.NewQuestionRepository(db)

	snapshot, err := repo.FindScoredByExamID(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	assert.Equal(t, testutil.QuestionID(exam, 0), snapshot[0].QuestionID)
	assert.True(t, snapshot[0].Marks.Equal(decimal.NewFromInt(4)))
	assert.True(t, snapshot[0].NegativeMarks.Equal(decimal.NewFromInt(1)))
	assert.Len(t, snapshot[0].Options, 4)

	assert.Equal(t, model.DifficultyHard, snapshot[1].Difficulty)
	assert.True(t, snapshot[1].Marks.Equal(decimal.RequireFromString("2.5")))
	require.Len(t, snapshot[1].Options, 3)
	correct, ok := snapshot[1].CorrectOption()
	require.True(t, ok)
	assert.Equal(t, testutil.CorrectOption(exam, 1), correct.ID)

	_, err = repo.FindScoredByExamID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

type countingQuestionRepo struct {
	calls    int
	snapshot []model.ScoredQuestion
	err      error
}

func (r *countingQuestionRepo) FindScoredByExamID(ctx context.Context, examID string) ([]model.ScoredQuestion, error) {
	r.calls++
	return r.snapshot, r.err
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedQuestionRepository_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	inner := &countingQuestionRepo{snapshot: []model.ScoredQuestion{{
		QuestionID: "q1",
		Marks:      decimal.NewFromInt(4),
		Options:    []model.ScoredOption{{ID: "o1", IsCorrect: true}},
	}}}
	repo := repository.NewCachedQuestionRepository(inner, rdb, time.Minute)

	first, err := repo.FindScoredByExamID(ctx, "exam-1")
	require.NoError(t, err)
	second, err := repo.FindScoredByExamID(ctx, "exam-1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first[0].QuestionID, second[0].QuestionID)
	assert.True(t, second[0].Marks.Equal(decimal.NewFromInt(4)))
	assert.True(t, second[0].Options[0].IsCorrect)
	assert.True(t, mr.Exists("exam:exam-1:scored_questions"))

	mr.FastForward(2 * time.Minute)
	_, err = repo.FindScoredByExamID(ctx, "exam-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedQuestionRepository_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	inner := &countingQuestionRepo{snapshot: []model.ScoredQuestion{{QuestionID: "q1"}}}
	repo := repository.NewCachedQuestionRepository(inner, rdb, time.Minute)

	mr.Close()
	snapshot, err := repo.FindScoredByExamID(ctx, "exam-1")
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedQuestionRepository_DoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newMiniRedis(t)
	inner := &countingQuestionRepo{err: gorm.ErrRecordNotFound}
	repo := repository.NewCachedQuestionRepository(inner, rdb, time.Minute)

	_, err := repo.FindScoredByExamID(ctx, "exam-1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.False(t, mr.Exists("exam:exam-1:scored_questions"))
}

func TestNewCachedQuestionRepository_NilClientReturnsInner(t *testing.T) {
	inner := &countingQuestionRepo{}
	assert.Same(t, inner, repository.NewCachedQuestionRepository(inner, nil, time.Minute))
}
