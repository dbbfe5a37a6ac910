package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/lshigami/examcore/internal/model"
	"github.com/lshigami/examcore/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func TestProgressUpsert_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewProgressRepository(setupDB(t))

	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(ctx, []model.ProgressAnswer{
		{AttemptID: "a1", QuestionID: "q1", SelectedOptionID: strPtr("o1"), TimeSpentMs: 1000, UpdatedAt: now},
		{AttemptID: "a1", QuestionID: "q2", SelectedOptionID: strPtr("o5"), TimeSpentMs: 500, UpdatedAt: now},
	}))
	require.NoError(t, repo.Upsert(ctx, []model.ProgressAnswer{
		{AttemptID: "a1", QuestionID: "q1", SelectedOptionID: strPtr("o2"), TimeSpentMs: 4000, UpdatedAt: now.Add(time.Second)},
	}))
	require.NoError(t, repo.Upsert(ctx, nil))

	saved, err := repo.FindByAttempt(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, saved, 2)

	byQuestion := map[string]model.ProgressAnswer{}
	for _, p := range saved {
		byQuestion[p.QuestionID] = p
	}
	require.NotNil(t, byQuestion["q1"].SelectedOptionID)
	assert.Equal(t, "o2", *byQuestion["q1"].SelectedOptionID)
	assert.Equal(t, int64(4000), byQuestion["q1"].TimeSpentMs)
	assert.Equal(t, "o5", *byQuestion["q2"].SelectedOptionID)
}

func TestUpdateFeedback(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	attempts := repository.NewAttemptRepository(db)
	answers := repository.NewAnswerRepository(db)

	attempt := newAttempt("exam-1", "user-1")
	_, err := attempts.CreateInProgress(ctx, attempt)
	require.NoError(t, err)
	require.NoError(t, attempts.CommitSubmission(ctx, submission(attempt.ID, "q1")))

	stored, err := answers.FindByAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].AIFeedback)

	require.NoError(t, answers.UpdateFeedback(ctx, stored[0].ID, "Well reasoned."))
	stored, err = answers.FindByAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored[0].AIFeedback)
	assert.Equal(t, "Well reasoned.", *stored[0].AIFeedback)

	err = answers.UpdateFeedback(ctx, "missing", "text")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
