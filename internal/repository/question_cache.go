package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lshigami/examcore/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// cachedQuestionRepository serves question snapshots from Redis. Only
// exam-scoped data goes through here; attempt state is never cached.
type cachedQuestionRepository struct {
	inner QuestionRepository
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedQuestionRepository(inner QuestionRepository, rdb *redis.Client, ttl time.Duration) QuestionRepository {
	if rdb == nil || ttl <= 0 {
		return inner
	}
	return &cachedQuestionRepository{inner: inner, rdb: rdb, ttl: ttl}
}

func questionCacheKey(examID string) string {
	return fmt.Sprintf("exam:%s:scored_questions", examID)
}

func (r *cachedQuestionRepository) FindScoredByExamID(ctx context.Context, examID string) ([]model.ScoredQuestion, error) {
	key := questionCacheKey(examID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snapshot []model.ScoredQuestion
		if jsonErr := json.Unmarshal(raw, &snapshot); jsonErr == nil {
			return snapshot, nil
		}
		log.Warn().Str("examID", examID).Msg("Discarding unreadable question snapshot from cache")
	case !errors.Is(err, redis.Nil):
		// Redis trouble must not take the exam down; fall back to the database.
		log.Warn().Err(err).Str("examID", examID).Msg("Question cache read failed")
	}

	snapshot, err := r.inner.FindScoredByExamID(ctx, examID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot, nil
	}
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("examID", examID).Msg("Question cache write failed")
	}
	return snapshot, nil
}
