package scoring

import "github.com/lshigami/examcore/internal/model"

const (
	slowEasyThresholdMs   = 120_000
	rushedHardThresholdMs = 5_000
)

// MatrixInsightPolicy rates an answer by difficulty and time spent.
type MatrixInsightPolicy struct{}

func (MatrixInsightPolicy) Insight(q model.ScoredQuestion, isCorrect bool, timeSpentMs int64) int {
	if isCorrect {
		switch q.Difficulty {
		case model.DifficultyHard:
			return 100
		case model.DifficultyMedium:
			return 90
		default:
			if timeSpentMs > slowEasyThresholdMs {
				return 70
			}
			return 80
		}
	}

	switch q.Difficulty {
	case model.DifficultyEasy:
		return 20
	case model.DifficultyMedium:
		return 40
	default:
		// a wrong HARD answer given within seconds looks like a guess
		if timeSpentMs > 0 && timeSpentMs < rushedHardThresholdMs {
			return 10
		}
		return 60
	}
}
