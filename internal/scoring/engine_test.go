package scoring

import (
	"testing"

	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mcq(id string, marks, penalty string, difficulty model.Difficulty) model.ScoredQuestion {
	return model.ScoredQuestion{
		QuestionID:    id,
		Difficulty:    difficulty,
		Marks:         dec(marks),
		NegativeMarks: dec(penalty),
		Options: []model.ScoredOption{
			{ID: id + "-a", Text: "A", Position: 1, IsCorrect: true},
			{ID: id + "-b", Text: "B", Position: 2},
			{ID: id + "-c", Text: "C", Position: 3},
		},
	}
}

func TestScore_PartialNegativeMarkingExample(t *testing.T) {
	questions := []model.ScoredQuestion{
		mcq("q1", "4", "1", model.DifficultyMedium),
		mcq("q2", "4", "1", model.DifficultyMedium),
	}
	answers := Submission{
		"q1": {OptionID: "q1-a"},
		"q2": {OptionID: "q2-b"},
	}

	res := NewEngine().Score(questions, answers, dec("40"))

	assert.True(t, res.TotalScore.Equal(dec("3")), "total %s", res.TotalScore)
	assert.True(t, res.MaxMarks.Equal(dec("8")))
	assert.True(t, res.Percentage.Equal(dec("37.5")), "percentage %s", res.Percentage)
	assert.False(t, res.Passed) // 3 < 3.2

	res = NewEngine().Score(questions, answers, dec("37.5"))
	assert.True(t, res.Passed) // 3 >= 3

	require.Len(t, res.Answers, 2)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.True(t, res.Answers[0].MarksAwarded.Equal(dec("4")))
	assert.False(t, res.Answers[1].IsCorrect)
	assert.True(t, res.Answers[1].MarksAwarded.Equal(dec("-1")))
}

func TestScore_PerQuestionOutcomes(t *testing.T) {
	q := mcq("q", "2.5", "0.75", model.DifficultyEasy)
	tests := []struct {
		name      string
		answer    *Answer
		isCorrect bool
		marks     string
		selected  bool
	}{
		{name: "unanswered never penalised", answer: nil, isCorrect: false, marks: "0"},
		{name: "empty option id is unanswered", answer: &Answer{OptionID: ""}, isCorrect: false, marks: "0"},
		{name: "correct option", answer: &Answer{OptionID: "q-a"}, isCorrect: true, marks: "2.5", selected: true},
		{name: "wrong option", answer: &Answer{OptionID: "q-c"}, isCorrect: false, marks: "-0.75", selected: true},
		{name: "option from another question", answer: &Answer{OptionID: "other-a"}, isCorrect: false, marks: "-0.75", selected: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answers := Submission{}
			if tc.answer != nil {
				answers["q"] = *tc.answer
			}
			res := NewEngine().Score([]model.ScoredQuestion{q}, answers, dec("50"))
			require.Len(t, res.Answers, 1)
			got := res.Answers[0]
			assert.Equal(t, tc.isCorrect, got.IsCorrect)
			assert.True(t, got.MarksAwarded.Equal(dec(tc.marks)), "marks %s", got.MarksAwarded)
			assert.Equal(t, tc.selected, got.SelectedOptionID != nil)
			assert.True(t, res.TotalScore.Equal(got.MarksAwarded))
		})
	}
}

func TestScore_SumOfMarksEqualsTotal(t *testing.T) {
	questions := []model.ScoredQuestion{
		mcq("q1", "1", "0.25", model.DifficultyEasy),
		mcq("q2", "2", "0.5", model.DifficultyMedium),
		mcq("q3", "3", "1", model.DifficultyHard),
		mcq("q4", "4", "0", model.DifficultyHard),
		mcq("q5", "0.1", "0.1", model.DifficultyEasy),
	}
	answers := Submission{
		"q1": {OptionID: "q1-b"},
		"q2": {OptionID: "q2-a"},
		"q4": {OptionID: "q4-c"},
		"q5": {OptionID: "q5-a"},
	}

	res := NewEngine().Score(questions, answers, dec("33.33"))

	sum := decimal.Zero
	for _, a := range res.Answers {
		sum = sum.Add(a.MarksAwarded)
	}
	assert.True(t, sum.Equal(res.TotalScore))
	assert.True(t, res.TotalScore.Equal(dec("1.85")), "total %s", res.TotalScore) // -0.25 + 2 + 0 + 0 + 0.1
	assert.True(t, res.MaxMarks.Equal(dec("10.1")))
}

func TestScore_NoPenaltiesNeverExceedsMax(t *testing.T) {
	questions := []model.ScoredQuestion{
		mcq("q1", "3", "0", model.DifficultyEasy),
		mcq("q2", "5", "0", model.DifficultyHard),
	}
	for _, answers := range []Submission{
		{},
		{"q1": {OptionID: "q1-a"}, "q2": {OptionID: "q2-a"}},
		{"q1": {OptionID: "q1-b"}, "q2": {OptionID: "q2-a"}},
	} {
		res := NewEngine().Score(questions, answers, dec("50"))
		assert.True(t, res.TotalScore.LessThanOrEqual(res.MaxMarks))
		assert.False(t, res.TotalScore.IsNegative())
	}
}

func TestScore_BorderlinePassUsesUnroundedValues(t *testing.T) {
	// 2/3 = 66.666...% ; rounding to 66.67 must not make a 66.67 pass mark succeed.
	questions := []model.ScoredQuestion{
		mcq("q1", "1", "0", model.DifficultyEasy),
		mcq("q2", "1", "0", model.DifficultyEasy),
		mcq("q3", "1", "0", model.DifficultyEasy),
	}
	answers := Submission{"q1": {OptionID: "q1-a"}, "q2": {OptionID: "q2-a"}}

	res := NewEngine().Score(questions, answers, dec("66.67"))
	assert.True(t, RoundPercentage(res.Percentage).Equal(dec("66.67")))
	assert.False(t, res.Passed)

	res = NewEngine().Score(questions, answers, dec("66.66"))
	assert.True(t, res.Passed)
}

func TestScore_EmptyExam(t *testing.T) {
	res := NewEngine().Score(nil, Submission{"ghost": {OptionID: "x"}}, dec("40"))
	assert.True(t, res.Percentage.IsZero())
	assert.True(t, res.TotalScore.IsZero())
	assert.True(t, res.Passed)
	assert.Empty(t, res.Answers)
}

func TestScore_NegativeTimeIsClamped(t *testing.T) {
	res := NewEngine().Score([]model.ScoredQuestion{mcq("q", "1", "0", model.DifficultyEasy)},
		Submission{"q": {OptionID: "q-a", TimeSpentMs: -50}}, dec("0"))
	assert.Equal(t, int64(0), res.Answers[0].TimeSpentMs)
}

type allOrNothing struct{}

func (allOrNothing) Mark(q model.ScoredQuestion, optionID string) (bool, decimal.Decimal) {
	opt, ok := q.Option(optionID)
	if ok && opt.IsCorrect {
		return true, q.Marks
	}
	return false, decimal.Zero
}

func TestScore_CustomPolicy(t *testing.T) {
	engine := NewEngine(WithPolicy(allOrNothing{}))
	res := engine.Score([]model.ScoredQuestion{mcq("q", "4", "2", model.DifficultyEasy)},
		Submission{"q": {OptionID: "q-b"}}, dec("40"))
	assert.True(t, res.TotalScore.IsZero())
}

func TestMatrixInsightPolicy(t *testing.T) {
	p := MatrixInsightPolicy{}
	tests := []struct {
		name       string
		difficulty model.Difficulty
		correct    bool
		timeMs     int64
		want       int
	}{
		{"hard correct", model.DifficultyHard, true, 1000, 100},
		{"medium correct", model.DifficultyMedium, true, 1000, 90},
		{"easy correct quick", model.DifficultyEasy, true, 30_000, 80},
		{"easy correct slow", model.DifficultyEasy, true, 130_000, 70},
		{"easy wrong", model.DifficultyEasy, false, 1000, 20},
		{"medium wrong", model.DifficultyMedium, false, 1000, 40},
		{"hard wrong rushed", model.DifficultyHard, false, 3000, 10},
		{"hard wrong considered", model.DifficultyHard, false, 60_000, 60},
		{"hard unanswered", model.DifficultyHard, false, 0, 60},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Insight(model.ScoredQuestion{Difficulty: tc.difficulty}, tc.correct, tc.timeMs)
			assert.Equal(t, tc.want, got)
		})
	}
}
