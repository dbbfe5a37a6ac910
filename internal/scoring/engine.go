// Package scoring turns a question snapshot and a set of submitted answers into
// marks. Nothing in this package performs I/O.
package scoring

import (
	"github.com/lshigami/examcore/internal/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Answer is what a student submitted for one question.
type Answer struct {
	OptionID    string
	TimeSpentMs int64
}

// Submission maps question id to the submitted answer. A missing key or an
// empty OptionID means the question was left unanswered.
type Submission map[string]Answer

type AnswerOutcome struct {
	QuestionID       string
	SelectedOptionID *string
	IsCorrect        bool
	MarksAwarded     decimal.Decimal
	TimeSpentMs      int64
	InsightScore     int
}

type Result struct {
	Answers    []AnswerOutcome
	TotalScore decimal.Decimal
	MaxMarks   decimal.Decimal
	// Percentage is unrounded; use RoundPercentage when presenting it.
	Percentage decimal.Decimal
	Passed     bool
}

// Policy decides correctness and marks for a single question.
type Policy interface {
	Mark(q model.ScoredQuestion, optionID string) (isCorrect bool, marks decimal.Decimal)
}

// InsightPolicy produces the heuristic per-answer insight score shown next to
// the explanation. It never influences marks.
type InsightPolicy interface {
	Insight(q model.ScoredQuestion, isCorrect bool, timeSpentMs int64) int
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithInsightPolicy(p InsightPolicy) Option {
	return func(e *Engine) { e.insight = p }
}

type Engine struct {
	policy  Policy
	insight InsightPolicy
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{policy: NegativeMarkingPolicy{}, insight: MatrixInsightPolicy{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score marks every question in order. passPercentage is on a 0-100 scale.
func (e *Engine) Score(questions []model.ScoredQuestion, answers Submission, passPercentage decimal.Decimal) Result {
	res := Result{
		Answers:    make([]AnswerOutcome, 0, len(questions)),
		TotalScore: decimal.Zero,
		MaxMarks:   decimal.Zero,
		Percentage: decimal.Zero,
	}

	for _, q := range questions {
		res.MaxMarks = res.MaxMarks.Add(q.Marks)

		ans := answers[q.QuestionID]
		timeSpent := ans.TimeSpentMs
		if timeSpent < 0 {
			timeSpent = 0
		}

		outcome := AnswerOutcome{
			QuestionID:   q.QuestionID,
			MarksAwarded: decimal.Zero,
			TimeSpentMs:  timeSpent,
		}
		if ans.OptionID != "" {
			selected := ans.OptionID
			outcome.SelectedOptionID = &selected
			outcome.IsCorrect, outcome.MarksAwarded = e.policy.Mark(q, selected)
		}
		outcome.InsightScore = e.insight.Insight(q, outcome.IsCorrect, timeSpent)

		res.TotalScore = res.TotalScore.Add(outcome.MarksAwarded)
		res.Answers = append(res.Answers, outcome)
	}

	if res.MaxMarks.IsPositive() {
		res.Percentage = res.TotalScore.Mul(hundred).Div(res.MaxMarks)
	}
	// total >= max * pass / 100, compared without dividing.
	res.Passed = res.TotalScore.Mul(hundred).GreaterThanOrEqual(res.MaxMarks.Mul(passPercentage))
	return res
}

// RoundPercentage rounds a percentage for display. Pass/fail is always decided
// on the unrounded value.
func RoundPercentage(p decimal.Decimal) decimal.Decimal {
	return p.Round(2)
}

// NegativeMarkingPolicy awards the full weight for a correct option and deducts
// the penalty for any other selected option.
type NegativeMarkingPolicy struct{}

func (NegativeMarkingPolicy) Mark(q model.ScoredQuestion, optionID string) (bool, decimal.Decimal) {
	if opt, ok := q.Option(optionID); ok && opt.IsCorrect {
		return true, q.Marks
	}
	return false, q.NegativeMarks.Abs().Neg()
}
