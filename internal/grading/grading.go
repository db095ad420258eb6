// Package grading scores a participant's answers against an exam's answer key.
// Everything here is a pure function: callers may grade as often as they like
// without touching stored state.
package grading

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// IsCorrect compares an option to the key case-insensitively.
func IsCorrect(selected, key string) bool {
	sel, ok := model.NormalizeOption(selected)
	if !ok {
		return false
	}
	return sel == strings.ToLower(strings.TrimSpace(key))
}

// Percentage returns round(correct/total*100, 2), or 0 for an empty exam.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(correct)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	f, _ := pct.Float64()
	return f
}

// Grade computes the ScoreResult of answers against questions. Correctness is
// re-derived from the current key; answers to questions outside the set are ignored.
func Grade(questions []model.Question, answers []model.AnswerRecord) model.ScoreResult {
	_, result := Evaluate(questions, answers)
	return result
}

// Evaluate returns the per-question breakdown in question order along with the aggregate.
func Evaluate(questions []model.Question, answers []model.AnswerRecord) ([]model.QuestionOutcome, model.ScoreResult) {
	byQuestion := make(map[uuid.UUID]string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.SelectedOption
	}

	outcomes := make([]model.QuestionOutcome, 0, len(questions))
	result := model.ScoreResult{TotalQuestions: len(questions)}

	for _, q := range questions {
		outcome := model.QuestionOutcome{
			QuestionID:    q.ID,
			Ordinal:       q.Ordinal,
			CorrectOption: strings.ToLower(q.CorrectOption),
		}

		if selected, ok := byQuestion[q.ID]; ok {
			sel := selected
			outcome.SelectedOption = &sel
			outcome.IsCorrect = IsCorrect(selected, q.CorrectOption)

			result.Answered++
			if outcome.IsCorrect {
				result.Correct++
			} else {
				result.Wrong++
			}
		} else {
			result.Unanswered++
		}

		outcomes = append(outcomes, outcome)
	}

	result.Percentage = Percentage(result.Correct, result.TotalQuestions)
	return outcomes, result
}
