package model

import "github.com/google/uuid"

// ScoreResult is the aggregate produced by grading. Wrong counts answered
// questions whose option does not match the key.
type ScoreResult struct {
	TotalQuestions int     `json:"total_questions"`
	Answered       int     `json:"answered"`
	Correct        int     `json:"correct"`
	Wrong          int     `json:"wrong"`
	Unanswered     int     `json:"unanswered"`
	Percentage     float64 `json:"percentage"`
}

// QuestionOutcome is the per-question line of a grading breakdown.
type QuestionOutcome struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Ordinal        int       `json:"ordinal"`
	CorrectOption  string    `json:"correct_option"`
	SelectedOption *string   `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}
