package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is a participant's current choice for one question.
// IsCorrect is always computed server-side.
type AnswerRecord struct {
	ParticipantID  int       `json:"participant_id"`
	ExamID         uuid.UUID `json:"exam_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SubmitAnswerRequest is the payload for saving one answer. Any correctness
// value the client sends is not bound and never reaches the store.
type SubmitAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption string    `json:"selected_option" binding:"required,exam_option"`
}

// SubmitAnswersRequest is the auto-save payload: several answers saved atomically.
type SubmitAnswersRequest struct {
	Answers []SubmitAnswerRequest `json:"answers" binding:"required,min=1,max=500,dive"`
}

// AnswerInput is one answer handed to the session core.
type AnswerInput struct {
	QuestionID     uuid.UUID
	SelectedOption string
}
