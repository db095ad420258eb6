package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// OptionAlphabet lists the accepted answer options in canonical (lower) case.
const OptionAlphabet = "abcde"

// NormalizeOption lower-cases and trims an option, reporting whether it belongs
// to OptionAlphabet.
func NormalizeOption(raw string) (string, bool) {
	opt := strings.ToLower(strings.TrimSpace(raw))
	if len(opt) != 1 || !strings.Contains(OptionAlphabet, opt) {
		return "", false
	}
	return opt, true
}

// Question is a single multiple-choice question with its answer key.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Ordinal       int             `json:"ordinal"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option"`
}

// ForParticipant strips the answer key.
func (q Question) ForParticipant() QuestionForParticipant {
	return QuestionForParticipant{
		ID:           q.ID,
		Ordinal:      q.Ordinal,
		QuestionText: q.QuestionText,
		Options:      q.Options,
	}
}

// QuestionForParticipant is a question without the correct answer, sent to participants.
type QuestionForParticipant struct {
	ID           uuid.UUID       `json:"id"`
	Ordinal      int             `json:"ordinal"`
	QuestionText string          `json:"question_text"`
	Options      json.RawMessage `json:"options"`
}
