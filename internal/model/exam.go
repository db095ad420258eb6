package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the catalog entry for a single exam: its identity and its window.
type Exam struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExamWindow is the half-open interval [StartsAt, EndsAt) in which answers are accepted.
type ExamWindow struct {
	ExamID   uuid.UUID `json:"exam_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Position reports where now falls relative to the window.
func (w ExamWindow) Position(now time.Time) WindowPosition {
	switch {
	case now.Before(w.StartsAt):
		return WindowBefore
	case now.Before(w.EndsAt):
		return WindowOpen
	default:
		return WindowClosed
	}
}

// SecondsUntilStart rounds up so a caller never sees 0 before the exam opens.
func (w ExamWindow) SecondsUntilStart(now time.Time) int64 {
	d := w.StartsAt.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// SecondsRemaining rounds down so the remaining time is never overstated.
func (w ExamWindow) SecondsRemaining(now time.Time) int64 {
	d := w.EndsAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// WindowPosition classifies an instant against an ExamWindow.
type WindowPosition int

const (
	WindowBefore WindowPosition = iota
	WindowOpen
	WindowClosed
)

// ExamDefinition is the read-only view of an exam the session core grades against.
// It is what the catalog caches in Redis.
type ExamDefinition struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// Window returns the exam's time window.
func (d *ExamDefinition) Window() ExamWindow {
	return ExamWindow{ExamID: d.Exam.ID, StartsAt: d.Exam.StartsAt, EndsAt: d.Exam.EndsAt}
}

// ExamPaper is what an in-progress participant receives: questions without keys,
// the answers saved so far, and the time left on the server clock.
type ExamPaper struct {
	ExamID           uuid.UUID                `json:"exam_id"`
	Title            string                   `json:"title"`
	EndsAt           time.Time                `json:"ends_at"`
	ServerTime       time.Time                `json:"server_time"`
	SecondsRemaining int64                    `json:"seconds_remaining"`
	Questions        []QuestionForParticipant `json:"questions"`
	Answers          []AnswerRecord           `json:"answers"`
}
