package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamReport summarizes one exam for administrators.
type ExamReport struct {
	ExamID            uuid.UUID `json:"exam_id"`
	Title             string    `json:"title"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
	TotalQuestions    int       `json:"total_questions"`
	TotalParticipants int       `json:"total_participants"`
	NotLoggedIn       int       `json:"not_logged_in"`
	NotStarted        int       `json:"not_started"`
	InProgress        int       `json:"in_progress"`
	Submitted         int       `json:"submitted"`
	HighestScore      *float64  `json:"highest_score"`
	LowestScore       *float64  `json:"lowest_score"`
	AverageScore      *float64  `json:"average_score"`
	AttendanceRate    float64   `json:"attendance_rate"`
}

// SessionStats is the raw aggregate a report is built from.
type SessionStats struct {
	Assigned     int
	ByStatus     map[SessionStatus]int
	HighestScore *float64
	LowestScore  *float64
	AverageScore *float64
}

// ExamResult is one row of the per-exam result listing.
type ExamResult struct {
	ParticipantID   int           `json:"participant_id"`
	Username        string        `json:"username"`
	ParticipantName string        `json:"participant_name"`
	Status          SessionStatus `json:"status"`
	LoginAt         *time.Time    `json:"login_at,omitempty"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	AutoSubmitted   bool          `json:"auto_submitted"`
	Score           *ScoreResult  `json:"score,omitempty"`
}

// ResultDetail is the read-only grading view of one participant's answers.
type ResultDetail struct {
	Session  *ParticipantSession `json:"session"`
	Outcomes []QuestionOutcome   `json:"outcomes"`
	Result   ScoreResult         `json:"result"`
}

// ResetSummary reports what an administrative reset removed.
type ResetSummary struct {
	ParticipantID   int       `json:"participant_id"`
	ExamID          uuid.UUID `json:"exam_id"`
	AnswersDeleted  int64     `json:"answers_deleted"`
	SessionsDeleted int64     `json:"sessions_deleted"`
}

// ParticipantProgress is one row of the live monitor snapshot.
type ParticipantProgress struct {
	ParticipantID   int           `json:"participant_id"`
	ParticipantName string        `json:"participant_name"`
	Status          SessionStatus `json:"status"`
	AnsweredCount   int           `json:"answered_count"`
	CheatCount      int           `json:"cheat_count"`
	LoginAt         *time.Time    `json:"login_at,omitempty"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
}

// MonitorSnapshot is pushed to admins on the SSE monitor stream.
type MonitorSnapshot struct {
	ExamID         uuid.UUID             `json:"exam_id"`
	TotalQuestions int                   `json:"total_questions"`
	Participants   []ParticipantProgress `json:"participants"`
	GeneratedAt    time.Time             `json:"generated_at"`
}
