package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionEventType names something that happened to a session.
type SessionEventType string

const (
	EventSessionEntered  SessionEventType = "SESSION_ENTERED"
	EventAnswerSaved     SessionEventType = "ANSWER_SAVED"
	EventSessionFinished SessionEventType = "SESSION_FINISHED"
	EventSessionExpired  SessionEventType = "SESSION_AUTO_FINISHED"
	EventSessionReset    SessionEventType = "SESSION_RESET"
	EventCheatReported   SessionEventType = "CHEAT_REPORTED"
)

// SessionEvent is an activity log entry. It is queued in Redis, fanned out to
// the live monitor and persisted in batches by the activity worker.
type SessionEvent struct {
	ParticipantID int              `json:"participant_id"`
	ExamID        uuid.UUID        `json:"exam_id"`
	Type          SessionEventType `json:"type"`
	Data          json.RawMessage  `json:"data,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
	Attempts      int              `json:"attempts,omitempty"`
}

// FinalizedResult is published to the message broker after a session is finalized.
type FinalizedResult struct {
	ParticipantID int         `json:"participant_id"`
	ExamID        uuid.UUID   `json:"exam_id"`
	Result        ScoreResult `json:"result"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	AutoSubmitted bool        `json:"auto_submitted"`
}

// CheatReportRequest is what a client sends when it detects a violation
// (tab switch, window blur and so on).
type CheatReportRequest struct {
	Kind   string          `json:"kind" binding:"required,max=50"`
	Detail json.RawMessage `json:"detail"`
}
