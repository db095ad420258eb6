package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates the states of a participant's session for one exam.
type SessionStatus string

const (
	SessionStatusNotLoggedIn SessionStatus = "NOT_LOGGED_IN"
	SessionStatusNotStarted  SessionStatus = "NOT_STARTED"
	SessionStatusInProgress  SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted   SessionStatus = "SUBMITTED"
)

// ParticipantSession is one participant's progress against one exam.
// SubmittedAt is set iff Status is SUBMITTED; the row is frozen after that.
type ParticipantSession struct {
	ParticipantID int           `json:"participant_id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	Status        SessionStatus `json:"status"`
	LoginAt       *time.Time    `json:"login_at,omitempty"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	AutoSubmitted bool          `json:"auto_submitted"`
	Score         *ScoreResult  `json:"score,omitempty"`
}

// NewParticipantSession returns the default state of a session that has never been touched.
func NewParticipantSession(participantID int, examID uuid.UUID) *ParticipantSession {
	return &ParticipantSession{
		ParticipantID: participantID,
		ExamID:        examID,
		Status:        SessionStatusNotLoggedIn,
	}
}

// IsSubmitted reports whether the session has been finalized.
func (s *ParticipantSession) IsSubmitted() bool {
	return s.Status == SessionStatusSubmitted
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (s *ParticipantSession) Clone() *ParticipantSession {
	if s == nil {
		return nil
	}
	cp := *s
	if s.LoginAt != nil {
		t := *s.LoginAt
		cp.LoginAt = &t
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		cp.SubmittedAt = &t
	}
	if s.Score != nil {
		sc := *s.Score
		cp.Score = &sc
	}
	return &cp
}

// SessionKey identifies a session row.
type SessionKey struct {
	ParticipantID int
	ExamID        uuid.UUID
}

// Gate is the access decision Enter hands back to the participant.
type Gate string

const (
	GateNotStarted   Gate = "NOT_STARTED"
	GateCanProceed   Gate = "CAN_PROCEED"
	GateWindowClosed Gate = "WINDOW_CLOSED"
)

// EnterResult is the outcome of an Enter call.
type EnterResult struct {
	Gate              Gate                `json:"gate"`
	Session           *ParticipantSession `json:"session"`
	ServerTime        time.Time           `json:"server_time"`
	SecondsUntilStart *int64              `json:"seconds_until_start,omitempty"`
	SecondsRemaining  *int64              `json:"seconds_remaining,omitempty"`
}

// FinishResult is the outcome of a Finish call. AlreadySubmitted marks a replay
// of a previously recorded result.
type FinishResult struct {
	ParticipantID    int         `json:"participant_id"`
	ExamID           uuid.UUID   `json:"exam_id"`
	Result           ScoreResult `json:"result"`
	SubmittedAt      time.Time   `json:"submitted_at"`
	AutoSubmitted    bool        `json:"auto_submitted"`
	AlreadySubmitted bool        `json:"already_submitted"`
}
