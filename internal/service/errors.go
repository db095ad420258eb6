package service

import (
	"errors"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Session core errors.
var (
	ErrWindowClosed         = errors.New("exam window is closed")
	ErrExamNotStarted       = errors.New("exam has not started yet")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrSessionNotInProgress = errors.New("exam session is not in progress")
	ErrQuestionNotInExam    = errors.New("question does not belong to this exam")
	ErrInvalidOption        = errors.New("selected option is not one of a-e")
	ErrExamNotAssigned      = errors.New("exam is not assigned to this participant")
	ErrExamNotFound         = errors.New("exam not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrEmptyBatch           = errors.New("no answers to save")
)

// RejectionError is returned when a session operation is refused. It carries the
// authoritative session state at the moment of refusal, including the recorded
// result once the session is submitted.
type RejectionError struct {
	Reason     error
	Session    *model.ParticipantSession
	ServerTime time.Time
}

func (e *RejectionError) Error() string {
	return e.Reason.Error()
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

func reject(reason error, sess *model.ParticipantSession, now time.Time) *RejectionError {
	return &RejectionError{Reason: reason, Session: sess.Clone(), ServerTime: now}
}
