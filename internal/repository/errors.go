package repository

import "errors"

var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNoAssignment        = errors.New("participant has no exam assignment")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionFinalized    = errors.New("session already finalized")
)
