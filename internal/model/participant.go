package model

import (
	"time"

	"github.com/google/uuid"
)

// Participant is an examinee account. ExamID is the participant's exam
// assignment; FinalScore holds the percentage recorded at finalization.
type Participant struct {
	ID           int        `json:"id"`
	Username     string     `json:"username"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	ExamID       *uuid.UUID `json:"exam_id,omitempty"`
	FinalScore   *float64   `json:"final_score,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ParticipantLoginRequest is the payload for participant authentication.
type ParticipantLoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// ParticipantLoginResponse is returned after a successful participant login.
type ParticipantLoginResponse struct {
	Token       string      `json:"token"`
	Participant Participant `json:"participant"`
}
