package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// Authenticator issues and revokes participant logins.
type Authenticator interface {
	LoginParticipant(ctx context.Context, username, password string) (*model.ParticipantLoginResponse, error)
	ResetParticipantLogin(ctx context.Context, participantID int) error
}

// ParticipantProfiles loads participant accounts.
type ParticipantProfiles interface {
	GetByID(ctx context.Context, id int) (*model.Participant, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth         Authenticator
	participants ParticipantProfiles
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Authenticator, participants ParticipantProfiles, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		participants: participants,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

// ParticipantLogin godoc
// POST /api/v1/auth/participant/login
// Only one device may hold a login at a time; an operator can reset it.
func (h *AuthHandler) ParticipantLogin(c *gin.Context) {
	var req model.ParticipantLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.auth.LoginParticipant(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	case errors.Is(err, service.ErrSessionAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		return
	default:
		h.log.Error().Err(err).Str("username", req.Username).Msg("Participant login failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ParticipantLogout godoc
// POST /api/v1/auth/participant/logout
func (h *AuthHandler) ParticipantLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.auth.ResetParticipantLogin(c.Request.Context(), claims.UserID); err != nil {
		h.log.Error().Err(err).Int("participant_id", claims.UserID).Msg("Logout failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetParticipantProfile godoc
// GET /api/v1/auth/participant/me
func (h *AuthHandler) GetParticipantProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	p, err := h.participants.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participant": p})
}
