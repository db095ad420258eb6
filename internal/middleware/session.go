package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// SessionValidator checks a participant token against the active login.
type SessionValidator interface {
	ValidateParticipantSession(ctx context.Context, participantID int, jti string) error
}

// CheckSingleDeviceSession validates the JWT's JTI against the active login in Redis.
// A mismatch means the login was reset by an operator or replaced.
func CheckSingleDeviceSession(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.TokenType != service.TokenTypeParticipant {
			c.Next()
			return
		}

		err := sessions.ValidateParticipantSession(c.Request.Context(), claims.UserID, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrSessionInvalidated), errors.Is(err, service.ErrNoActiveSession):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}
