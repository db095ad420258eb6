package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// rejectionDetails is the state attached to a refused session operation.
type rejectionDetails struct {
	Session    *model.ParticipantSession `json:"session,omitempty"`
	ServerTime time.Time                 `json:"server_time"`
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrWindowClosed):
		return http.StatusConflict, response.ErrWindowClosed
	case errors.Is(err, service.ErrExamNotStarted):
		return http.StatusConflict, response.ErrExamNotStarted
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrSessionNotInProgress):
		return http.StatusConflict, response.ErrSessionNotInProgress
	case errors.Is(err, service.ErrQuestionNotInExam):
		return http.StatusUnprocessableEntity, response.ErrQuestionNotInExam
	case errors.Is(err, service.ErrInvalidOption):
		return http.StatusUnprocessableEntity, response.ErrInvalidOption
	case errors.Is(err, service.ErrEmptyBatch):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrExamNotAssigned):
		return http.StatusForbidden, response.ErrExamNotAssigned
	case errors.Is(err, service.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, service.ErrParticipantNotFound):
		return http.StatusNotFound, response.ErrNotFound
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// details extracts the rejection state carried by err, if any.
func details(err error) *rejectionDetails {
	var rej *service.RejectionError
	if !errors.As(err, &rej) {
		return nil
	}
	return &rejectionDetails{Session: rej.Session, ServerTime: rej.ServerTime}
}

// failWith writes the error response for a service error.
func failWith(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if d := details(err); d != nil {
		response.FailWithDetails(c, status, code, d)
		return
	}
	response.Fail(c, status, code)
}
