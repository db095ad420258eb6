package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Results is the administrative reporting surface.
type Results interface {
	Report(ctx context.Context, examID uuid.UUID) (*model.ExamReport, error)
	ListResults(ctx context.Context, examID uuid.UUID, status *model.SessionStatus, page, perPage int) ([]model.ExamResult, int, error)
	ResultDetail(ctx context.Context, examID uuid.UUID, participantID int) (*model.ResultDetail, error)
	ResetSession(ctx context.Context, examID uuid.UUID, participantID int) (*model.ResetSummary, error)
}

// CatalogRefresher rebuilds a cached exam definition.
type CatalogRefresher interface {
	Refresh(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// LoginResetter drops a participant's active login.
type LoginResetter interface {
	ResetParticipantLogin(ctx context.Context, participantID int) error
}

// ResultHandler handles admin reporting, resets and cache maintenance.
type ResultHandler struct {
	results Results
	catalog CatalogRefresher
	logins  LoginResetter
	log     zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results Results, catalog CatalogRefresher, logins LoginResetter, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		results: results,
		catalog: catalog,
		logins:  logins,
		log:     log.With().Str("component", "result_handler").Logger(),
	}
}

// GetReport godoc
// GET /api/v1/admin/exams/:exam_id/report
func (h *ResultHandler) GetReport(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}

	report, err := h.results.Report(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// ListResults godoc
// GET /api/v1/admin/exams/:exam_id/results?page=1&per_page=20&status=SUBMITTED
func (h *ResultHandler) ListResults(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	var status *model.SessionStatus
	if raw := c.Query("status"); raw != "" {
		st := model.SessionStatus(raw)
		switch st {
		case model.SessionStatusNotLoggedIn, model.SessionStatusNotStarted,
			model.SessionStatusInProgress, model.SessionStatusSubmitted:
			status = &st
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"status": "status must be a session state"})
			return
		}
	}

	results, total, err := h.results.ListResults(c.Request.Context(), examID, status, page, perPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 20
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results},
		response.NewPagination(page, perPage, total))
}

// GetResultDetail godoc
// GET /api/v1/admin/exams/:exam_id/participants/:participant_id/result
// Grades the stored answers without touching the recorded score.
func (h *ResultHandler) GetResultDetail(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}
	participantID, ok := parseParticipantParam(c)
	if !ok {
		return
	}

	detail, err := h.results.ResultDetail(c.Request.Context(), examID, participantID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// ResetSession godoc
// DELETE /api/v1/admin/exams/:exam_id/participants/:participant_id/session?logout=true
// Deletes answers and session and clears the recorded score. With logout=true
// the participant's device login is released as well.
func (h *ResultHandler) ResetSession(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}
	participantID, ok := parseParticipantParam(c)
	if !ok {
		return
	}

	summary, err := h.results.ResetSession(c.Request.Context(), examID, participantID)
	if err != nil {
		failWith(c, err)
		return
	}

	if c.Query("logout") == "true" {
		if err := h.logins.ResetParticipantLogin(c.Request.Context(), participantID); err != nil {
			h.log.Warn().Err(err).Int("participant_id", participantID).Msg("Failed to release login after reset")
		}
	}

	response.Success(c, http.StatusOK, summary)
}

// ResetLogin godoc
// DELETE /api/v1/admin/participants/:participant_id/login
// Releases a participant's single-device login so they can sign in again.
func (h *ResultHandler) ResetLogin(c *gin.Context) {
	participantID, ok := parseParticipantParam(c)
	if !ok {
		return
	}

	if err := h.logins.ResetParticipantLogin(c.Request.Context(), participantID); err != nil {
		h.log.Error().Err(err).Int("participant_id", participantID).Msg("Failed to reset login")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// RefreshCache godoc
// POST /api/v1/admin/exams/:exam_id/cache/refresh
func (h *ResultHandler) RefreshCache(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}

	def, err := h.catalog.Refresh(c.Request.Context(), examID)
	if errors.Is(err, service.ErrExamNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Cache refresh failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id":         def.Exam.ID,
		"total_questions": len(def.Questions),
	})
}

func parseAdminExamParam(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

func parseParticipantParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("participant_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
