package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// currentExam lets clients address their assigned exam without knowing its ID.
const currentExam = "current"

// ExamSessions is the session core as seen by the transport layer.
type ExamSessions interface {
	Enter(ctx context.Context, participantID int, examID uuid.UUID) (*model.EnterResult, error)
	SubmitAnswer(ctx context.Context, participantID int, examID, questionID uuid.UUID, selectedOption string) (*model.AnswerRecord, error)
	SubmitAnswers(ctx context.Context, participantID int, examID uuid.UUID, inputs []model.AnswerInput) ([]model.AnswerRecord, error)
	Finish(ctx context.Context, participantID int, examID uuid.UUID) (*model.FinishResult, error)
	GetSessionStatus(ctx context.Context, participantID int, examID uuid.UUID) (*model.ParticipantSession, error)
	GetPaper(ctx context.Context, participantID int, examID uuid.UUID) (*model.ExamPaper, error)
	ListAnswers(ctx context.Context, participantID int, examID uuid.UUID) ([]model.AnswerRecord, error)
	ReportCheat(ctx context.Context, participantID int, examID uuid.UUID, req model.CheatReportRequest) error
}

// ParticipantHandler handles participant-facing exam endpoints.
type ParticipantHandler struct {
	sessions ExamSessions
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(sessions ExamSessions) *ParticipantHandler {
	return &ParticipantHandler{sessions: sessions}
}

// GetStatus godoc
// GET /api/v1/participant/exams/:exam_id/status
func (h *ParticipantHandler) GetStatus(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	sess, err := h.sessions.GetSessionStatus(c.Request.Context(), participantID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// Enter godoc
// POST /api/v1/participant/exams/:exam_id/enter
// Records the entry attempt and returns the gate decision.
func (h *ParticipantHandler) Enter(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	res, err := h.sessions.Enter(c.Request.Context(), participantID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// GetPaper godoc
// GET /api/v1/participant/exams/:exam_id/paper
// Returns questions without keys plus saved answers. Requires IN_PROGRESS.
func (h *ParticipantHandler) GetPaper(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	paper, err := h.sessions.GetPaper(c.Request.Context(), participantID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// SubmitAnswer godoc
// PUT /api/v1/participant/exams/:exam_id/answers
func (h *ParticipantHandler) SubmitAnswer(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.sessions.SubmitAnswer(c.Request.Context(), participantID, examID, req.QuestionID, req.SelectedOption)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": rec})
}

// SubmitAnswers godoc
// PUT /api/v1/participant/exams/:exam_id/answers/batch
// Saves several answers atomically (auto-save).
func (h *ParticipantHandler) SubmitAnswers(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	inputs := make([]model.AnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		inputs[i] = model.AnswerInput{QuestionID: a.QuestionID, SelectedOption: a.SelectedOption}
	}

	recs, err := h.sessions.SubmitAnswers(c.Request.Context(), participantID, examID, inputs)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answers": recs, "saved": len(recs)})
}

// ListAnswers godoc
// GET /api/v1/participant/exams/:exam_id/answers
func (h *ParticipantHandler) ListAnswers(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	recs, err := h.sessions.ListAnswers(c.Request.Context(), participantID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	if recs == nil {
		recs = []model.AnswerRecord{}
	}
	response.Success(c, http.StatusOK, gin.H{"answers": recs})
}

// Finish godoc
// POST /api/v1/participant/exams/:exam_id/finish
// Finalizes the session. Repeated calls return the recorded result.
func (h *ParticipantHandler) Finish(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	res, err := h.sessions.Finish(c.Request.Context(), participantID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// ReportCheat godoc
// POST /api/v1/participant/exams/:exam_id/reports
func (h *ParticipantHandler) ReportCheat(c *gin.Context) {
	participantID, examID, ok := participantScope(c)
	if !ok {
		return
	}

	var req model.CheatReportRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.ReportCheat(c.Request.Context(), participantID, examID, req); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{})
}

// participantScope extracts the caller and the exam addressed by the route.
// It writes the error response itself when it returns false.
func participantScope(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	examID, ok := parseExamParam(c)
	if !ok {
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

func parseExamParam(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("exam_id")
	if raw == currentExam {
		return uuid.Nil, true
	}
	examID, err := uuid.Parse(raw)
	if err != nil || examID == uuid.Nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}
