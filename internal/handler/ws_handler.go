package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the exam WebSocket. Every action goes through the same
// session core as the REST endpoints.
type WSHandler struct {
	sessions ExamSessions
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions ExamSessions, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// GET /ws/v1/participant/exams/:exam_id
// Upgrades to WebSocket for autosave, submit and violation reports.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := parseExamParam(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	participantID := claims.UserID
	wsLog := h.log.With().
		Int("participant_id", participantID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Participant connected")

	ctx := c.Request.Context()
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(ctx, conn, participantID, examID, &msg); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed, closing")
			return
		}
	}
}

// dispatch runs one client action. It returns an error only when the reply
// could not be written.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, participantID int, examID uuid.UUID, msg *ws.RequestPayload) error {
	opCtx, cancel := context.WithTimeout(ctx, wsOpTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		return ws.WriteJSON(conn, ws.EventPong, msg.RequestID, nil)

	case ws.ActionAutosave:
		if msg.QuestionID == uuid.Nil || msg.SelectedOption == "" {
			return writeWSError(conn, msg.RequestID, response.ErrValidation, nil)
		}
		rec, err := h.sessions.SubmitAnswer(opCtx, participantID, examID, msg.QuestionID, msg.SelectedOption)
		if err != nil {
			return h.writeServiceError(conn, msg.RequestID, err)
		}
		return ws.WriteJSON(conn, ws.EventSaved, msg.RequestID, rec)

	case ws.ActionSubmit:
		res, err := h.sessions.Finish(opCtx, participantID, examID)
		if err != nil {
			return h.writeServiceError(conn, msg.RequestID, err)
		}
		return ws.WriteJSON(conn, ws.EventFinished, msg.RequestID, res)

	case ws.ActionReport:
		kind := strings.TrimSpace(msg.Kind)
		if kind == "" || len(kind) > 50 {
			return writeWSError(conn, msg.RequestID, response.ErrValidation, nil)
		}
		req := model.CheatReportRequest{Kind: kind, Detail: msg.Detail}
		if err := h.sessions.ReportCheat(opCtx, participantID, examID, req); err != nil {
			return h.writeServiceError(conn, msg.RequestID, err)
		}
		return ws.WriteJSON(conn, ws.EventReported, msg.RequestID, nil)

	default:
		return writeWSError(conn, msg.RequestID, response.ErrInvalidPayload, gin.H{"action": msg.Action})
	}
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, requestID string, err error) error {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	var d interface{}
	if rd := details(err); rd != nil {
		d = rd
	}
	return writeWSError(conn, requestID, code, d)
}

func writeWSError(conn *websocket.Conn, requestID string, code response.ErrCode, d interface{}) error {
	return ws.WriteError(conn, requestID, ws.ErrorBody{
		Code:    string(code),
		Message: response.GetMessage(code),
		Details: d,
	})
}
