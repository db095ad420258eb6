package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

// Monitor supplies live progress for an exam.
type Monitor interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error)
	Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub
}

// MonitorHandler streams live exam progress to operators over SSE.
type MonitorHandler struct {
	monitor Monitor
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitor Monitor, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Sends a snapshot, then forwards session events as they happen. A fresh
// snapshot follows every refresh interval that saw activity.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	snap, err := h.snapshot(reqCtx, examID)
	if err != nil {
		failWith(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	pubsub := h.monitor.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	dirty := false
	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already JSON; forward it untouched.
			_, _ = c.Writer.WriteString("event: activity\ndata: " + msg.Payload + "\n\n")
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			snap, err := h.snapshot(reqCtx, examID)
			if err != nil {
				h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Monitor refresh failed")
				continue
			}
			c.SSEvent("snapshot", snap)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			_, _ = c.Writer.WriteString(": ping\n\n")
			c.Writer.Flush()
		}
	}
}

// GetSnapshot godoc
// GET /api/v1/admin/exams/:exam_id/monitor/snapshot
func (h *MonitorHandler) GetSnapshot(c *gin.Context) {
	examID, ok := parseAdminExamParam(c)
	if !ok {
		return
	}

	snap, err := h.snapshot(c.Request.Context(), examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

func (h *MonitorHandler) snapshot(parent context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitor.Snapshot(ctx, examID)
}
