package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/response"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db        Pinger
	rdb       *redis.Client
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, startTime: time.Now()}
}

// Live godoc
// GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// GET /ready
// Pings Postgres and Redis and reports the activity backlog.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	ready := true

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		ready = false
	}

	backlog, err := h.rdb.LLen(ctx, config.WorkerKey.PersistSessionEventsQueue).Result()
	if err != nil {
		checks["redis"] = err.Error()
		ready = false
	}

	body := gin.H{
		"checks":           checks,
		"activity_backlog": backlog,
		"goroutines":       runtime.NumGoroutine(),
		"uptime":           time.Since(h.startTime).Round(time.Second).String(),
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Data:     body,
			Error:    &response.ErrorBody{Code: response.ErrInternal, Message: response.GetMessage(response.ErrInternal)},
			Metadata: response.Metadata{RequestID: response.RequestID(c), Timestamp: time.Now().UTC().Format(time.RFC3339)},
		})
		return
	}
	response.Success(c, http.StatusOK, body)
}
