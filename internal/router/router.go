package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
)

// Auth is what the router needs from the auth service.
type Auth interface {
	middleware.TokenValidator
	middleware.SessionValidator
}

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Participant *handler.ParticipantHandler
	WS          *handler.WSHandler
	Result      *handler.ResultHandler
	Monitor     *handler.MonitorHandler
	Health      *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth Auth,
	handlers *Handlers,
	loginLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// An empty AllowedOrigins allows all origins so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.Health.Live)
	router.GET("/ready", handlers.Health.Ready)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authAPI := router.Group("/api/v1/auth/participant")
	{
		authAPI.POST("/login", loginLimiter.Middleware(), handlers.Auth.ParticipantLogin)

		signedIn := authAPI.Group("",
			middleware.RequireParticipantJWT(auth),
			middleware.CheckSingleDeviceSession(auth),
		)
		signedIn.POST("/logout", handlers.Auth.ParticipantLogout)
		signedIn.GET("/me", handlers.Auth.GetParticipantProfile)
	}

	// ─── 2. Participant Group (JWT + single device) ────────────────────
	participantAPI := router.Group("/api/v1/participant/exams/:exam_id")
	participantAPI.Use(
		middleware.RequireParticipantJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
		middleware.NoStore(),
	)
	{
		p := handlers.Participant
		participantAPI.GET("/status", p.GetStatus)
		participantAPI.POST("/enter", p.Enter)
		participantAPI.GET("/paper", p.GetPaper)
		participantAPI.GET("/answers", p.ListAnswers)
		participantAPI.PUT("/answers", p.SubmitAnswer)
		participantAPI.PUT("/answers/batch", p.SubmitAnswers)
		participantAPI.POST("/finish", p.Finish)
		participantAPI.POST("/reports", p.ReportCheat)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1/participant")
	ws.Use(
		middleware.RequireParticipantWSAuth(auth),
		middleware.CheckSingleDeviceSession(auth),
	)
	{
		ws.GET("/exams/:exam_id", handlers.WS.ExamStream)
	}

	// ─── 4. Admin Group (JWT + permissions) ────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth), middleware.NoStore())
	{
		exams := adminAPI.Group("/exams/:exam_id")
		r := handlers.Result

		exams.GET("/report", middleware.RequirePermission(model.PermissionResultsRead), r.GetReport)
		exams.GET("/results", middleware.RequirePermission(model.PermissionResultsRead), r.ListResults)
		exams.GET("/participants/:participant_id/result",
			middleware.RequirePermission(model.PermissionResultsRead), r.GetResultDetail)
		exams.DELETE("/participants/:participant_id/session",
			middleware.RequirePermission(model.PermissionSessionsReset), r.ResetSession)
		exams.POST("/cache/refresh", middleware.RequirePermission(model.PermissionExamsCache), r.RefreshCache)

		exams.GET("/monitor", middleware.RequirePermission(model.PermissionExamsMonitor), handlers.Monitor.MonitorExamSSE)
		exams.GET("/monitor/snapshot", middleware.RequirePermission(model.PermissionExamsMonitor), handlers.Monitor.GetSnapshot)

		adminAPI.DELETE("/participants/:participant_id/login",
			middleware.RequirePermission(model.PermissionSessionsReset), r.ResetLogin)
	}

	return router
}
