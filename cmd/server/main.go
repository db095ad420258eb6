package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/messaging"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/router"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
	"github.com/stemsi/exstem-cbt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem CBT")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.System{}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	var publisher service.ResultPublisher
	if cfg.RabbitMQURL != "" {
		mq, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL, clk)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer mq.Close()

		if _, err := mq.DeclareQueue(cfg.ResultsQueue); err != nil {
			log.Fatal().Err(err).Str("queue", cfg.ResultsQueue).Msg("Failed to declare results queue")
		}
		publisher = messaging.NewResultPublisher(mq, cfg.ResultsQueue)
		log.Info().Str("queue", cfg.ResultsQueue).Msg("Publishing finalized results to RabbitMQ")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	transactor := database.NewTransactor(pool)
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool, transactor)
	answerRepo := repository.NewAnswerRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	eventRepo := repository.NewSessionEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	catalogService := service.NewCatalogService(examRepo, rdb, cfg.CatalogCacheTTL, clk, log)
	activityService := service.NewActivityService(rdb, log)
	authService := service.NewAuthService(cfg, rdb, participantRepo, clk)
	sessionService := service.NewExamSessionService(sessionRepo, answerRepo, catalogService, clk, activityService, publisher, log)
	resultService := service.NewResultService(sessionRepo, answerRepo, catalogService, activityService, clk, log)
	monitorService := service.NewMonitorService(monitorRepo, catalogService, rdb, clk, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, participantRepo, log),
		Participant: handler.NewParticipantHandler(sessionService),
		WS:          handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Result:      handler.NewResultHandler(resultService, catalogService, authService, log),
		Monitor:     handler.NewMonitorHandler(monitorService, log),
		Health:      handler.NewHealthHandler(pool, rdb),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	activityWorker := worker.NewActivityWorker(eventRepo, rdb, cfg.ActivityBatchSize, cfg.ActivityBatchTimeout, log)
	expiryWorker := worker.NewExpiryWorker(sessionService, rdb, cfg.ExpirySweepSpec, cfg.ExpiryGrace, cfg.ExpirySweepLimit, log)
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRateLimitRPS, cfg.LoginRateLimitBurst)

	workers.Add(3)
	go func() { defer workers.Done(); activityWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); expiryWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); loginLimiter.Run(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every exam that has not ended before accepting traffic.
	if n, err := catalogService.PrewarmAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	} else {
		log.Info().Int("exams", n).Msg("Exam catalog prewarmed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, loginLimiter, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the activity worker flushes its buffer.
	workerCancel()
	drained := make(chan struct{})
	go func() { workers.Wait(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(worker.ShutdownTimeout + time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
