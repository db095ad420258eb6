package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// MonitorService builds the live exam monitor view.
type MonitorService struct {
	monitor MonitorReader
	catalog ExamCatalog
	rdb     *redis.Client
	clock   clock.Clock
	log     zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitor MonitorReader, catalog ExamCatalog, rdb *redis.Client, clk clock.Clock, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitor: monitor,
		catalog: catalog,
		rdb:     rdb,
		clock:   clk,
		log:     log.With().Str("component", "monitor").Logger(),
	}
}

// Snapshot returns every assigned participant with their state, answered
// count and cheat count. The three queries run concurrently; cheat counts are
// best-effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	questions, err := s.catalog.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	var (
		states   []model.ParticipantProgress
		answered map[int]int
		cheats   map[int]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		states, err = s.monitor.ListParticipantStates(gctx, examID)
		if err != nil {
			return fmt.Errorf("participant states: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		answered, err = s.monitor.GetAnsweredCounts(gctx, examID)
		if err != nil {
			return fmt.Errorf("answered counts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cheats, err = s.monitor.GetCheatCounts(gctx, examID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cheat counts unavailable")
			cheats = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range states {
		states[i].AnsweredCount = answered[states[i].ParticipantID]
		states[i].CheatCount = cheats[states[i].ParticipantID]
	}

	return &model.MonitorSnapshot{
		ExamID:         examID,
		TotalQuestions: len(questions),
		Participants:   states,
		GeneratedAt:    s.clock.Now(),
	}, nil
}

// Subscribe opens the Redis channel carrying the exam's session events.
// The caller must close the returned PubSub.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
