package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// CatalogService serves exam definitions from Redis, falling back to Postgres.
// Concurrent misses for the same exam share one database load. A Redis outage
// degrades to direct database reads instead of failing requests.
type CatalogService struct {
	loader DefinitionLoader
	rdb    *redis.Client
	ttl    time.Duration
	clock  clock.Clock
	group  singleflight.Group
	log    zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(loader DefinitionLoader, rdb *redis.Client, ttl time.Duration, clk clock.Clock, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		loader: loader,
		rdb:    rdb,
		ttl:    ttl,
		clock:  clk,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// GetDefinition returns the exam with its ordered questions and answer keys.
func (s *CatalogService) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	cacheKey := config.CacheKey.ExamDefinitionKey(examID.String())

	raw, err := s.rdb.Get(ctx, cacheKey).Bytes()
	switch {
	case err == nil:
		var def model.ExamDefinition
		if jsonErr := json.Unmarshal(raw, &def); jsonErr == nil {
			return &def, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Discarding undecodable cached exam")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Catalog cache read failed, using database")
	}

	v, err, _ := s.group.Do(examID.String(), func() (any, error) {
		return s.load(ctx, examID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ExamDefinition), nil
}

// GetExamWindow returns the exam's [starts_at, ends_at) window.
func (s *CatalogService) GetExamWindow(ctx context.Context, examID uuid.UUID) (model.ExamWindow, error) {
	def, err := s.GetDefinition(ctx, examID)
	if err != nil {
		return model.ExamWindow{}, err
	}
	return def.Window(), nil
}

// GetQuestions returns the exam's questions ordered by ordinal.
func (s *CatalogService) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	def, err := s.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	return def.Questions, nil
}

// Refresh drops the cached copy and loads the exam again from the database.
func (s *CatalogService) Refresh(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Err(); err != nil {
		return nil, fmt.Errorf("invalidate cache: %w", err)
	}
	s.group.Forget(examID.String())
	return s.load(ctx, examID)
}

// PrewarmAll caches every exam whose window has not ended yet and returns how
// many were cached. Individual failures are logged and skipped.
func (s *CatalogService) PrewarmAll(ctx context.Context) (int, error) {
	ids, err := s.loader.ListNotEnded(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list exams: %w", err)
	}

	warmed := 0
	for _, id := range ids {
		if _, err := s.load(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to prewarm exam")
			continue
		}
		warmed++
	}
	return warmed, nil
}

func (s *CatalogService) load(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, err := s.loader.GetDefinition(ctx, examID)
	if errors.Is(err, repository.ErrExamNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal exam: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(examID.String()), payload, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache exam")
	}

	s.log.Debug().
		Str("exam_id", examID.String()).
		Int("questions", len(def.Questions)).
		Msg("Exam cached")
	return def, nil
}
