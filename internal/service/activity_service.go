package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ActivityService fans session events out to Redis: the persistence queue read
// by the activity worker and the exam's live monitor channel.
type ActivityService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewActivityService creates a new ActivityService.
func NewActivityService(rdb *redis.Client, log zerolog.Logger) *ActivityService {
	return &ActivityService{
		rdb: rdb,
		log: log.With().Str("component", "activity").Logger(),
	}
}

// Record queues and publishes e in a single round trip. Failures are logged.
func (s *ActivityService) Record(ctx context.Context, e model.SessionEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.log.Error().Err(err).Str("event", string(e.Type)).Msg("Failed to encode session event")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistSessionEventsQueue, payload)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(e.ExamID.String()), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).
			Str("event", string(e.Type)).
			Int("participant_id", e.ParticipantID).
			Msg("Failed to record session event")
	}
}
