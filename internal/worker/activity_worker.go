package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const (
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	ShutdownTimeout = 5 * time.Second

	// MaxEventAttempts is how many failed inserts an event gets before it is
	// moved to the dead-letter list.
	MaxEventAttempts = 5
)

// EventStore is where the activity worker persists events.
type EventStore interface {
	CopyEvents(ctx context.Context, events []model.SessionEvent) error
	InsertEvent(ctx context.Context, e model.SessionEvent) error
}

// ActivityWorker drains the session event queue into Postgres in batches.
type ActivityWorker struct {
	store        EventStore
	rdb          *redis.Client
	batchSize    int
	batchTimeout time.Duration
	retryBackoff time.Duration
	log          zerolog.Logger
}

// NewActivityWorker creates a new ActivityWorker.
func NewActivityWorker(store EventStore, rdb *redis.Client, batchSize int, batchTimeout time.Duration, log zerolog.Logger) *ActivityWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ActivityWorker{
		store:        store,
		rdb:          rdb,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		retryBackoff: 2 * time.Second,
		log:          log.With().Str("component", "activity_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes what is buffered.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ActivityWorker started")

	buffer := make([]model.SessionEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistSessionEventsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var e model.SessionEvent
		if err := json.Unmarshal([]byte(result[1]), &e); err != nil {
			// Malformed payloads can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed event")
			continue
		}
		buffer = append(buffer, e)
	}
}

// flushSafe tries a bulk COPY, then row-by-row inserts, then requeues what still failed.
func (w *ActivityWorker) flushSafe(ctx context.Context, batch []model.SessionEvent) {
	err := w.store.CopyEvents(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Events persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.SessionEvent
	for _, e := range batch {
		if err := w.store.InsertEvent(ctx, e); err != nil {
			w.log.Error().Err(err).
				Int("participant_id", e.ParticipantID).
				Str("event", string(e.Type)).
				Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ActivityWorker) requeue(ctx context.Context, events []model.SessionEvent) {
	// The shutdown context may already be short-lived; use a fresh one for Redis.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	retried, dead := 0, 0
	pipe := w.rdb.Pipeline()
	for _, e := range events {
		e.Attempts++
		data, _ := json.Marshal(e)
		if e.Attempts >= MaxEventAttempts {
			pipe.RPush(rctx, config.WorkerKey.DeadSessionEventsQueue, data)
			dead++
			continue
		}
		pipe.RPush(rctx, config.WorkerKey.PersistSessionEventsQueue, data)
		retried++
	}
	if _, err := pipe.Exec(rctx); err != nil {
		w.log.Error().Err(err).Int("count", len(events)).Msg("CRITICAL: Failed to requeue events to Redis. Data loss occurred.")
		return
	}
	if dead > 0 {
		w.log.Error().Int("count", dead).Int("max_attempts", MaxEventAttempts).Msg("Moved undeliverable events to dead-letter list")
	}
	if retried > 0 {
		w.log.Info().Int("count", retried).Msg("Requeued failed events back to Redis")
		sleepCtx(ctx, w.retryBackoff)
	}
}

func (w *ActivityWorker) shutdown(buffer []model.SessionEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("ActivityWorker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
