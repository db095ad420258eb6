package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
)

// ErrSweepLocked is returned by RunOnce when another replica holds the sweep lock.
var ErrSweepLocked = errors.New("expiry sweep already running elsewhere")

// Sweeper finalizes sessions left IN_PROGRESS after their exam ended.
type Sweeper interface {
	ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ExpiryWorker runs the expiry sweep on a cron schedule in UTC.
type ExpiryWorker struct {
	sweeper Sweeper
	rdb     *redis.Client
	spec    string
	grace   time.Duration
	limit   int
	lockTTL time.Duration
	log     zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker. spec is a robfig/cron spec such
// as "@every 1m".
func NewExpiryWorker(sweeper Sweeper, rdb *redis.Client, spec string, grace time.Duration, limit int, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sweeper: sweeper,
		rdb:     rdb,
		spec:    spec,
		grace:   grace,
		limit:   limit,
		lockTTL: 5 * time.Minute,
		log:     log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled. A run that is
// still going when the next tick fires causes that tick to be skipped.
func (w *ExpiryWorker) Start(ctx context.Context) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := c.AddFunc(w.spec, func() {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepLocked) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
	}); err != nil {
		w.log.Error().Err(err).Str("spec", w.spec).Msg("Invalid expiry sweep schedule, worker disabled")
		return
	}

	c.Start()
	w.log.Info().Str("spec", w.spec).Dur("grace", w.grace).Msg("ExpiryWorker started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.log.Info().Msg("ExpiryWorker stopped")
}

// RunOnce performs a single sweep under the cross-replica lock.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (int, error) {
	token := uuid.NewString()
	lockKey := config.CacheKey.ExpirySweepLock()

	ok, err := w.rdb.SetNX(ctx, lockKey, token, w.lockTTL).Result()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSweepLocked
	}
	defer func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), w.rdb, []string{lockKey}, token).Err(); err != nil {
			w.log.Warn().Err(err).Msg("Failed to release sweep lock")
		}
	}()

	n, err := w.sweeper.ExpireOverdue(ctx, w.grace, w.limit)
	if n > 0 {
		w.log.Info().Int("finalized", n).Msg("Auto-finished expired sessions")
	}
	return n, err
}
