package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
)

type countingSweeper struct {
	calls atomic.Int32
	grace time.Duration
	limit int
	n     int
}

func (s *countingSweeper) ExpireOverdue(_ context.Context, grace time.Duration, limit int) (int, error) {
	s.calls.Add(1)
	s.grace, s.limit = grace, limit
	return s.n, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestExpiryRunOnceSweepsAndReleasesLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sweeper := &countingSweeper{n: 3}
	w := NewExpiryWorker(sweeper, rdb, "@every 1m", 30*time.Second, 250, zerolog.Nop())

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 3 || sweeper.calls.Load() != 1 {
		t.Fatalf("expected one sweep finalizing 3, got n=%d calls=%d", n, sweeper.calls.Load())
	}
	if sweeper.grace != 30*time.Second || sweeper.limit != 250 {
		t.Fatalf("sweeper got grace=%v limit=%d", sweeper.grace, sweeper.limit)
	}
	if mr.Exists(config.CacheKey.ExpirySweepLock()) {
		t.Fatal("sweep lock should be released after the run")
	}
}

func TestExpiryRunOnceSkipsWhenLocked(t *testing.T) {
	mr, rdb := newTestRedis(t)
	if err := mr.Set(config.CacheKey.ExpirySweepLock(), "other-replica"); err != nil {
		t.Fatal(err)
	}
	sweeper := &countingSweeper{}
	w := NewExpiryWorker(sweeper, rdb, "@every 1m", 0, 10, zerolog.Nop())

	if _, err := w.RunOnce(context.Background()); !errors.Is(err, ErrSweepLocked) {
		t.Fatalf("expected ErrSweepLocked, got %v", err)
	}
	if sweeper.calls.Load() != 0 {
		t.Fatal("sweeper must not run while another replica holds the lock")
	}
	if got, _ := mr.Get(config.CacheKey.ExpirySweepLock()); got != "other-replica" {
		t.Fatalf("foreign lock must be left alone, got %q", got)
	}
}

func TestExpiryStartStopsOnCancel(t *testing.T) {
	_, rdb := newTestRedis(t)
	w := NewExpiryWorker(&countingSweeper{}, rdb, "@every 1h", 0, 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
