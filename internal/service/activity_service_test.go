package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestActivityRecordQueuesAndPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	examID := uuid.New()
	sub := rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	svc := NewActivityService(rdb, zerolog.Nop())
	svc.Record(ctx, model.SessionEvent{
		ParticipantID: 3,
		ExamID:        examID,
		Type:          model.EventSessionEntered,
		OccurredAt:    examStart,
	})

	queued, err := mr.List(config.WorkerKey.PersistSessionEventsQueue)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}

	var e model.SessionEvent
	if err := json.Unmarshal([]byte(queued[0]), &e); err != nil {
		t.Fatal(err)
	}
	if e.Type != model.EventSessionEntered || e.ParticipantID != 3 || !e.OccurredAt.Equal(examStart) {
		t.Fatalf("queued event = %+v", e)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Payload != queued[0] {
		t.Fatalf("published %s, queued %s", msg.Payload, queued[0])
	}
}

func TestActivityRecordIgnoresRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	svc := NewActivityService(rdb, zerolog.Nop())
	svc.Record(context.Background(), model.SessionEvent{ExamID: uuid.New(), Type: model.EventAnswerSaved})
}
