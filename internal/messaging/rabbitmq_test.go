package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-cbt/internal/model"
)

type recordingPublisher struct {
	queue string
	body  []byte
	err   error
}

func (r *recordingPublisher) Publish(_ context.Context, queue string, body []byte) error {
	r.queue, r.body = queue, body
	return r.err
}

func TestResultPublisherEncodesResult(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewResultPublisher(rec, "exam.results")

	want := model.FinalizedResult{
		ParticipantID: 7,
		ExamID:        uuid.New(),
		Result:        model.ScoreResult{TotalQuestions: 5, Answered: 3, Correct: 2, Wrong: 1, Unanswered: 2, Percentage: 40},
		SubmittedAt:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := pub.PublishResult(context.Background(), want); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}

	if rec.queue != "exam.results" {
		t.Fatalf("expected queue exam.results, got %q", rec.queue)
	}
	var got model.FinalizedResult
	if err := json.Unmarshal(rec.body, &got); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if got.ParticipantID != want.ParticipantID || got.Result != want.Result || !got.SubmittedAt.Equal(want.SubmittedAt) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestResultPublisherWrapsError(t *testing.T) {
	boom := errors.New("channel closed")
	pub := NewResultPublisher(&recordingPublisher{err: boom}, "q")

	if err := pub.PublishResult(context.Background(), model.FinalizedResult{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped channel error, got %v", err)
	}
}
