package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// SessionEventRepository persists the session activity log.
type SessionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// CopyEvents bulk-inserts events with the COPY protocol. The whole batch fails
// if any row is rejected.
func (r *SessionEventRepository) CopyEvents(ctx context.Context, events []model.SessionEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.ParticipantID, e.ExamID, string(e.Type), nullableJSON(e.Data), e.OccurredAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"session_events"},
		[]string{"participant_id", "exam_id", "event_type", "event_data", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertEvent inserts a single event.
func (r *SessionEventRepository) InsertEvent(ctx context.Context, e model.SessionEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (participant_id, exam_id, event_type, event_data, occurred_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		e.ParticipantID, e.ExamID, string(e.Type), nullableJSON(e.Data), e.OccurredAt,
	)
	return err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
