package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// MonitorRepository provides the read queries behind the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListParticipantStates returns every participant assigned to the exam with
// the state of their session (NOT_LOGGED_IN if no row exists yet).
func (r *MonitorRepository) ListParticipantStates(ctx context.Context, examID uuid.UUID) ([]model.ParticipantProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, COALESCE(s.status, 'NOT_LOGGED_IN'), s.login_at, s.submitted_at
		 FROM participants p
		 LEFT JOIN exam_sessions s ON s.participant_id = p.id AND s.exam_id = p.exam_id
		 WHERE p.exam_id = $1
		 ORDER BY p.name`,
		examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participant states: %w", err)
	}
	defer rows.Close()

	list := make([]model.ParticipantProgress, 0)
	for rows.Next() {
		var p model.ParticipantProgress
		if err := rows.Scan(&p.ParticipantID, &p.ParticipantName, &p.Status, &p.LoginAt, &p.SubmittedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// GetAnsweredCounts returns the number of answered questions per participant.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error) {
	return r.countBy(ctx,
		`SELECT participant_id, COUNT(*)
		 FROM participant_answers
		 WHERE exam_id = $1
		 GROUP BY participant_id`, examID)
}

// GetCheatCounts returns the number of cheat reports per participant.
func (r *MonitorRepository) GetCheatCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error) {
	return r.countBy(ctx,
		`SELECT participant_id, COUNT(*)
		 FROM session_events
		 WHERE exam_id = $1 AND event_type = '`+string(model.EventCheatReported)+`'
		 GROUP BY participant_id`, examID)
}

func (r *MonitorRepository) countBy(ctx context.Context, query string, examID uuid.UUID) (map[int]int, error) {
	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var (
			id    int
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
