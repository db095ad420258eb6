package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AnswerRepository reads stored answers outside of a session lock.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// ListBySession returns every answer of one participant for one exam.
func (r *AnswerRepository) ListBySession(ctx context.Context, key model.SessionKey) ([]model.AnswerRecord, error) {
	return listAnswers(ctx, r.pool, key)
}

func listAnswers(ctx context.Context, db database.DBTX, key model.SessionKey) ([]model.AnswerRecord, error) {
	rows, err := db.Query(ctx,
		`SELECT a.participant_id, a.exam_id, a.question_id, a.selected_option, a.is_correct, a.updated_at
		 FROM participant_answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE a.participant_id = $1 AND a.exam_id = $2
		 ORDER BY q.ordinal`,
		key.ParticipantID, key.ExamID,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := make([]model.AnswerRecord, 0)
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.ParticipantID, &a.ExamID, &a.QuestionID, &a.SelectedOption, &a.IsCorrect, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
