package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ExamRepository reads the exam catalog.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetDefinition loads an exam and its questions ordered by ordinal.
func (r *ExamRepository) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def := &model.ExamDefinition{}
	e := &def.Exam
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, starts_at, ends_at, created_at, updated_at
		 FROM exams WHERE id = $1`, examID,
	).Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query exam: %w", err)
	}
	e.StartsAt, e.EndsAt = e.StartsAt.UTC(), e.EndsAt.UTC()

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, ordinal, question_text, options, correct_option
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY ordinal`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	def.Questions = make([]model.Question, 0)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Ordinal, &q.QuestionText, &q.Options, &q.CorrectOption); err != nil {
			return nil, err
		}
		def.Questions = append(def.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return def, nil
}

// ListNotEnded returns the IDs of exams whose window has not closed yet at now.
func (r *ExamRepository) ListNotEnded(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams WHERE ends_at > $1 ORDER BY starts_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts an exam and its questions in one transaction. IDs left as
// uuid.Nil are generated; the definition is updated with the stored values.
func (r *ExamRepository) Create(ctx context.Context, def *model.ExamDefinition) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		e := &def.Exam
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (id, title, description, starts_at, ends_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at, updated_at`,
			e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt,
		).Scan(&e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range def.Questions {
			q := &def.Questions[i]
			if q.ID == uuid.Nil {
				q.ID = uuid.New()
			}
			q.ExamID = e.ID
			batch.Queue(
				`INSERT INTO questions (id, exam_id, ordinal, question_text, options, correct_option)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				q.ID, q.ExamID, q.Ordinal, q.QuestionText, string(q.Options), q.CorrectOption,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}
