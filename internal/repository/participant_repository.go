package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ParticipantRepository handles participant account data access.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, username, name, password_hash, exam_id, final_score::float8, created_at, updated_at`

// GetByUsername retrieves a participant by login name.
func (r *ParticipantRepository) GetByUsername(ctx context.Context, username string) (*model.Participant, error) {
	return r.get(ctx, `SELECT `+participantColumns+` FROM participants WHERE username = $1`, username)
}

// GetByID retrieves a participant by ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id int) (*model.Participant, error) {
	return r.get(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
}

func (r *ParticipantRepository) get(ctx context.Context, query string, arg any) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.Username, &p.Name, &p.PasswordHash, &p.ExamID, &p.FinalScore, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query participant: %w", err)
	}
	return p, nil
}

// Create inserts a participant, optionally assigned to an exam.
func (r *ParticipantRepository) Create(ctx context.Context, p *model.Participant) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO participants (username, name, password_hash, exam_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		p.Username, p.Name, p.PasswordHash, p.ExamID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}
