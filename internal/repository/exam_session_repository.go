package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// LockMode selects the row lock taken on a session inside WithLockedSession.
type LockMode int

const (
	// LockShared (FOR SHARE) lets answer writes for different questions run side
	// by side while still excluding a concurrent finalization.
	LockShared LockMode = iota
	// LockExclusive (FOR UPDATE) serializes state transitions on one session.
	LockExclusive
)

func (m LockMode) clause() string {
	if m == LockExclusive {
		return "FOR UPDATE"
	}
	return "FOR SHARE"
}

// SessionTx is the set of writes available while a session row is locked.
// SaveSession must only be called under LockExclusive.
type SessionTx interface {
	SaveSession(ctx context.Context, s *model.ParticipantSession) error
	UpsertAnswer(ctx context.Context, a *model.AnswerRecord) error
	ListAnswers(ctx context.Context) ([]model.AnswerRecord, error)
	RecordParticipantScore(ctx context.Context, percentage float64) error
}

const sessionColumns = `participant_id, exam_id, status, login_at, submitted_at, auto_submitted,
	total_questions, answered_count, correct_count, wrong_count, unanswered_count, final_score`

// ExamSessionRepository handles participant session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
	tx   *database.Transactor
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool, tx *database.Transactor) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool, tx: tx}
}

// AssignedExam returns the exam a participant is assigned to.
func (r *ExamSessionRepository) AssignedExam(ctx context.Context, participantID int) (uuid.UUID, error) {
	var examID *uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id FROM participants WHERE id = $1`, participantID,
	).Scan(&examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrParticipantNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("query assignment: %w", err)
	}
	if examID == nil {
		return uuid.Nil, ErrNoAssignment
	}
	return *examID, nil
}

// Get reads a session without locking it.
func (r *ExamSessionRepository) Get(ctx context.Context, key model.SessionKey) (*model.ParticipantSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE participant_id = $1 AND exam_id = $2`,
		key.ParticipantID, key.ExamID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

// WithLockedSession makes sure the session row exists, locks it with mode and
// runs fn in the same transaction. The transaction commits only if fn returns nil.
func (r *ExamSessionRepository) WithLockedSession(
	ctx context.Context,
	key model.SessionKey,
	mode LockMode,
	fn func(ctx context.Context, sess *model.ParticipantSession, tx SessionTx) error,
) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exam_sessions (participant_id, exam_id, status)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (participant_id, exam_id) DO NOTHING`,
			key.ParticipantID, key.ExamID, model.SessionStatusNotLoggedIn,
		); err != nil {
			return fmt.Errorf("ensure session: %w", err)
		}

		sess, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM exam_sessions
			 WHERE participant_id = $1 AND exam_id = $2 `+mode.clause(),
			key.ParticipantID, key.ExamID,
		))
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		return fn(ctx, sess, &pgSessionTx{tx: tx, key: key})
	})
}

// ListOverdue returns in-progress sessions whose exam ended at or before cutoff,
// oldest exam first.
func (r *ExamSessionRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.SessionKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.participant_id, s.exam_id
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = $1 AND e.ends_at <= $2
		 ORDER BY e.ends_at, s.participant_id
		 LIMIT $3`,
		model.SessionStatusInProgress, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue sessions: %w", err)
	}
	defer rows.Close()

	var keys []model.SessionKey
	for rows.Next() {
		var k model.SessionKey
		if err := rows.Scan(&k.ParticipantID, &k.ExamID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListByExam returns a page of results for every participant assigned to the
// exam, including those who never opened it.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID, status *model.SessionStatus, limit, offset int) ([]model.ExamResult, int, error) {
	where := `WHERE p.exam_id = $1`
	args := []any{examID}
	if status != nil {
		where += ` AND COALESCE(s.status, 'NOT_LOGGED_IN') = $2`
		args = append(args, *status)
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM participants p
		 LEFT JOIN exam_sessions s ON s.participant_id = p.id AND s.exam_id = p.exam_id
		 `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT p.id, p.username, p.name, COALESCE(s.status, 'NOT_LOGGED_IN'), s.login_at, s.submitted_at,
		        COALESCE(s.auto_submitted, FALSE), s.total_questions, s.answered_count, s.correct_count,
		        s.wrong_count, s.unanswered_count, s.final_score
		 FROM participants p
		 LEFT JOIN exam_sessions s ON s.participant_id = p.id AND s.exam_id = p.exam_id
		 %s
		 ORDER BY s.final_score DESC NULLS LAST, p.name
		 LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := make([]model.ExamResult, 0, limit)
	for rows.Next() {
		var (
			res   model.ExamResult
			score scoreColumns
		)
		if err := rows.Scan(&res.ParticipantID, &res.Username, &res.ParticipantName, &res.Status,
			&res.LoginAt, &res.SubmittedAt, &res.AutoSubmitted,
			&score.total, &score.answered, &score.correct, &score.wrong, &score.unanswered, &score.percentage,
		); err != nil {
			return nil, 0, err
		}
		res.Score = score.result()
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// StatsByExam aggregates session states and submitted scores for one exam.
func (r *ExamSessionRepository) StatsByExam(ctx context.Context, examID uuid.UUID) (*model.SessionStats, error) {
	stats := &model.SessionStats{ByStatus: make(map[model.SessionStatus]int)}

	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(s.status, 'NOT_LOGGED_IN'), COUNT(*)
		 FROM participants p
		 LEFT JOIN exam_sessions s ON s.participant_id = p.id AND s.exam_id = p.exam_id
		 WHERE p.exam_id = $1
		 GROUP BY 1`, examID,
	)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	for rows.Next() {
		var (
			status model.SessionStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Assigned += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT MAX(final_score)::float8, MIN(final_score)::float8, ROUND(AVG(final_score), 2)::float8
		 FROM exam_sessions
		 WHERE exam_id = $1 AND status = $2`,
		examID, model.SessionStatusSubmitted,
	).Scan(&stats.HighestScore, &stats.LowestScore, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("query score aggregates: %w", err)
	}

	return stats, nil
}

// Reset deletes a participant's answers and session for one exam and clears the
// recorded score, all in one transaction.
func (r *ExamSessionRepository) Reset(ctx context.Context, key model.SessionKey) (*model.ResetSummary, error) {
	summary := &model.ResetSummary{ParticipantID: key.ParticipantID, ExamID: key.ExamID}

	err := r.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM participant_answers WHERE participant_id = $1 AND exam_id = $2`,
			key.ParticipantID, key.ExamID)
		if err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		summary.AnswersDeleted = tag.RowsAffected()

		tag, err = tx.Exec(ctx,
			`DELETE FROM exam_sessions WHERE participant_id = $1 AND exam_id = $2`,
			key.ParticipantID, key.ExamID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		summary.SessionsDeleted = tag.RowsAffected()

		if _, err := tx.Exec(ctx,
			`UPDATE participants SET final_score = NULL, updated_at = NOW()
			 WHERE id = $1 AND exam_id = $2`,
			key.ParticipantID, key.ExamID); err != nil {
			return fmt.Errorf("clear participant score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// pgSessionTx implements SessionTx on a pgx transaction scoped to one session.
type pgSessionTx struct {
	tx  pgx.Tx
	key model.SessionKey
}

// SaveSession writes the mutable session columns. The status guard refuses to
// touch a row that is already SUBMITTED.
func (t *pgSessionTx) SaveSession(ctx context.Context, s *model.ParticipantSession) error {
	var score scoreColumns
	score.set(s.Score)

	tag, err := t.tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $3, login_at = $4, submitted_at = $5, auto_submitted = $6,
		     total_questions = $7, answered_count = $8, correct_count = $9,
		     wrong_count = $10, unanswered_count = $11, final_score = $12,
		     updated_at = NOW()
		 WHERE participant_id = $1 AND exam_id = $2 AND status <> $13`,
		t.key.ParticipantID, t.key.ExamID,
		s.Status, s.LoginAt, s.SubmittedAt, s.AutoSubmitted,
		score.total, score.answered, score.correct, score.wrong, score.unanswered, score.percentage,
		model.SessionStatusSubmitted,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionFinalized
	}
	return nil
}

// UpsertAnswer inserts or overwrites the answer for (participant, exam, question).
func (t *pgSessionTx) UpsertAnswer(ctx context.Context, a *model.AnswerRecord) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO participant_answers (participant_id, exam_id, question_id, selected_option, is_correct, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (participant_id, exam_id, question_id)
		 DO UPDATE SET selected_option = EXCLUDED.selected_option,
		               is_correct = EXCLUDED.is_correct,
		               updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		t.key.ParticipantID, t.key.ExamID, a.QuestionID, a.SelectedOption, a.IsCorrect,
	).Scan(&a.UpdatedAt)
}

// ListAnswers returns every stored answer of the locked session.
func (t *pgSessionTx) ListAnswers(ctx context.Context) ([]model.AnswerRecord, error) {
	return listAnswers(ctx, t.tx, t.key)
}

// RecordParticipantScore stores the finalized percentage on the participant.
func (t *pgSessionTx) RecordParticipantScore(ctx context.Context, percentage float64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE participants SET final_score = $2, updated_at = NOW() WHERE id = $1`,
		t.key.ParticipantID, percentage)
	if err != nil {
		return fmt.Errorf("record participant score: %w", err)
	}
	return nil
}

// scoreColumns mirrors the nullable score columns of exam_sessions.
type scoreColumns struct {
	total, answered, correct, wrong, unanswered *int
	percentage                                  *float64
}

func (c *scoreColumns) set(r *model.ScoreResult) {
	if r == nil {
		*c = scoreColumns{}
		return
	}
	c.total, c.answered, c.correct = &r.TotalQuestions, &r.Answered, &r.Correct
	c.wrong, c.unanswered, c.percentage = &r.Wrong, &r.Unanswered, &r.Percentage
}

func (c scoreColumns) result() *model.ScoreResult {
	if c.percentage == nil {
		return nil
	}
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return &model.ScoreResult{
		TotalQuestions: deref(c.total),
		Answered:       deref(c.answered),
		Correct:        deref(c.correct),
		Wrong:          deref(c.wrong),
		Unanswered:     deref(c.unanswered),
		Percentage:     *c.percentage,
	}
}

func scanSession(row pgx.Row) (*model.ParticipantSession, error) {
	var (
		s     model.ParticipantSession
		score scoreColumns
	)
	err := row.Scan(&s.ParticipantID, &s.ExamID, &s.Status, &s.LoginAt, &s.SubmittedAt, &s.AutoSubmitted,
		&score.total, &score.answered, &score.correct, &score.wrong, &score.unanswered, &score.percentage)
	if err != nil {
		return nil, err
	}
	s.Score = score.result()
	return &s, nil
}
