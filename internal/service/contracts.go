package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ExamCatalog is the read-only view of exams the session core consults.
type ExamCatalog interface {
	GetExamWindow(ctx context.Context, examID uuid.UUID) (model.ExamWindow, error)
	GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
}

// DefinitionLoader reads exam definitions from the system of record.
type DefinitionLoader interface {
	GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
	ListNotEnded(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// SessionStore owns ParticipantSession rows and the participant→exam assignment.
type SessionStore interface {
	AssignedExam(ctx context.Context, participantID int) (uuid.UUID, error)
	Get(ctx context.Context, key model.SessionKey) (*model.ParticipantSession, error)
	WithLockedSession(ctx context.Context, key model.SessionKey, mode repository.LockMode,
		fn func(ctx context.Context, sess *model.ParticipantSession, tx repository.SessionTx) error) error
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.SessionKey, error)
}

// ResultStore is the administrative side of the session store.
type ResultStore interface {
	Get(ctx context.Context, key model.SessionKey) (*model.ParticipantSession, error)
	ListByExam(ctx context.Context, examID uuid.UUID, status *model.SessionStatus, limit, offset int) ([]model.ExamResult, int, error)
	StatsByExam(ctx context.Context, examID uuid.UUID) (*model.SessionStats, error)
	Reset(ctx context.Context, key model.SessionKey) (*model.ResetSummary, error)
}

// AnswerReader reads stored answers without locking the session.
type AnswerReader interface {
	ListBySession(ctx context.Context, key model.SessionKey) ([]model.AnswerRecord, error)
}

// ParticipantReader looks up participant accounts.
type ParticipantReader interface {
	GetByUsername(ctx context.Context, username string) (*model.Participant, error)
	GetByID(ctx context.Context, id int) (*model.Participant, error)
}

// MonitorReader supplies the live monitor snapshot queries.
type MonitorReader interface {
	ListParticipantStates(ctx context.Context, examID uuid.UUID) ([]model.ParticipantProgress, error)
	GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error)
	GetCheatCounts(ctx context.Context, examID uuid.UUID) (map[int]int, error)
}

// ActivityRecorder receives session events. Recording is best-effort and never
// fails the operation that produced the event.
type ActivityRecorder interface {
	Record(ctx context.Context, e model.SessionEvent)
}

// ResultPublisher announces finalized results to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, r model.FinalizedResult) error
}
