package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/grading"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ResultService serves the administrative, read-mostly side of sessions:
// reports, result listings, per-participant grading views and resets.
type ResultService struct {
	results  ResultStore
	answers  AnswerReader
	catalog  ExamCatalog
	activity ActivityRecorder
	clock    clock.Clock
	log      zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(results ResultStore, answers AnswerReader, catalog ExamCatalog, activity ActivityRecorder, clk clock.Clock, log zerolog.Logger) *ResultService {
	return &ResultService{
		results:  results,
		answers:  answers,
		catalog:  catalog,
		activity: activity,
		clock:    clk,
		log:      log.With().Str("component", "results").Logger(),
	}
}

// Report aggregates session states and scores for one exam.
func (s *ResultService) Report(ctx context.Context, examID uuid.UUID) (*model.ExamReport, error) {
	def, err := s.catalog.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}

	stats, err := s.results.StatsByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}

	notLoggedIn := stats.ByStatus[model.SessionStatusNotLoggedIn]
	return &model.ExamReport{
		ExamID:            def.Exam.ID,
		Title:             def.Exam.Title,
		StartsAt:          def.Exam.StartsAt,
		EndsAt:            def.Exam.EndsAt,
		TotalQuestions:    len(def.Questions),
		TotalParticipants: stats.Assigned,
		NotLoggedIn:       notLoggedIn,
		NotStarted:        stats.ByStatus[model.SessionStatusNotStarted],
		InProgress:        stats.ByStatus[model.SessionStatusInProgress],
		Submitted:         stats.ByStatus[model.SessionStatusSubmitted],
		HighestScore:      stats.HighestScore,
		LowestScore:       stats.LowestScore,
		AverageScore:      stats.AverageScore,
		AttendanceRate:    grading.Percentage(stats.Assigned-notLoggedIn, stats.Assigned),
	}, nil
}

// ListResults returns one page of per-participant results. page is 1-based.
func (s *ResultService) ListResults(ctx context.Context, examID uuid.UUID, status *model.SessionStatus, page, perPage int) ([]model.ExamResult, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 20
	}
	results, total, err := s.results.ListByExam(ctx, examID, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	return results, total, nil
}

// ResultDetail grades a participant's stored answers question by question.
// It never writes: the stored score of a submitted session is left as is.
func (s *ResultService) ResultDetail(ctx context.Context, examID uuid.UUID, participantID int) (*model.ResultDetail, error) {
	key := model.SessionKey{ParticipantID: participantID, ExamID: examID}

	questions, err := s.catalog.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	sess, err := s.results.Get(ctx, key)
	if errors.Is(err, repository.ErrSessionNotFound) {
		sess = model.NewParticipantSession(participantID, examID)
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	answers, err := s.answers.ListBySession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	outcomes, result := grading.Evaluate(questions, answers)
	return &model.ResultDetail{Session: sess, Outcomes: outcomes, Result: result}, nil
}

// ResetSession wipes a participant's session and answers for the exam so they
// can sit it again.
func (s *ResultService) ResetSession(ctx context.Context, examID uuid.UUID, participantID int) (*model.ResetSummary, error) {
	key := model.SessionKey{ParticipantID: participantID, ExamID: examID}

	summary, err := s.results.Reset(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}

	if s.activity != nil {
		s.activity.Record(ctx, model.SessionEvent{
			ParticipantID: participantID,
			ExamID:        examID,
			Type:          model.EventSessionReset,
			OccurredAt:    s.clock.Now(),
		})
	}

	s.log.Info().
		Int("participant_id", participantID).
		Str("exam_id", examID.String()).
		Int64("answers_deleted", summary.AnswersDeleted).
		Msg("Session reset")
	return summary, nil
}
