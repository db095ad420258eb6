package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/grading"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ExamSessionService drives a participant through an exam:
// NOT_LOGGED_IN → NOT_STARTED → IN_PROGRESS → SUBMITTED.
//
// Every mutation runs inside a transaction holding a row lock on the session,
// and reads the clock only after the lock is held.
type ExamSessionService struct {
	sessions  SessionStore
	answers   AnswerReader
	catalog   ExamCatalog
	clock     clock.Clock
	activity  ActivityRecorder
	publisher ResultPublisher
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. publisher may be nil.
func NewExamSessionService(
	sessions SessionStore,
	answers AnswerReader,
	catalog ExamCatalog,
	clk clock.Clock,
	activity ActivityRecorder,
	publisher ResultPublisher,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions:  sessions,
		answers:   answers,
		catalog:   catalog,
		clock:     clk,
		activity:  activity,
		publisher: publisher,
		log:       log.With().Str("component", "exam_session").Logger(),
	}
}

// resolve maps a participant to their assigned exam. A non-nil examID that
// differs from the assignment is refused.
func (s *ExamSessionService) resolve(ctx context.Context, participantID int, examID uuid.UUID) (model.SessionKey, error) {
	assigned, err := s.sessions.AssignedExam(ctx, participantID)
	switch {
	case errors.Is(err, repository.ErrNoAssignment):
		return model.SessionKey{}, ErrExamNotAssigned
	case errors.Is(err, repository.ErrParticipantNotFound):
		return model.SessionKey{}, ErrParticipantNotFound
	case err != nil:
		return model.SessionKey{}, fmt.Errorf("resolve assignment: %w", err)
	}

	if examID != uuid.Nil && examID != assigned {
		return model.SessionKey{}, ErrExamNotAssigned
	}
	return model.SessionKey{ParticipantID: participantID, ExamID: assigned}, nil
}

// Enter records a participant's attempt to open the exam and returns the gate.
func (s *ExamSessionService) Enter(ctx context.Context, participantID int, examID uuid.UUID) (*model.EnterResult, error) {
	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}

	window, err := s.catalog.GetExamWindow(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}

	var (
		result    *model.EnterResult
		firstOpen bool
	)
	err = s.sessions.WithLockedSession(ctx, key, repository.LockExclusive,
		func(ctx context.Context, sess *model.ParticipantSession, tx repository.SessionTx) error {
			now := s.clock.Now()
			result = &model.EnterResult{ServerTime: now}
			changed := false

			switch window.Position(now) {
			case model.WindowBefore:
				result.Gate = model.GateNotStarted
				secs := window.SecondsUntilStart(now)
				result.SecondsUntilStart = &secs
				if sess.Status == model.SessionStatusNotLoggedIn {
					sess.Status = model.SessionStatusNotStarted
					changed = true
				}

			case model.WindowOpen:
				if sess.IsSubmitted() {
					return reject(ErrAlreadySubmitted, sess, now)
				}
				result.Gate = model.GateCanProceed
				secs := window.SecondsRemaining(now)
				result.SecondsRemaining = &secs
				if sess.Status != model.SessionStatusInProgress {
					sess.Status = model.SessionStatusInProgress
					changed = true
				}
				if sess.LoginAt == nil {
					loginAt := now
					sess.LoginAt = &loginAt
					firstOpen = true
					changed = true
				}

			default:
				result.Gate = model.GateWindowClosed
			}

			if changed {
				if err := tx.SaveSession(ctx, sess); err != nil {
					return err
				}
			}
			result.Session = sess.Clone()
			return nil
		})
	if err != nil {
		return nil, err
	}

	if firstOpen {
		s.record(ctx, key, model.EventSessionEntered, result.ServerTime, nil)
		s.log.Info().
			Int("participant_id", key.ParticipantID).
			Str("exam_id", key.ExamID.String()).
			Msg("Participant entered exam")
	}

	return result, nil
}

// SubmitAnswer stores one answer; see SubmitAnswers.
func (s *ExamSessionService) SubmitAnswer(ctx context.Context, participantID int, examID, questionID uuid.UUID, selectedOption string) (*model.AnswerRecord, error) {
	records, err := s.SubmitAnswers(ctx, participantID, examID, []model.AnswerInput{
		{QuestionID: questionID, SelectedOption: selectedOption},
	})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// SubmitAnswers upserts a batch of answers atomically: either every answer is
// stored or none is. Records come back ordered by question ID, one per question. Correctness is computed here against the catalog key.
// Answers take a shared lock on the session, so they never interleave with a
// finalization of the same session.
func (s *ExamSessionService) SubmitAnswers(ctx context.Context, participantID int, examID uuid.UUID, inputs []model.AnswerInput) ([]model.AnswerRecord, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	normalized, err := normalizeBatch(inputs)
	if err != nil {
		return nil, err
	}

	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}

	window, err := s.catalog.GetExamWindow(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.GetQuestions(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}
	keys := make(map[uuid.UUID]string, len(questions))
	for _, q := range questions {
		keys[q.ID] = q.CorrectOption
	}

	var (
		records []model.AnswerRecord
		now     time.Time
	)
	err = s.sessions.WithLockedSession(ctx, key, repository.LockShared,
		func(ctx context.Context, sess *model.ParticipantSession, tx repository.SessionTx) error {
			now = s.clock.Now()

			switch window.Position(now) {
			case model.WindowClosed:
				return reject(ErrWindowClosed, sess, now)
			case model.WindowBefore:
				return reject(ErrExamNotStarted, sess, now)
			}

			if sess.Status != model.SessionStatusInProgress {
				return reject(ErrSessionNotInProgress, sess, now)
			}

			for _, in := range normalized {
				if _, ok := keys[in.QuestionID]; !ok {
					return reject(ErrQuestionNotInExam, sess, now)
				}
			}

			records = make([]model.AnswerRecord, 0, len(normalized))
			for _, in := range normalized {
				rec := model.AnswerRecord{
					ParticipantID:  key.ParticipantID,
					ExamID:         key.ExamID,
					QuestionID:     in.QuestionID,
					SelectedOption: in.SelectedOption,
					IsCorrect:      grading.IsCorrect(in.SelectedOption, keys[in.QuestionID]),
				}
				if err := tx.UpsertAnswer(ctx, &rec); err != nil {
					return fmt.Errorf("upsert answer: %w", err)
				}
				records = append(records, rec)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.QuestionID
	}
	s.record(ctx, key, model.EventAnswerSaved, now, map[string]any{"question_ids": ids})

	return records, nil
}

// normalizeBatch validates options, keeps the last answer per question and
// orders the batch by question ID. Concurrent batches of one participant then
// lock answer rows in the same order.
func normalizeBatch(inputs []model.AnswerInput) ([]model.AnswerInput, error) {
	latest := make(map[uuid.UUID]string, len(inputs))
	for _, in := range inputs {
		opt, ok := model.NormalizeOption(in.SelectedOption)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOption, in.SelectedOption)
		}
		latest[in.QuestionID] = opt
	}

	normalized := make([]model.AnswerInput, 0, len(latest))
	for id, opt := range latest {
		normalized = append(normalized, model.AnswerInput{QuestionID: id, SelectedOption: opt})
	}
	slices.SortFunc(normalized, func(a, b model.AnswerInput) int {
		return bytes.Compare(a.QuestionID[:], b.QuestionID[:])
	})
	return normalized, nil
}

// Finish finalizes the session exactly once. A session that is already
// submitted is not an error: the stored result is replayed with
// AlreadySubmitted set. Finishing is allowed at and after the end of the window
// so that a late submit still finalizes what was answered in time.
func (s *ExamSessionService) Finish(ctx context.Context, participantID int, examID uuid.UUID) (*model.FinishResult, error) {
	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}

	window, err := s.catalog.GetExamWindow(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.GetQuestions(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, key, window, questions, false)
}

// ExpireOverdue finalizes IN_PROGRESS sessions whose exam ended more than grace
// ago. It returns how many sessions it finalized.
func (s *ExamSessionService) ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error) {
	keys, err := s.sessions.ListOverdue(ctx, s.clock.Now().Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue sessions: %w", err)
	}

	defs := make(map[uuid.UUID]*model.ExamDefinition)
	finalized := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}

		def, ok := defs[key.ExamID]
		if !ok {
			def, err = s.catalog.GetDefinition(ctx, key.ExamID)
			if err != nil {
				s.log.Error().Err(err).Str("exam_id", key.ExamID.String()).Msg("Failed to load exam for expiry")
				continue
			}
			defs[key.ExamID] = def
		}

		res, err := s.finalize(ctx, key, def.Window(), def.Questions, true)
		if err != nil {
			s.log.Error().Err(err).
				Int("participant_id", key.ParticipantID).
				Str("exam_id", key.ExamID.String()).
				Msg("Failed to auto-finish session")
			continue
		}
		if res != nil && !res.AlreadySubmitted {
			finalized++
		}
	}

	return finalized, nil
}

// finalize is the single code path that moves a session to SUBMITTED. auto
// marks a sweep: it only touches sessions still IN_PROGRESS after the window
// closed and returns a nil result for anything else.
func (s *ExamSessionService) finalize(
	ctx context.Context,
	key model.SessionKey,
	window model.ExamWindow,
	questions []model.Question,
	auto bool,
) (*model.FinishResult, error) {
	var res *model.FinishResult

	err := s.sessions.WithLockedSession(ctx, key, repository.LockExclusive,
		func(ctx context.Context, sess *model.ParticipantSession, tx repository.SessionTx) error {
			now := s.clock.Now()

			if sess.IsSubmitted() {
				res = replayResult(sess)
				return nil
			}

			if auto {
				if sess.Status != model.SessionStatusInProgress || window.Position(now) != model.WindowClosed {
					return nil
				}
			} else if window.Position(now) == model.WindowBefore {
				return reject(ErrExamNotStarted, sess, now)
			}

			answers, err := tx.ListAnswers(ctx)
			if err != nil {
				return fmt.Errorf("list answers: %w", err)
			}
			result := grading.Grade(questions, answers)

			submittedAt := now
			sess.Status = model.SessionStatusSubmitted
			sess.SubmittedAt = &submittedAt
			sess.AutoSubmitted = auto
			sess.Score = &result

			if err := tx.SaveSession(ctx, sess); err != nil {
				return err
			}
			if err := tx.RecordParticipantScore(ctx, result.Percentage); err != nil {
				return err
			}

			res = &model.FinishResult{
				ParticipantID: key.ParticipantID,
				ExamID:        key.ExamID,
				Result:        result,
				SubmittedAt:   submittedAt,
				AutoSubmitted: auto,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	if res != nil && !res.AlreadySubmitted {
		s.afterFinalize(ctx, res)
	}
	return res, nil
}

func replayResult(sess *model.ParticipantSession) *model.FinishResult {
	res := &model.FinishResult{
		ParticipantID:    sess.ParticipantID,
		ExamID:           sess.ExamID,
		AutoSubmitted:    sess.AutoSubmitted,
		AlreadySubmitted: true,
	}
	if sess.SubmittedAt != nil {
		res.SubmittedAt = *sess.SubmittedAt
	}
	if sess.Score != nil {
		res.Result = *sess.Score
	}
	return res
}

// afterFinalize runs the post-commit side effects. They are detached from the
// caller's cancellation and their failures are only logged.
func (s *ExamSessionService) afterFinalize(ctx context.Context, res *model.FinishResult) {
	ctx = context.WithoutCancel(ctx)
	key := model.SessionKey{ParticipantID: res.ParticipantID, ExamID: res.ExamID}

	eventType := model.EventSessionFinished
	if res.AutoSubmitted {
		eventType = model.EventSessionExpired
	}
	s.record(ctx, key, eventType, res.SubmittedAt, res.Result)

	s.log.Info().
		Int("participant_id", res.ParticipantID).
		Str("exam_id", res.ExamID.String()).
		Float64("percentage", res.Result.Percentage).
		Bool("auto", res.AutoSubmitted).
		Msg("Session finalized")

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishResult(ctx, model.FinalizedResult{
		ParticipantID: res.ParticipantID,
		ExamID:        res.ExamID,
		Result:        res.Result,
		SubmittedAt:   res.SubmittedAt,
		AutoSubmitted: res.AutoSubmitted,
	}); err != nil {
		s.log.Warn().Err(err).
			Int("participant_id", res.ParticipantID).
			Str("exam_id", res.ExamID.String()).
			Msg("Failed to publish finalized result")
	}
}

// GetSessionStatus returns the session, or the default NOT_LOGGED_IN state when
// the participant has never touched the exam.
func (s *ExamSessionService) GetSessionStatus(ctx context.Context, participantID int, examID uuid.UUID) (*model.ParticipantSession, error) {
	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Get(ctx, key)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return model.NewParticipantSession(key.ParticipantID, key.ExamID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetPaper returns the questions (without keys) and saved answers for a
// participant who is IN_PROGRESS inside the window.
func (s *ExamSessionService) GetPaper(ctx context.Context, participantID int, examID uuid.UUID) (*model.ExamPaper, error) {
	sess, err := s.GetSessionStatus(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}
	key := model.SessionKey{ParticipantID: sess.ParticipantID, ExamID: sess.ExamID}

	def, err := s.catalog.GetDefinition(ctx, key.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	window := def.Window()
	switch window.Position(now) {
	case model.WindowClosed:
		return nil, reject(ErrWindowClosed, sess, now)
	case model.WindowBefore:
		return nil, reject(ErrExamNotStarted, sess, now)
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, reject(ErrSessionNotInProgress, sess, now)
	}

	answers, err := s.answers.ListBySession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	questions := make([]model.QuestionForParticipant, len(def.Questions))
	for i, q := range def.Questions {
		questions[i] = q.ForParticipant()
	}

	return &model.ExamPaper{
		ExamID:           def.Exam.ID,
		Title:            def.Exam.Title,
		EndsAt:           def.Exam.EndsAt,
		ServerTime:       now,
		SecondsRemaining: window.SecondsRemaining(now),
		Questions:        questions,
		Answers:          answers,
	}, nil
}

// ListAnswers returns the participant's saved answers for their exam.
func (s *ExamSessionService) ListAnswers(ctx context.Context, participantID int, examID uuid.UUID) ([]model.AnswerRecord, error) {
	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListBySession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// ReportCheat records a client-side violation report for the live monitor.
func (s *ExamSessionService) ReportCheat(ctx context.Context, participantID int, examID uuid.UUID, req model.CheatReportRequest) error {
	key, err := s.resolve(ctx, participantID, examID)
	if err != nil {
		return err
	}
	s.record(ctx, key, model.EventCheatReported, s.clock.Now(), map[string]any{
		"kind":   req.Kind,
		"detail": req.Detail,
	})
	return nil
}

func (s *ExamSessionService) record(ctx context.Context, key model.SessionKey, t model.SessionEventType, at time.Time, data any) {
	if s.activity == nil {
		return
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			s.log.Warn().Err(err).Str("event", string(t)).Msg("Failed to encode event data")
		} else {
			raw = b
		}
	}

	s.activity.Record(ctx, model.SessionEvent{
		ParticipantID: key.ParticipantID,
		ExamID:        key.ExamID,
		Type:          t,
		Data:          raw,
		OccurredAt:    at,
	})
}
