package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// memStore is an in-memory SessionStore, ResultStore and AnswerReader.
// WithLockedSession holds a single mutex for its whole duration, which is
// stricter than row locks and enough to exercise the service's invariants.
// Writes are staged and applied only when fn returns nil.
type memStore struct {
	mu          sync.Mutex
	clock       clock.Clock
	assignments map[int]uuid.UUID
	examEnds    map[uuid.UUID]time.Time
	sessions    map[model.SessionKey]*model.ParticipantSession
	answers     map[model.SessionKey]map[uuid.UUID]model.AnswerRecord
	scores      map[int]*float64
	finalizes   int
}

func newMemStore(clk clock.Clock) *memStore {
	return &memStore{
		clock:       clk,
		assignments: make(map[int]uuid.UUID),
		examEnds:    make(map[uuid.UUID]time.Time),
		sessions:    make(map[model.SessionKey]*model.ParticipantSession),
		answers:     make(map[model.SessionKey]map[uuid.UUID]model.AnswerRecord),
		scores:      make(map[int]*float64),
	}
}

func (m *memStore) assign(participantID int, def *model.ExamDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[participantID] = def.Exam.ID
	m.examEnds[def.Exam.ID] = def.Exam.EndsAt
}

func (m *memStore) AssignedExam(_ context.Context, participantID int) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.assignments[participantID]
	if !ok {
		return uuid.Nil, repository.ErrNoAssignment
	}
	return id, nil
}

func (m *memStore) Get(_ context.Context, key model.SessionKey) (*model.ParticipantSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (m *memStore) WithLockedSession(ctx context.Context, key model.SessionKey, _ repository.LockMode,
	fn func(ctx context.Context, sess *model.ParticipantSession, tx repository.SessionTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.sessions[key]
	if !exists {
		stored = model.NewParticipantSession(key.ParticipantID, key.ExamID)
	}

	tx := &memTx{
		key:     key,
		now:     m.clock.Now,
		frozen:  stored.IsSubmitted(),
		answers: make(map[uuid.UUID]model.AnswerRecord),
	}
	for qid, a := range m.answers[key] {
		tx.answers[qid] = a
	}

	if err := fn(ctx, stored.Clone(), tx); err != nil {
		return err
	}

	if tx.saved != nil {
		if tx.saved.IsSubmitted() {
			m.finalizes++
		}
		m.sessions[key] = tx.saved
	} else if !exists {
		m.sessions[key] = stored
	}
	m.answers[key] = tx.answers
	if tx.score != nil {
		m.scores[key.ParticipantID] = tx.score
	}
	return nil
}

func (m *memStore) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]model.SessionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []model.SessionKey
	for key, sess := range m.sessions {
		if sess.Status == model.SessionStatusInProgress && !m.examEnds[key.ExamID].After(cutoff) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ParticipantID < keys[j].ParticipantID })
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *memStore) ListByExam(_ context.Context, examID uuid.UUID, status *model.SessionStatus, limit, offset int) ([]model.ExamResult, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.ExamResult
	for pid, eid := range m.assignments {
		if eid != examID {
			continue
		}
		sess, ok := m.sessions[model.SessionKey{ParticipantID: pid, ExamID: examID}]
		if !ok {
			sess = model.NewParticipantSession(pid, examID)
		}
		if status != nil && sess.Status != *status {
			continue
		}
		all = append(all, model.ExamResult{ParticipantID: pid, Status: sess.Status, Score: sess.Score})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ParticipantID < all[j].ParticipantID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memStore) StatsByExam(_ context.Context, examID uuid.UUID) (*model.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.SessionStats{ByStatus: make(map[model.SessionStatus]int)}
	var sum float64
	var n int
	for pid, eid := range m.assignments {
		if eid != examID {
			continue
		}
		stats.Assigned++
		sess, ok := m.sessions[model.SessionKey{ParticipantID: pid, ExamID: examID}]
		if !ok {
			stats.ByStatus[model.SessionStatusNotLoggedIn]++
			continue
		}
		stats.ByStatus[sess.Status]++
		if sess.Score == nil {
			continue
		}
		p := sess.Score.Percentage
		if stats.HighestScore == nil || p > *stats.HighestScore {
			stats.HighestScore = &p
		}
		if stats.LowestScore == nil || p < *stats.LowestScore {
			q := p
			stats.LowestScore = &q
		}
		sum += p
		n++
	}
	if n > 0 {
		avg := sum / float64(n)
		stats.AverageScore = &avg
	}
	return stats, nil
}

func (m *memStore) Reset(_ context.Context, key model.SessionKey) (*model.ResetSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := &model.ResetSummary{ParticipantID: key.ParticipantID, ExamID: key.ExamID}
	summary.AnswersDeleted = int64(len(m.answers[key]))
	if _, ok := m.sessions[key]; ok {
		summary.SessionsDeleted = 1
	}
	delete(m.answers, key)
	delete(m.sessions, key)
	delete(m.scores, key.ParticipantID)
	return summary, nil
}

func (m *memStore) ListBySession(_ context.Context, key model.SessionKey) ([]model.AnswerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedAnswers(m.answers[key]), nil
}

func (m *memStore) session(key model.SessionKey) *model.ParticipantSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key].Clone()
}

func (m *memStore) finalizeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizes
}

type memTx struct {
	key     model.SessionKey
	now     func() time.Time
	frozen  bool
	saved   *model.ParticipantSession
	answers map[uuid.UUID]model.AnswerRecord
	score   *float64
}

func (t *memTx) SaveSession(_ context.Context, s *model.ParticipantSession) error {
	if t.frozen {
		return repository.ErrSessionFinalized
	}
	t.saved = s.Clone()
	return nil
}

func (t *memTx) UpsertAnswer(_ context.Context, a *model.AnswerRecord) error {
	if t.frozen {
		return errors.New("answer write on a submitted session")
	}
	a.UpdatedAt = t.now()
	t.answers[a.QuestionID] = *a
	return nil
}

func (t *memTx) ListAnswers(context.Context) ([]model.AnswerRecord, error) {
	return sortedAnswers(t.answers), nil
}

func (t *memTx) RecordParticipantScore(_ context.Context, percentage float64) error {
	t.score = &percentage
	return nil
}

func sortedAnswers(m map[uuid.UUID]model.AnswerRecord) []model.AnswerRecord {
	out := make([]model.AnswerRecord, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID.String() < out[j].QuestionID.String() })
	return out
}

// memCatalog serves fixed exam definitions.
type memCatalog struct {
	defs map[uuid.UUID]*model.ExamDefinition
}

func (c *memCatalog) GetDefinition(_ context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def, ok := c.defs[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	return def, nil
}

func (c *memCatalog) GetExamWindow(ctx context.Context, examID uuid.UUID) (model.ExamWindow, error) {
	def, err := c.GetDefinition(ctx, examID)
	if err != nil {
		return model.ExamWindow{}, err
	}
	return def.Window(), nil
}

func (c *memCatalog) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	def, err := c.GetDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	return def.Questions, nil
}

// memActivity collects recorded events.
type memActivity struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (a *memActivity) Record(_ context.Context, e model.SessionEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func (a *memActivity) count(t model.SessionEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// memPublisher collects published results and can be told to fail.
type memPublisher struct {
	mu      sync.Mutex
	results []model.FinalizedResult
	err     error
}

func (p *memPublisher) PublishResult(_ context.Context, r model.FinalizedResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.results = append(p.results, r)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}
