package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

type countingLoader struct {
	mu    sync.Mutex
	defs  map[uuid.UUID]*model.ExamDefinition
	loads atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) GetDefinition(_ context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	l.loads.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	def, ok := l.defs[examID]
	if !ok {
		return nil, repository.ErrExamNotFound
	}
	cp := *def
	return &cp, nil
}

func (l *countingLoader) ListNotEnded(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []uuid.UUID
	for id, def := range l.defs {
		if def.Exam.EndsAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (l *countingLoader) setTitle(examID uuid.UUID, title string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defs[examID].Exam.Title = title
}

func newCatalogFixture(t *testing.T, exams ...*model.ExamDefinition) (*CatalogService, *countingLoader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	loader := &countingLoader{defs: make(map[uuid.UUID]*model.ExamDefinition)}
	for _, def := range exams {
		loader.defs[def.Exam.ID] = def
	}
	svc := NewCatalogService(loader, rdb, time.Hour, clock.NewManual(examStart.Add(-time.Hour)), zerolog.Nop())
	return svc, loader, mr
}

func sampleDefinition(title string, ends time.Time) *model.ExamDefinition {
	id := uuid.New()
	return &model.ExamDefinition{
		Exam: model.Exam{ID: id, Title: title, StartsAt: examStart, EndsAt: ends},
		Questions: []model.Question{
			{ID: uuid.New(), ExamID: id, Ordinal: 1, QuestionText: "2+2", Options: []byte(`{"a":"3","b":"4"}`), CorrectOption: "b"},
		},
	}
}

func TestCatalogCachesDefinition(t *testing.T) {
	def := sampleDefinition("Fisika", examEnd)
	svc, loader, mr := newCatalogFixture(t, def)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.GetDefinition(ctx, def.Exam.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Exam.Title != "Fisika" || len(got.Questions) != 1 || got.Questions[0].CorrectOption != "b" {
			t.Fatalf("definition = %+v", got)
		}
	}

	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
	if !mr.Exists(config.CacheKey.ExamDefinitionKey(def.Exam.ID.String())) {
		t.Fatal("definition not cached")
	}

	window, err := svc.GetExamWindow(ctx, def.Exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !window.StartsAt.Equal(examStart) || !window.EndsAt.Equal(examEnd) {
		t.Fatalf("window = %+v", window)
	}
}

func TestCatalogCollapsesConcurrentMisses(t *testing.T) {
	def := sampleDefinition("Kimia", examEnd)
	svc, loader, _ := newCatalogFixture(t, def)
	loader.gate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GetDefinition(context.Background(), def.Exam.ID); err != nil {
				errs <- err
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(loader.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
}

func TestCatalogSurvivesRedisOutage(t *testing.T) {
	def := sampleDefinition("Biologi", examEnd)
	svc, loader, mr := newCatalogFixture(t, def)
	mr.Close()

	for i := 0; i < 2; i++ {
		got, err := svc.GetDefinition(context.Background(), def.Exam.ID)
		if err != nil {
			t.Fatalf("GetDefinition with Redis down: %v", err)
		}
		if got.Exam.ID != def.Exam.ID {
			t.Fatalf("exam = %s", got.Exam.ID)
		}
	}
	if n := loader.loads.Load(); n != 2 {
		t.Fatalf("loads = %d, want a database read per call", n)
	}
}

func TestCatalogUnknownExam(t *testing.T) {
	svc, _, _ := newCatalogFixture(t)

	if _, err := svc.GetDefinition(context.Background(), uuid.New()); !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}

func TestCatalogRefresh(t *testing.T) {
	def := sampleDefinition("Sejarah", examEnd)
	svc, loader, _ := newCatalogFixture(t, def)
	ctx := context.Background()

	if _, err := svc.GetDefinition(ctx, def.Exam.ID); err != nil {
		t.Fatal(err)
	}
	loader.setTitle(def.Exam.ID, "Sejarah Indonesia")

	if got, _ := svc.GetDefinition(ctx, def.Exam.ID); got.Exam.Title != "Sejarah" {
		t.Fatalf("title = %q, want the cached copy", got.Exam.Title)
	}

	refreshed, err := svc.Refresh(ctx, def.Exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.Exam.Title != "Sejarah Indonesia" {
		t.Fatalf("refreshed title = %q", refreshed.Exam.Title)
	}
	if got, _ := svc.GetDefinition(ctx, def.Exam.ID); got.Exam.Title != "Sejarah Indonesia" {
		t.Fatalf("title after refresh = %q", got.Exam.Title)
	}
}

func TestCatalogPrewarm(t *testing.T) {
	live := sampleDefinition("Ekonomi", examEnd)
	ended := sampleDefinition("Geografi", examStart.Add(-2*time.Hour))
	svc, _, mr := newCatalogFixture(t, live, ended)

	n, err := svc.PrewarmAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("warmed = %d, want 1", n)
	}
	if !mr.Exists(config.CacheKey.ExamDefinitionKey(live.Exam.ID.String())) {
		t.Fatal("live exam not cached")
	}
	if mr.Exists(config.CacheKey.ExamDefinitionKey(ended.Exam.ID.String())) {
		t.Fatal("ended exam must not be cached")
	}
}
