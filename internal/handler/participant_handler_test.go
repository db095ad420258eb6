package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

var (
	testExamID     = uuid.MustParse("2f1b7c54-9a0e-4d3b-8f61-3c2d9e4a5b70")
	testQuestionID = uuid.MustParse("8a6e2d13-4b5f-4c7a-9e08-1d2c3b4a5f60")
	testNow        = time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
)

// fakeSessions records the arguments it was called with.
type fakeSessions struct {
	gotExamID uuid.UUID
	gotQID    uuid.UUID
	gotOption string
	gotBatch  []model.AnswerInput
	err       error
	finish    *model.FinishResult
}

func (f *fakeSessions) Enter(_ context.Context, pid int, examID uuid.UUID) (*model.EnterResult, error) {
	f.gotExamID = examID
	if f.err != nil {
		return nil, f.err
	}
	sess := model.NewParticipantSession(pid, testExamID)
	sess.Status = model.SessionStatusInProgress
	return &model.EnterResult{Gate: model.GateCanProceed, Session: sess, ServerTime: testNow}, nil
}

func (f *fakeSessions) SubmitAnswer(_ context.Context, pid int, examID, qid uuid.UUID, opt string) (*model.AnswerRecord, error) {
	f.gotExamID, f.gotQID, f.gotOption = examID, qid, opt
	if f.err != nil {
		return nil, f.err
	}
	return &model.AnswerRecord{
		ParticipantID:  pid,
		ExamID:         testExamID,
		QuestionID:     qid,
		SelectedOption: strings.ToLower(opt),
		IsCorrect:      false,
		UpdatedAt:      testNow,
	}, nil
}

func (f *fakeSessions) SubmitAnswers(_ context.Context, pid int, examID uuid.UUID, inputs []model.AnswerInput) ([]model.AnswerRecord, error) {
	f.gotExamID, f.gotBatch = examID, inputs
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.AnswerRecord, len(inputs))
	for i, in := range inputs {
		out[i] = model.AnswerRecord{ParticipantID: pid, ExamID: testExamID, QuestionID: in.QuestionID, SelectedOption: in.SelectedOption}
	}
	return out, nil
}

func (f *fakeSessions) Finish(_ context.Context, _ int, examID uuid.UUID) (*model.FinishResult, error) {
	f.gotExamID = examID
	return f.finish, f.err
}

func (f *fakeSessions) GetSessionStatus(_ context.Context, pid int, examID uuid.UUID) (*model.ParticipantSession, error) {
	f.gotExamID = examID
	return model.NewParticipantSession(pid, testExamID), f.err
}

func (f *fakeSessions) GetPaper(_ context.Context, _ int, examID uuid.UUID) (*model.ExamPaper, error) {
	f.gotExamID = examID
	return nil, f.err
}

func (f *fakeSessions) ListAnswers(_ context.Context, _ int, examID uuid.UUID) ([]model.AnswerRecord, error) {
	f.gotExamID = examID
	return nil, f.err
}

func (f *fakeSessions) ReportCheat(_ context.Context, _ int, examID uuid.UUID, _ model.CheatReportRequest) error {
	f.gotExamID = examID
	return f.err
}

func newParticipantRouter(f *fakeSessions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator.Setup()

	h := NewParticipantHandler(f)
	r := gin.New()
	g := r.Group("/exams/:exam_id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeParticipant, UserID: 42})
		c.Next()
	})
	g.GET("/status", h.GetStatus)
	g.POST("/enter", h.Enter)
	g.PUT("/answers", h.SubmitAnswer)
	g.PUT("/answers/batch", h.SubmitAnswers)
	g.GET("/answers", h.ListAnswers)
	g.POST("/finish", h.Finish)
	return r
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Fields  json.RawMessage `json:"fields"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func TestSubmitAnswerIgnoresClientCorrectness(t *testing.T) {
	f := &fakeSessions{}
	r := newParticipantRouter(f)

	body := `{"question_id":"` + testQuestionID.String() + `","selected_option":"B","is_correct":true}`
	code, env := do(t, r, http.MethodPut, "/exams/"+testExamID.String()+"/answers", body)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error %+v)", code, env.Error)
	}

	if f.gotQID != testQuestionID || f.gotOption != "B" || f.gotExamID != testExamID {
		t.Fatalf("service got (%s, %s, %q)", f.gotExamID, f.gotQID, f.gotOption)
	}

	var data struct {
		Answer model.AnswerRecord `json:"answer"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Answer.IsCorrect {
		t.Error("is_correct must come from the server, not the request")
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	f := &fakeSessions{}
	r := newParticipantRouter(f)

	body := `{"question_id":"` + testQuestionID.String() + `","selected_option":"z"}`
	code, env := do(t, r, http.MethodPut, "/exams/"+testExamID.String()+"/answers", body)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("got %d %+v, want 400 VALIDATION_ERROR", code, env.Error)
	}
	if f.gotQID != uuid.Nil {
		t.Error("service must not be called for an invalid option")
	}
}

func TestRejectionCarriesSession(t *testing.T) {
	submittedAt := testNow.Add(-time.Minute)
	sess := model.NewParticipantSession(42, testExamID)
	sess.Status = model.SessionStatusSubmitted
	sess.SubmittedAt = &submittedAt
	sess.Score = &model.ScoreResult{TotalQuestions: 5, Answered: 3, Correct: 2, Wrong: 1, Unanswered: 2, Percentage: 40}

	f := &fakeSessions{err: &service.RejectionError{Reason: service.ErrAlreadySubmitted, Session: sess, ServerTime: testNow}}
	r := newParticipantRouter(f)

	code, env := do(t, r, http.MethodPost, "/exams/"+testExamID.String()+"/enter", "")
	if code != http.StatusConflict || env.Error == nil || env.Error.Code != "ALREADY_SUBMITTED" {
		t.Fatalf("got %d %+v, want 409 ALREADY_SUBMITTED", code, env.Error)
	}

	var d rejectionDetails
	if err := json.Unmarshal(env.Error.Details, &d); err != nil {
		t.Fatal(err)
	}
	if d.Session == nil || d.Session.Score == nil || d.Session.Score.Percentage != 40 {
		t.Fatalf("details = %+v, want the recorded score", d)
	}
}

func TestFinishReplayIsSuccess(t *testing.T) {
	f := &fakeSessions{finish: &model.FinishResult{
		ParticipantID:    42,
		ExamID:           testExamID,
		Result:           model.ScoreResult{TotalQuestions: 5, Answered: 3, Correct: 2, Wrong: 1, Unanswered: 2, Percentage: 40},
		SubmittedAt:      testNow,
		AlreadySubmitted: true,
	}}
	r := newParticipantRouter(f)

	code, env := do(t, r, http.MethodPost, "/exams/"+testExamID.String()+"/finish", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var res model.FinishResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.AlreadySubmitted || res.Result.Percentage != 40 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExamParam(t *testing.T) {
	f := &fakeSessions{}
	r := newParticipantRouter(f)

	if code, _ := do(t, r, http.MethodGet, "/exams/not-a-uuid/status", ""); code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", code)
	}

	f.gotExamID = testExamID
	if code, _ := do(t, r, http.MethodGet, "/exams/current/status", ""); code != http.StatusOK {
		t.Fatalf("current status = %d, want 200", code)
	}
	if f.gotExamID != uuid.Nil {
		t.Fatalf("current should resolve to the assigned exam, got %s", f.gotExamID)
	}
}

func TestSubmitAnswersBatch(t *testing.T) {
	f := &fakeSessions{}
	r := newParticipantRouter(f)

	body := `{"answers":[{"question_id":"` + testQuestionID.String() + `","selected_option":"a"},` +
		`{"question_id":"` + testExamID.String() + `","selected_option":"d"}]}`
	code, _ := do(t, r, http.MethodPut, "/exams/"+testExamID.String()+"/answers/batch", body)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if len(f.gotBatch) != 2 || f.gotBatch[1].SelectedOption != "d" {
		t.Fatalf("batch = %+v", f.gotBatch)
	}

	code, env := do(t, r, http.MethodPut, "/exams/"+testExamID.String()+"/answers/batch", `{"answers":[]}`)
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("empty batch got %d %+v", code, env.Error)
	}
}

func TestListAnswersEmptyIsArray(t *testing.T) {
	r := newParticipantRouter(&fakeSessions{})

	code, env := do(t, r, http.MethodGet, "/exams/"+testExamID.String()+"/answers", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !strings.Contains(string(env.Data), `"answers":[]`) {
		t.Fatalf("data = %s, want empty array", env.Data)
	}
}
