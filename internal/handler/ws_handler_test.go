package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

func dialExamStream(t *testing.T, f *fakeSessions) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewWSHandler(f, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/ws/exams/:exam_id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeParticipant, UserID: 42})
		c.Next()
	}, h.ExamStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/exams/" + testExamID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req ws.RequestPayload) (ws.ResponsePayload, json.RawMessage) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp ws.ResponsePayload
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(raw, &envelope)
	return resp, envelope.Data
}

func TestExamStreamAutosave(t *testing.T) {
	f := &fakeSessions{}
	conn := dialExamStream(t, f)

	resp, data := roundTrip(t, conn, ws.RequestPayload{
		Action:         ws.ActionAutosave,
		RequestID:      "r1",
		QuestionID:     testQuestionID,
		SelectedOption: "C",
	})
	if resp.Event != ws.EventSaved || resp.RequestID != "r1" {
		t.Fatalf("reply = %+v", resp)
	}
	var rec model.AnswerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.QuestionID != testQuestionID || rec.SelectedOption != "c" {
		t.Fatalf("record = %+v", rec)
	}
	if f.gotExamID != testExamID || f.gotOption != "C" {
		t.Fatalf("service got exam %s option %q", f.gotExamID, f.gotOption)
	}

	pong, _ := roundTrip(t, conn, ws.RequestPayload{Action: ws.ActionPing, RequestID: "r2"})
	if pong.Event != ws.EventPong || pong.RequestID != "r2" {
		t.Fatalf("ping reply = %+v", pong)
	}
}

func TestExamStreamRejections(t *testing.T) {
	sess := model.NewParticipantSession(42, testExamID)
	f := &fakeSessions{err: &service.RejectionError{Reason: service.ErrWindowClosed, Session: sess, ServerTime: testNow}}
	conn := dialExamStream(t, f)

	resp, _ := roundTrip(t, conn, ws.RequestPayload{Action: ws.ActionSubmit, RequestID: "s1"})
	if resp.Event != ws.EventError || resp.Error == nil || resp.Error.Code != "WINDOW_CLOSED" {
		t.Fatalf("reply = %+v", resp)
	}
	if resp.Error.Details == nil {
		t.Fatal("rejection must carry the session details")
	}

	resp, _ = roundTrip(t, conn, ws.RequestPayload{Action: "dance", RequestID: "s2"})
	if resp.Event != ws.EventError || resp.Error == nil || resp.Error.Code != "INVALID_PAYLOAD" {
		t.Fatalf("unknown action reply = %+v", resp)
	}

	resp, _ = roundTrip(t, conn, ws.RequestPayload{Action: ws.ActionAutosave, RequestID: "s3"})
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("empty autosave reply = %+v", resp)
	}
}
