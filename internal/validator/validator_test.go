package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-cbt/internal/model"
)

func bindBody(t *testing.T, body string, dst interface{}) map[string]string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Setup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindExamOption(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"lowercase", `{"question_id":"7d0c3f2e-0a4b-4c1e-9d55-0b7a3c9e2f10","selected_option":"c"}`, false},
		{"uppercase", `{"question_id":"7d0c3f2e-0a4b-4c1e-9d55-0b7a3c9e2f10","selected_option":"E"}`, false},
		{"outside alphabet", `{"question_id":"7d0c3f2e-0a4b-4c1e-9d55-0b7a3c9e2f10","selected_option":"f"}`, true},
		{"two letters", `{"question_id":"7d0c3f2e-0a4b-4c1e-9d55-0b7a3c9e2f10","selected_option":"ab"}`, true},
		{"missing option", `{"question_id":"7d0c3f2e-0a4b-4c1e-9d55-0b7a3c9e2f10"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req model.SubmitAnswerRequest
			fields := bindBody(t, tt.body, &req)
			if (fields != nil) != tt.wantErr {
				t.Fatalf("Bind() fields = %v, wantErr %v", fields, tt.wantErr)
			}
			if tt.wantErr && tt.name == "outside alphabet" {
				if msg := fields["selected_option"]; !strings.Contains(msg, "a, b, c, d or e") {
					t.Errorf("message = %q, want translated exam_option message", msg)
				}
			}
		})
	}
}

func TestBindMalformedJSON(t *testing.T) {
	var req model.SubmitAnswerRequest
	fields := bindBody(t, `{"question_id":`, &req)
	if _, ok := fields["detail"]; !ok {
		t.Fatalf("fields = %v, want detail entry", fields)
	}
}
