package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewPagination(t *testing.T) {
	cases := []struct {
		page, perPage, total, wantPages int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, c := range cases {
		if got := NewPagination(c.page, c.perPage, c.total).TotalPages; got != c.wantPages {
			t.Errorf("NewPagination(%d, %d, %d).TotalPages = %d, want %d", c.page, c.perPage, c.total, got, c.wantPages)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrExamNotStarted)
	})

	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"propagated", "req-123", true},
		{"generated", "", false},
		{"oversized", strings.Repeat("x", 100), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Request-ID", tc.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			id := w.Header().Get("X-Request-ID")
			if id == "" || body.Metadata.RequestID != id {
				t.Fatalf("header %q, body %q", id, body.Metadata.RequestID)
			}
			if (id == tc.incoming) != tc.keep {
				t.Fatalf("request id = %q, incoming %q", id, tc.incoming)
			}
			if body.Error == nil || body.Error.Code != ErrExamNotStarted || body.Error.Message == "" {
				t.Fatalf("error body = %+v", body.Error)
			}
		})
	}
}
