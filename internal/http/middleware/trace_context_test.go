package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x?userId=u9", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderTraceID, "trace-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID != "trace-1" || seen.UserID != "u9" {
		t.Fatalf("trace data: %+v", seen)
	}
	if got := rec.Header().Get(HeaderRequestID); got != "req-1" {
		t.Fatalf("request id header: got=%q want=req-1", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get(HeaderTraceID) == "" || rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("ids should be generated: %v", rec.Header())
	}
}
