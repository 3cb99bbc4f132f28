package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/vizflow-backend/internal/http/handlers"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := NewRouter(RouterConfig{
		Log:           logger.Nop(),
		Metrics:       m,
		HealthHandler: httpH.NewHealthHandler(store.NewMemory()),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: code=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/visualizations", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unwired handler should 404: got=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `route="unmatched"`) {
		t.Fatalf("metrics: code=%d body=%s", rec.Code, body)
	}
	if strings.Contains(body, `route="/healthcheck"`) {
		t.Fatalf("health routes should not be recorded")
	}
}
