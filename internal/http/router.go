package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/vizflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/vizflow-backend/internal/http/middleware"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler        *httpH.HealthHandler
	PipelineHandler      *httpH.PipelineHandler
	VisualizationHandler *httpH.VisualizationHandler
	HistoryHandler       *httpH.HistoryHandler
	RealtimeHandler      *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	routes := httpMW.RouteClasses{
		Health:  []string{"/metrics", "/healthcheck"},
		Streams: []string{"/api/realtime/stream", "/api/realtime/ws"},
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, routes))
	r.Use(httpMW.Metrics(cfg.Metrics, routes))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Ingestion, cancellation, queue inspection
		if cfg.PipelineHandler != nil {
			api.POST("/pipeline/events", cfg.PipelineHandler.SubmitEvent)
			api.POST("/visualizations/cancel", cfg.PipelineHandler.Cancel)
			api.GET("/queues", cfg.PipelineHandler.Queues)
		}

		// Visualizations
		if cfg.VisualizationHandler != nil {
			api.GET("/visualizations", cfg.VisualizationHandler.List)
			api.GET("/visualizations/partial", cfg.VisualizationHandler.Partial)
		}

		// Per-user history
		if cfg.HistoryHandler != nil {
			api.GET("/queries", cfg.HistoryHandler.Queries)
			api.GET("/results", cfg.HistoryHandler.Results)
			api.GET("/events", cfg.HistoryHandler.Events)
		}

		// Realtime
		if cfg.RealtimeHandler != nil {
			api.GET("/realtime/stream", cfg.RealtimeHandler.Stream)
			api.GET("/realtime/ws", cfg.RealtimeHandler.WebSocket)
		}
	}

	return r
}
