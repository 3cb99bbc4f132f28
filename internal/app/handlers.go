package app

import (
	"github.com/yungbote/vizflow-backend/internal/config"
	apphttp "github.com/yungbote/vizflow-backend/internal/http"
	httpH "github.com/yungbote/vizflow-backend/internal/http/handlers"
	"github.com/yungbote/vizflow-backend/internal/jobs/coordinator"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type Handlers struct {
	Health        *httpH.HealthHandler
	Pipeline      *httpH.PipelineHandler
	Visualization *httpH.VisualizationHandler
	History       *httpH.HistoryHandler
	Realtime      *httpH.RealtimeHandler
}

func wireHandlers(cfg *config.Config, log *logger.Logger, st store.Store, coord *coordinator.Coordinator, r Repos, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:        httpH.NewHealthHandler(st),
		Pipeline:      httpH.NewPipelineHandler(log, coord),
		Visualization: httpH.NewVisualizationHandler(log, r.Visualizations),
		History:       httpH.NewHistoryHandler(r.Queries, r.Results, r.Events),
		Realtime:      httpH.NewRealtimeHandler(log, hub, cfg.HTTP.CORSOrigins),
	}
}

func routerConfig(cfg *config.Config, log *logger.Logger, metrics *observability.Metrics, h Handlers) apphttp.RouterConfig {
	serviceName := ""
	if cfg.Telemetry.TracingEnabled {
		serviceName = cfg.Telemetry.ServiceName
		if serviceName == "" {
			serviceName = "vizflow"
		}
	}
	return apphttp.RouterConfig{
		Log:                  log,
		Metrics:              metrics,
		ServiceName:          serviceName,
		CORSOrigins:          cfg.HTTP.CORSOrigins,
		HealthHandler:        h.Health,
		PipelineHandler:      h.Pipeline,
		VisualizationHandler: h.Visualization,
		HistoryHandler:       h.History,
		RealtimeHandler:      h.Realtime,
	}
}
