package app

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// supervisorTree has one child supervisor per layer; each layer backs off
// and restarts on its own.
type supervisorTree struct {
	root     *suture.Supervisor
	pipeline *suture.Supervisor
	realtime *suture.Supervisor
	api      *suture.Supervisor
}

func newSupervisorTree(log *logger.Logger, shutdownTimeout time.Duration) *supervisorTree {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	child := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	}
	root := child
	root.EventHook = eventHook(log.With("component", "Supervisor"))

	t := &supervisorTree{
		root:     suture.New("vizflow", root),
		pipeline: suture.New("pipeline", child),
		realtime: suture.New("realtime", child),
		api:      suture.New("api", child),
	}
	t.root.Add(t.pipeline)
	t.root.Add(t.realtime)
	t.root.Add(t.api)
	return t
}

func (t *supervisorTree) AddPipelineService(svc suture.Service) suture.ServiceToken {
	return t.pipeline.Add(svc)
}

func (t *supervisorTree) AddRealtimeService(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(svc)
}

func (t *supervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

func (t *supervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func eventHook(log *logger.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := make([]interface{}, 0, 8)
		for k, v := range e.Map() {
			fields = append(fields, k, v)
		}
		switch e.Type() {
		case suture.EventTypeServicePanic:
			log.Error("Supervised service panicked", fields...)
		case suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout:
			log.Warn(e.String(), fields...)
		default:
			log.Info(e.String(), fields...)
		}
	}
}
