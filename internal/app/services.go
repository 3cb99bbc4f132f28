package app

import (
	"fmt"

	"github.com/yungbote/vizflow-backend/internal/clients/renderer"
	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/jobs/coordinator"
	"github.com/yungbote/vizflow-backend/internal/jobs/pipeline/interaction_query"
	"github.com/yungbote/vizflow-backend/internal/jobs/pipeline/query_execution"
	"github.com/yungbote/vizflow-backend/internal/jobs/pipeline/visualization"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	"github.com/yungbote/vizflow-backend/internal/jobs/runtime"
	"github.com/yungbote/vizflow-backend/internal/jobs/worker"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime/bus"
	"github.com/yungbote/vizflow-backend/internal/services"
	"github.com/yungbote/vizflow-backend/internal/tools"
)

type Services struct {
	Describer services.EventDescriber
	Generator services.QueryGenerator
	Reasoner  services.FinancialReasoner
	Renderer  renderer.Renderer
	Tools     tools.Executor
}

func wireServices(cfg *config.Config, log *logger.Logger, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	if clients.FinData == nil {
		return Services{}, fmt.Errorf("findata client required")
	}
	toolset := tools.NewRegistry(clients.FinData, clients.News, log, metrics)

	var cards renderer.Renderer
	if clients.OpenAI != nil {
		cards = services.NewCardRenderer(log, clients.OpenAI)
	}
	r, err := renderer.New(cfg.Renderer, cfg.Pipeline.RenderTimeout.Duration, cards, log)
	if err != nil {
		return Services{}, fmt.Errorf("init renderer: %w", err)
	}

	return Services{
		Describer: services.NewEventDescriber(log, clients.OpenAI),
		Generator: services.NewQueryGenerator(log, clients.OpenAI, cfg.Pipeline.MaxQueries),
		Reasoner:  services.NewFinancialReasoner(log, clients.OpenAI, toolset),
		Renderer:  renderer.WithBreaker(r, "renderer", cfg.Renderer.Breaker, metrics, log),
		Tools:     toolset,
	}, nil
}

func coordinatorOptions(cfg *config.Config) coordinator.Options {
	p := cfg.Pipeline
	stage := func(s config.StageConfig) worker.WorkerOptions {
		return worker.WorkerOptions{
			Concurrency:  s.Concurrency,
			RateLimit:    s.RateLimit,
			Burst:        s.Burst,
			JobTimeout:   p.JobTimeout.Duration,
			PollInterval: p.PollInterval.Duration,
		}
	}
	return coordinator.Options{
		Queue: queue.Options{
			MaxAttempts:  p.MaxAttempts,
			Backoff:      p.Backoff.Duration,
			CompletedTTL: p.CompletedRetention.Duration,
			FailedTTL:    p.FailedRetention.Duration,
		},
		Workers: map[domain.Stage]worker.WorkerOptions{
			domain.StageInteraction:   stage(p.Interaction),
			domain.StageExecution:     stage(p.Execution),
			domain.StageVisualization: stage(p.Visualization),
		},
	}
}

// registerStages installs one handler per stage on the coordinator.
func registerStages(cfg *config.Config, log *logger.Logger, coord *coordinator.Coordinator, s Services, r Repos, notifier bus.Notifier) error {
	log.Info("Registering pipeline stages...")
	p := cfg.Pipeline
	handlers := []runtime.Handler{
		interaction_query.New(log, s.Describer, s.Generator, r.Queries, r.Results, p.AllowedEventTypes, p.RecentActions),
		query_execution.New(log, s.Reasoner, r.Results, p.PartialUpdates),
		visualization.New(log, s.Renderer, r.Visualizations, notifier, p.RenderTimeout.Duration),
	}
	for _, h := range handlers {
		if err := coord.Register(h); err != nil {
			return fmt.Errorf("register %s: %w", h.Stage(), err)
		}
	}
	return nil
}
