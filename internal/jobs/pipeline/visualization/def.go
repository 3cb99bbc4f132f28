package visualization

import (
	"time"

	"github.com/yungbote/vizflow-backend/internal/clients/renderer"
	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime/bus"
	"github.com/yungbote/vizflow-backend/internal/repos"
)

type Pipeline struct {
	log      *logger.Logger
	renderer renderer.Renderer
	visuals  repos.VisualizationRepo
	notifier bus.Notifier

	// renderTimeout must stay below the worker job timeout.
	renderTimeout time.Duration
}

func New(baseLog *logger.Logger, r renderer.Renderer, visuals repos.VisualizationRepo, notifier bus.Notifier, renderTimeout time.Duration) *Pipeline {
	if renderTimeout <= 0 {
		renderTimeout = 45 * time.Second
	}
	return &Pipeline{
		log:           baseLog.With("job", "visualization"),
		renderer:      r,
		visuals:       visuals,
		notifier:      notifier,
		renderTimeout: renderTimeout,
	}
}

func (p *Pipeline) Stage() domain.Stage { return domain.StageVisualization }
