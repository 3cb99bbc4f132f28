package interaction_query

import (
	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
	"github.com/yungbote/vizflow-backend/internal/services"
)

type Pipeline struct {
	log *logger.Logger

	describer services.EventDescriber
	generator services.QueryGenerator
	queries   repos.QueryRepo
	results   repos.ResultRepo

	allowed       map[domain.EventType]bool
	recentActions int
}

// New builds stage 1. allowed lists the event types that may produce
// queries; empty means click only.
func New(
	baseLog *logger.Logger,
	describer services.EventDescriber,
	generator services.QueryGenerator,
	queries repos.QueryRepo,
	results repos.ResultRepo,
	allowed []string,
	recentActions int,
) *Pipeline {
	set := make(map[domain.EventType]bool, len(allowed))
	for _, t := range allowed {
		set[domain.EventType(t)] = true
	}
	if len(set) == 0 {
		set[domain.EventClick] = true
	}
	if recentActions <= 0 {
		recentActions = 5
	}
	return &Pipeline{
		log:           baseLog.With("job", "interaction_query"),
		describer:     describer,
		generator:     generator,
		queries:       queries,
		results:       results,
		allowed:       set,
		recentActions: recentActions,
	}
}

func (p *Pipeline) Stage() domain.Stage { return domain.StageInteraction }
