package query_execution

import (
	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
	"github.com/yungbote/vizflow-backend/internal/services"
)

type Pipeline struct {
	log      *logger.Logger
	reasoner services.FinancialReasoner
	results  repos.ResultRepo

	// partialUpdates enqueues a partial visualization per tool step.
	partialUpdates bool
}

func New(baseLog *logger.Logger, reasoner services.FinancialReasoner, results repos.ResultRepo, partialUpdates bool) *Pipeline {
	return &Pipeline{
		log:            baseLog.With("job", "query_execution"),
		reasoner:       reasoner,
		results:        results,
		partialUpdates: partialUpdates,
	}
}

func (p *Pipeline) Stage() domain.Stage { return domain.StageExecution }
