package app

import (
	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/db"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type Repos struct {
	Queries        repos.QueryRepo
	Results        repos.ResultRepo
	Visualizations repos.VisualizationRepo
	Events         repos.UserEventRepo
	// FailedJobs is nil without a database.
	FailedJobs repos.FailedJobRepo
}

func wireRepos(cfg *config.Config, st store.Store, database *db.Service, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	lists := repos.ListOptions{Cap: cfg.Storage.ListCap, TTL: cfg.Storage.ListTTL.Duration}
	out := Repos{
		Queries:        repos.NewQueryRepo(st, log, lists),
		Results:        repos.NewResultRepo(st, log, lists),
		Visualizations: repos.NewVisualizationRepo(st, log, lists, cfg.Storage.PartialTTL.Duration),
		Events:         repos.NewUserEventRepo(st, log, repos.ListOptions{Cap: cfg.Storage.EventLogCap, TTL: cfg.Storage.ListTTL.Duration}),
	}
	if database != nil {
		out.FailedJobs = repos.NewFailedJobRepo(database.DB(), log)
	}
	return out
}
