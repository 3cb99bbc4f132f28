package app

import (
	"fmt"

	"github.com/yungbote/vizflow-backend/internal/clients/findata"
	"github.com/yungbote/vizflow-backend/internal/clients/news"
	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
)

// Clients are the outbound vendors. News is optional.
type Clients struct {
	OpenAI  openai.Client
	FinData findata.Client
	News    news.Searcher
}

func wireClients(cfg *config.Config, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	// Openai
	ai, err := openai.NewClient(cfg.OpenAI, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Financial data
	fin, err := findata.New(cfg.FinData, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init findata client: %w", err)
	}

	// News
	searcher, err := news.NewFirecrawl(cfg.News, log)
	if err != nil {
		log.Warn("News search disabled", "error", err)
		searcher = nil
	}

	return Clients{OpenAI: ai, FinData: fin, News: searcher}, nil
}
