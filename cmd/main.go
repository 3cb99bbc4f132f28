package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/vizflow-backend/internal/app"
	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, cfg.Env, cfg.Telemetry)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn("OTel shutdown failed", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("App init failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("App stopped with error", "error", err)
		return
	}
	log.Info("Shutdown complete")
}
