package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/yungbote/vizflow-backend/internal/cli"
)

// Set via ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd(version, nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
