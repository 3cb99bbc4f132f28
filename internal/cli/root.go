// Package cli implements pipelinectl, the operator command line for a running
// pipeline.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/db"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
)

// LedgerOpener returns the failure ledger plus a close func.
type LedgerOpener func(ctx context.Context) (repos.FailedJobRepo, func() error, error)

type Options struct {
	Server  string
	Timeout time.Duration
	JSON    bool

	OpenLedger LedgerOpener
}

func (o *Options) client() (*Client, error) {
	return NewClient(o.Server, o.Timeout)
}

// NewRootCmd builds the command tree. A nil openLedger reads the database
// settings from the service config.
func NewRootCmd(version string, openLedger LedgerOpener) *cobra.Command {
	if openLedger == nil {
		openLedger = openConfiguredLedger
	}
	opts := &Options{OpenLedger: openLedger}

	root := &cobra.Command{
		Use:           "pipelinectl",
		Short:         "Inspect and drive the visualization pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("VIZFLOW_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.Server, "server", server, "Pipeline API base URL")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Request timeout")
	root.PersistentFlags().BoolVarP(&opts.JSON, "json", "j", false, "Output as JSON")

	root.AddCommand(newQueuesCmd(opts))
	root.AddCommand(newSubmitCmd(opts))
	root.AddCommand(newCancelCmd(opts))
	root.AddCommand(newVisualizationsCmd(opts))
	root.AddCommand(newFailuresCmd(opts))
	return root
}

func openConfiguredLedger(ctx context.Context) (repos.FailedJobRepo, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.Nop()
	database, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if database == nil {
		return nil, nil, fmt.Errorf("failure ledger disabled: no database driver configured")
	}
	return repos.NewFailedJobRepo(database.DB(), log), database.Close, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
