package coordinator

import (
	"context"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type SweepOptions struct {
	Interval           time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
	// StallAfter must exceed the job timeout; active jobs older than this
	// are assumed orphaned by a dead worker.
	StallAfter time.Duration
}

// Sweeper purges finished jobs past retention and recovers stalled ones. It
// implements suture.Service.
type Sweeper struct {
	c    *Coordinator
	log  *logger.Logger
	opts SweepOptions
}

func NewSweeper(c *Coordinator, baseLog *logger.Logger, opts SweepOptions) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.CompletedRetention <= 0 {
		opts.CompletedRetention = time.Hour
	}
	if opts.FailedRetention <= 0 {
		opts.FailedRetention = 2 * time.Hour
	}
	if opts.StallAfter <= 0 {
		opts.StallAfter = 2 * time.Minute
	}
	return &Sweeper{c: c, log: baseLog.With("component", "RetentionSweeper"), opts: opts}
}

func (s *Sweeper) String() string { return "retention-sweeper" }

func (s *Sweeper) Serve(ctx context.Context) error {
	s.SweepOnce(ctx)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass over every stage and returns the totals.
func (s *Sweeper) SweepOnce(ctx context.Context) (purged, recovered int) {
	for _, stage := range domain.Stages {
		q := s.c.Queue(stage)
		n, err := q.Cleanup(ctx, s.opts.CompletedRetention, s.opts.FailedRetention)
		if err != nil {
			s.log.Warn("Retention cleanup failed", "stage", stage.String(), "error", err)
		}
		purged += n

		r, err := q.RecoverStalled(ctx, s.opts.StallAfter)
		if err != nil {
			s.log.Warn("Stalled job recovery failed", "stage", stage.String(), "error", err)
		}
		recovered += r
	}
	if purged > 0 || recovered > 0 {
		s.log.Info("Sweep finished", "purged", purged, "recovered", recovered)
	}
	return purged, recovered
}
