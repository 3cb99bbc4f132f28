package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

/*
Context is the execution handle for one attempt of one job.
It carries:
  - Ctx: bounded by the job timeout and cancelled when the owner cancels
  - Job: the claimed queue entry (attempt already counted)
  - Log: scoped with stage, job id and user id

Handlers decode their input through Decode and hand follow-up work to the
Enqueuer; they never touch queue keys directly.
*/
type Context struct {
	Ctx      context.Context
	Stage    domain.Stage
	Job      *queue.Job
	Log      *logger.Logger
	Enqueuer Enqueuer
	Started  time.Time
}

func NewContext(ctx context.Context, stage domain.Stage, job *queue.Job, log *logger.Logger, enq Enqueuer) *Context {
	jc := &Context{
		Ctx:      ctx,
		Stage:    stage,
		Job:      job,
		Enqueuer: enq,
		Started:  time.Now(),
	}
	if log != nil {
		jc.Log = log.With("job_id", job.ID, "user_id", job.UserID, "attempt", job.Attempts)
	}
	return jc
}

// Decode unmarshals the job payload into v.
func (c *Context) Decode(v any) error {
	if c == nil || c.Job == nil {
		return fmt.Errorf("no job")
	}
	if err := c.Job.Decode(v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Stage, err)
	}
	return nil
}

// Attempt is 1 for the first run.
func (c *Context) Attempt() int {
	if c == nil || c.Job == nil {
		return 0
	}
	return c.Job.Attempts
}

// LastAttempt reports whether a failure now would be final.
func (c *Context) LastAttempt() bool {
	if c == nil || c.Job == nil {
		return true
	}
	return c.Job.Attempts >= c.Job.MaxAttempts
}
