// Package coordinator owns the three stage queues. It is the only way work
// enters the pipeline and the only way a user's work is cancelled.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	"github.com/yungbote/vizflow-backend/internal/jobs/runtime"
	"github.com/yungbote/vizflow-backend/internal/jobs/worker"
	"github.com/yungbote/vizflow-backend/internal/observability"
	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime/bus"
	"github.com/yungbote/vizflow-backend/internal/repos"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type Options struct {
	Queue queue.Options
	// Workers holds per-stage pool settings; missing stages use defaults.
	Workers map[domain.Stage]worker.WorkerOptions
}

type Coordinator struct {
	baseLog  *logger.Logger
	log      *logger.Logger
	metrics  *observability.Metrics
	notifier bus.Notifier
	events   repos.UserEventRepo
	ledger   repos.FailedJobRepo
	opts     Options

	queues   map[domain.Stage]*queue.Queue
	registry *runtime.Registry

	mu      sync.Mutex
	workers map[domain.Stage]*worker.Worker
}

// New builds one queue per stage on st. events and ledger may be nil.
func New(
	st store.Store,
	notifier bus.Notifier,
	events repos.UserEventRepo,
	ledger repos.FailedJobRepo,
	baseLog *logger.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Coordinator {
	c := &Coordinator{
		baseLog:  baseLog,
		log:      baseLog.With("component", "PipelineCoordinator"),
		metrics:  metrics,
		notifier: notifier,
		events:   events,
		ledger:   ledger,
		opts:     opts,
		queues:   make(map[domain.Stage]*queue.Queue, len(domain.Stages)),
		registry: runtime.NewRegistry(),
		workers:  make(map[domain.Stage]*worker.Worker, len(domain.Stages)),
	}
	for _, s := range domain.Stages {
		c.queues[s] = queue.New(s.String(), st, baseLog, opts.Queue)
	}
	return c
}

func (c *Coordinator) Queue(stage domain.Stage) *queue.Queue { return c.queues[stage] }

// Enqueue implements runtime.Enqueuer. It never waits for the job to run.
func (c *Coordinator) Enqueue(ctx context.Context, stage domain.Stage, userID string, payload any) (string, error) {
	q, ok := c.queues[stage]
	if !ok {
		return "", pkgerrors.Invalidf("unknown stage %q", stage)
	}
	if err := domain.CheckUserID(userID); err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}
	job, err := q.Enqueue(ctx, userID, payload)
	if err != nil {
		return "", pkgerrors.Unavailable("enqueue "+stage.String(), err)
	}
	c.metrics.IncEnqueued(stage.String())
	c.log.Debug("Job enqueued", "stage", stage.String(), "job_id", job.ID, "user_id", userID)
	return job.ID, nil
}

// EnqueueKeyed implements runtime.KeyedEnqueuer. The job id is derived from
// stage and key, so repeating a call while the job is stored is a no-op.
func (c *Coordinator) EnqueueKeyed(ctx context.Context, stage domain.Stage, userID, key string, payload any) (string, error) {
	q, ok := c.queues[stage]
	if !ok {
		return "", pkgerrors.Invalidf("unknown stage %q", stage)
	}
	if err := domain.CheckUserID(userID); err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(stage.String()+"/"+key)).String()
	job, created, err := q.EnqueueOnce(ctx, id, userID, payload)
	if err != nil {
		return "", pkgerrors.Unavailable("enqueue "+stage.String(), err)
	}
	if created {
		c.metrics.IncEnqueued(stage.String())
		c.log.Debug("Job enqueued", "stage", stage.String(), "job_id", job.ID, "user_id", userID, "key", key)
	} else {
		c.log.Info("Keyed job already queued", "stage", stage.String(), "job_id", job.ID, "key", key)
	}
	return job.ID, nil
}

func (c *Coordinator) EnqueueInteraction(ctx context.Context, ev domain.UserEvent) (string, error) {
	return c.Enqueue(ctx, domain.StageInteraction, ev.UserID, ev)
}

func (c *Coordinator) EnqueueExecution(ctx context.Context, q domain.GeneratedQuery) (string, error) {
	return c.Enqueue(ctx, domain.StageExecution, q.UserID, q)
}

func (c *Coordinator) EnqueueVisualization(ctx context.Context, v domain.VisualizationJob) (string, error) {
	return c.Enqueue(ctx, domain.StageVisualization, v.Result.UserID, v)
}

// SubmitEvent validates an ingested interaction, logs it and hands it to
// stage 1. Invalid input is rejected before anything is written.
func (c *Coordinator) SubmitEvent(ctx context.Context, userID string, eventType domain.EventType, eventData json.RawMessage) (string, error) {
	ev := domain.UserEvent{
		UserID:    strings.TrimSpace(userID),
		EventType: eventType,
		EventData: eventData,
		Timestamp: domain.NowMillis(),
	}
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}
	if c.events != nil {
		if err := c.events.Append(ctx, ev); err != nil {
			c.log.Warn("Event log append failed", "user_id", ev.UserID, "error", err)
		}
	}
	return c.EnqueueInteraction(ctx, ev)
}

// Cancel removes every waiting, delayed and active job of userID from all
// stages, aborts matching runs in this process and publishes one
// cancellation notice. It is best effort: store errors are logged and the
// count covers what was actually removed.
func (c *Coordinator) Cancel(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if err := domain.CheckUserID(userID); err != nil {
		return 0, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}

	type sweep struct {
		removed []string
		active  []string
	}
	results := make([]sweep, len(domain.Stages))
	var g errgroup.Group
	for i, s := range domain.Stages {
		i, s := i, s
		g.Go(func() error {
			removed, active, err := c.queues[s].RemoveByUser(ctx, userID)
			results[i] = sweep{removed: removed, active: active}
			if err != nil {
				c.log.Warn("Cancel sweep incomplete", "stage", s.String(), "user_id", userID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for i, s := range domain.Stages {
		r := results[i]
		total += len(r.removed)
		c.metrics.AddCanceled(s.String(), len(r.removed))
		if w := c.worker(s); w != nil {
			for _, id := range r.active {
				if w.Abort(id) {
					c.log.Info("Aborted running job", "stage", s.String(), "job_id", id, "user_id", userID)
				}
			}
		}
	}

	if c.notifier != nil {
		notice := domain.CancellationNotice{UserID: userID, CancelCount: total, Timestamp: domain.NowMillis()}
		if err := c.notifier.PublishCancellation(ctx, notice); err != nil {
			c.log.Warn("Cancellation notice not published", "user_id", userID, "error", err)
		}
	}
	c.log.Info("Cancelled user jobs", "user_id", userID, "cancel_count", total)
	return total, nil
}

// Counts reports queue sizes for every stage.
func (c *Coordinator) Counts(ctx context.Context) (map[domain.Stage]queue.Counts, error) {
	out := make(map[domain.Stage]queue.Counts, len(domain.Stages))
	for _, s := range domain.Stages {
		counts, err := c.queues[s].Counts(ctx)
		if err != nil {
			return nil, pkgerrors.Unavailable("counts "+s.String(), err)
		}
		out[s] = counts
	}
	return out, nil
}

// DepthSnapshot implements observability.QueueCounter.
func (c *Coordinator) DepthSnapshot(ctx context.Context) (map[string]map[string]int64, error) {
	counts, err := c.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64, len(counts))
	for s, n := range counts {
		out[s.String()] = map[string]int64{
			string(queue.StateWaiting):   n.Waiting,
			string(queue.StateActive):    n.Active,
			string(queue.StateDelayed):   n.Delayed,
			string(queue.StateCompleted): n.Completed,
			string(queue.StateFailed):    n.Failed,
		}
	}
	return out, nil
}

// RecordFailure implements worker.FailureLedger. Without a database it only
// logs.
func (c *Coordinator) RecordFailure(ctx context.Context, stage domain.Stage, job *queue.Job, cause error) error {
	if job == nil {
		return nil
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if c.ledger == nil {
		c.log.Warn("Job exhausted its attempts", "stage", stage.String(), "job_id", job.ID, "user_id", job.UserID, "error", msg)
		return nil
	}
	return c.ledger.Record(ctx, nil, &domain.FailedJob{
		JobID:    job.ID,
		Stage:    stage.String(),
		UserID:   job.UserID,
		Attempts: job.Attempts,
		Error:    msg,
		Payload:  datatypes.JSON(job.Payload),
		FailedAt: time.Now().UTC(),
	})
}

// Register installs the handler for its stage and builds the stage worker,
// which resolves the handler through the registry for every job.
func (c *Coordinator) Register(h runtime.Handler) error {
	if err := c.registry.Register(h); err != nil {
		return err
	}
	stage := h.Stage()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.workers[stage]; !ok {
		c.workers[stage] = worker.NewWorker(stage, c.queues[stage], c.registry, c, c.baseLog, c.opts.Workers[stage], c.metrics, c)
	}
	return nil
}

type missingHandlerError struct{ Stage domain.Stage }

func (e *missingHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for stage %s", e.Stage)
}

// ErrMissingHandler matches the error Workers returns for an unregistered stage.
var ErrMissingHandler = errors.New("missing stage handler")

func (e *missingHandlerError) Is(target error) bool { return target == ErrMissingHandler }

// Workers returns one worker per stage in pipeline order.
func (c *Coordinator) Workers() ([]*worker.Worker, error) {
	out := make([]*worker.Worker, 0, len(domain.Stages))
	for _, s := range domain.Stages {
		w := c.worker(s)
		if w == nil {
			return nil, &missingHandlerError{Stage: s}
		}
		out = append(out, w)
	}
	return out, nil
}

func (c *Coordinator) worker(stage domain.Stage) *worker.Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workers[stage]
}

var (
	_ runtime.Enqueuer           = (*Coordinator)(nil)
	_ runtime.KeyedEnqueuer      = (*Coordinator)(nil)
	_ worker.FailureLedger       = (*Coordinator)(nil)
	_ observability.QueueCounter = (*Coordinator)(nil)
)
