package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	"github.com/yungbote/vizflow-backend/internal/jobs/runtime"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// FailureLedger persists jobs that exhausted their attempts.
type FailureLedger interface {
	RecordFailure(ctx context.Context, stage domain.Stage, job *queue.Job, cause error) error
}

type WorkerOptions struct {
	Concurrency int
	// RateLimit caps job starts per second across the worker; 0 disables.
	RateLimit    float64
	Burst        int
	JobTimeout   time.Duration
	PollInterval time.Duration
}

// Worker drains one stage queue. It implements suture.Service.
type Worker struct {
	stage    domain.Stage
	q        *queue.Queue
	registry *runtime.Registry
	enq      runtime.Enqueuer
	log      *logger.Logger
	opts     WorkerOptions
	limiter  *rate.Limiter
	metrics  *observability.Metrics
	ledger   FailureLedger
	tracer   trace.Tracer

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewWorker drains q for stage, running the handler registry holds for it.
func NewWorker(
	stage domain.Stage,
	q *queue.Queue,
	registry *runtime.Registry,
	enq runtime.Enqueuer,
	baseLog *logger.Logger,
	opts WorkerOptions,
	metrics *observability.Metrics,
	ledger FailureLedger,
) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	w := &Worker{
		stage:    stage,
		q:        q,
		registry: registry,
		enq:      enq,
		log:      baseLog.With("component", "JobWorker", "stage", stage.String()),
		opts:     opts,
		metrics:  metrics,
		ledger:   ledger,
		tracer:   observability.Tracer("vizflow/jobs"),
		inflight: make(map[string]context.CancelFunc),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return w
}

func (w *Worker) String() string { return "worker:" + w.stage.String() }

func (w *Worker) Stage() domain.Stage { return w.stage }

// Serve runs Concurrency claim loops plus the delayed-job promoter until ctx
// ends.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info("Worker started", "concurrency", w.opts.Concurrency, "rate_limit", w.opts.RateLimit)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.promoteLoop(gctx)
		return nil
	})
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error {
			w.claimLoop(gctx)
			return nil
		})
	}
	_ = g.Wait()
	w.log.Info("Worker stopped")
	return ctx.Err()
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("PromoteDue failed", "error", err)
			} else if n > 0 {
				w.log.Debug("Promoted delayed jobs", "count", n)
			}
		}
	}
}

func (w *Worker) claimLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("Claim failed", "error", err)
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.q.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.putBack(ctx, job)
			return true, nil
		}
	}
	w.run(ctx, job)
	return true, nil
}

func (w *Worker) putBack(ctx context.Context, job *queue.Job) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.q.Release(relCtx, job); err != nil && !errors.Is(err, queue.ErrJobRemoved) {
		w.log.Warn("Release failed; job will be recovered as stalled", "job_id", job.ID, "error", err)
	}
}

// Abort cancels a job running in this process. Returns false when the job
// is not in flight here.
func (w *Worker) Abort(jobID string) bool {
	w.mu.Lock()
	cancel, ok := w.inflight[jobID]
	w.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (w *Worker) track(id string, cancel context.CancelFunc) {
	w.mu.Lock()
	w.inflight[id] = cancel
	w.mu.Unlock()
}

func (w *Worker) untrack(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context, job *queue.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()
	w.track(job.ID, cancel)
	defer w.untrack(job.ID)

	jobCtx, span := w.tracer.Start(jobCtx, "job."+w.stage.String(), trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.user_id", job.UserID),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	jc := runtime.NewContext(jobCtx, w.stage, job, w.log, w.enq)
	start := time.Now()
	h, ok := w.registry.Get(w.stage)
	var err error
	if ok {
		err = w.invoke(jc, h)
	} else {
		err = fmt.Errorf("%w for stage %s", runtime.ErrNoHandler, w.stage)
	}

	if err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		jc.Log.Warn("Job timed out", "timeout", w.opts.JobTimeout)
		err = fmt.Errorf("%s timed out after %s: %w", w.stage, w.opts.JobTimeout, err)
		span.SetAttributes(attribute.Bool("job.timed_out", true))
	}

	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer finishCancel()

	if err != nil && ctx.Err() != nil {
		jc.Log.Info("Shutdown interrupted job; returning it to the queue")
		if rerr := w.q.Release(finishCtx, job); rerr != nil && !errors.Is(rerr, queue.ErrJobRemoved) {
			jc.Log.Warn("Release failed", "error", rerr)
		}
		return
	}

	if err == nil {
		cerr := w.q.Complete(finishCtx, job)
		switch {
		case errors.Is(cerr, queue.ErrJobRemoved):
			jc.Log.Info("Job removed while running; completion dropped")
			w.metrics.ObserveJob(w.stage.String(), "removed", time.Since(start))
		case cerr != nil:
			jc.Log.Error("Complete failed", "error", cerr)
			span.RecordError(cerr)
		default:
			jc.Log.Debug("Job completed", "duration", time.Since(start))
			w.metrics.ObserveJob(w.stage.String(), "completed", time.Since(start))
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	out, ferr := w.q.Fail(finishCtx, job, err)
	if errors.Is(ferr, queue.ErrJobRemoved) {
		jc.Log.Info("Job removed while running; failure dropped", "error", err)
		w.metrics.ObserveJob(w.stage.String(), "removed", time.Since(start))
		return
	}
	if ferr != nil {
		jc.Log.Error("Fail bookkeeping failed", "error", ferr, "cause", err)
		return
	}

	outcome := "retrying"
	if out.Final {
		outcome = "failed"
		jc.Log.Error("Job failed permanently", "error", err, "attempts", out.Attempt)
		if w.ledger != nil {
			if lerr := w.ledger.RecordFailure(finishCtx, w.stage, job, err); lerr != nil {
				jc.Log.Warn("Failure ledger write failed", "error", lerr)
			}
		}
	} else {
		jc.Log.Warn("Job attempt failed; retry scheduled", "error", err, "delay", out.Delay)
	}
	w.metrics.ObserveJob(w.stage.String(), outcome, time.Since(start))

	if obs, ok := h.(runtime.FailureObserver); ok {
		jc.Ctx = finishCtx
		obs.OnFailure(jc, err, out.Final)
	}
}

func (w *Worker) invoke(jc *runtime.Context, h runtime.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			jc.Log.Error("Job handler panic", "panic", r)
			err = &panicError{Val: r}
		}
	}()
	return h.Run(jc)
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
