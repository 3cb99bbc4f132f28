package query_execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/jobs/coordinator"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
	jobrt "github.com/yungbote/vizflow-backend/internal/jobs/runtime"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/repos"
	"github.com/yungbote/vizflow-backend/internal/services"
	"github.com/yungbote/vizflow-backend/internal/store"
	"github.com/yungbote/vizflow-backend/internal/tools"
)

type stubReasoner struct {
	out   domain.ExecutionOutput
	err   error
	steps int
}

func (r *stubReasoner) Reason(ctx context.Context, query string, qctx domain.QueryContext, onStep services.StepFunc) (domain.ExecutionOutput, error) {
	if r.err != nil {
		return domain.ExecutionOutput{}, r.err
	}
	for i := 1; i <= r.steps; i++ {
		if onStep != nil {
			onStep(ctx, i, tools.Result{ToolCallID: "c", ToolName: tools.GetCurrentNews, Result: json.RawMessage(`{}`)})
		}
	}
	return r.out, nil
}

func setup(t *testing.T, r *stubReasoner, partial bool) (*coordinator.Coordinator, repos.ResultRepo, *Pipeline, *jobrt.Context) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	c := coordinator.New(st, nil, nil, nil, logger.Nop(), nil, coordinator.Options{Queue: queue.Options{MaxAttempts: 3, Backoff: time.Second}})
	results := repos.NewResultRepo(st, logger.Nop(), repos.ListOptions{Cap: 50, TTL: time.Hour})
	p := New(logger.Nop(), r, results, partial)

	if _, err := c.EnqueueExecution(ctx, domain.GeneratedQuery{UserID: "u1", Query: "UBS price"}); err != nil {
		t.Fatalf("EnqueueExecution: %v", err)
	}
	job, err := c.Queue(domain.StageExecution).Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim: job=%v err=%v", job, err)
	}
	return c, results, p, jobrt.NewContext(ctx, domain.StageExecution, job, logger.Nop(), c)
}

func visualizationJobs(t *testing.T, c *coordinator.Coordinator) []domain.VisualizationJob {
	t.Helper()
	jobs, err := c.Queue(domain.StageVisualization).List(context.Background(), queue.StateWaiting, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make([]domain.VisualizationJob, 0, len(jobs))
	for _, j := range jobs {
		var vj domain.VisualizationJob
		if err := j.Decode(&vj); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, vj)
	}
	return out
}

func TestProcessStoresResultAndEnqueuesVisualization(t *testing.T) {
	c, results, p, jc := setup(t, &stubReasoner{out: domain.ExecutionOutput{Text: "done"}}, false)
	res, err := p.Process(jc)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Result.ToolResults == nil || len(res.Result.ToolResults) != 0 {
		t.Fatalf("tool results must normalize to empty: %#v", res.Result.ToolResults)
	}
	stored, _ := results.ListByUser(context.Background(), "u1", 10)
	if len(stored) != 1 || stored[0].Query != "UBS price" {
		t.Fatalf("stored: %+v", stored)
	}
	vjs := visualizationJobs(t, c)
	if len(vjs) != 1 || vjs[0].IsPartial || vjs[0].Result.Result.Text != "done" {
		t.Fatalf("visualization jobs: %+v", vjs)
	}
}

func TestProcessEnqueuesPartialPerStep(t *testing.T) {
	c, _, p, jc := setup(t, &stubReasoner{out: domain.ExecutionOutput{Text: "done"}, steps: 1}, true)
	if _, err := p.Process(jc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	vjs := visualizationJobs(t, c)
	if len(vjs) != 2 {
		t.Fatalf("jobs: got=%d want=2", len(vjs))
	}
	var partial *domain.VisualizationJob
	for i := range vjs {
		if vjs[i].IsPartial {
			partial = &vjs[i]
		}
	}
	if partial == nil || partial.StepNumber != 1 || partial.Result.Result.Text != "Results from getCurrentNews" {
		t.Fatalf("partial: %+v", partial)
	}
	if len(partial.Result.Result.ToolResults) != 1 {
		t.Fatalf("partial tool results: %+v", partial.Result.Result.ToolResults)
	}
}

func TestProcessStoresNothingOnReasonerFailure(t *testing.T) {
	c, results, p, jc := setup(t, &stubReasoner{err: errors.New("rate limited")}, true)
	if _, err := p.Process(jc); err == nil {
		t.Fatalf("expected error")
	}
	stored, _ := results.ListByUser(context.Background(), "u1", 10)
	if len(stored) != 0 || len(visualizationJobs(t, c)) != 0 {
		t.Fatalf("nothing should be stored or enqueued: stored=%d", len(stored))
	}
}
