package query_execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/vizflow-backend/internal/domain"
	jobrt "github.com/yungbote/vizflow-backend/internal/jobs/runtime"
	"github.com/yungbote/vizflow-backend/internal/tools"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	_, err := p.Process(jc)
	return err
}

// Process runs the reasoner for one query, stores the normalized result and
// hands it to stage 3. Nothing is stored when the reasoner fails.
func (p *Pipeline) Process(jc *jobrt.Context) (*domain.QueryExecutionResult, error) {
	if jc == nil || jc.Job == nil {
		return nil, nil
	}
	var gq domain.GeneratedQuery
	if err := jc.Decode(&gq); err != nil {
		return nil, err
	}
	if strings.TrimSpace(gq.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if jc.Enqueuer == nil {
		return nil, fmt.Errorf("no enqueuer for %s", domain.StageVisualization)
	}

	var onStep func(ctx context.Context, step int, res tools.Result)
	if p.partialUpdates {
		onStep = func(ctx context.Context, step int, res tools.Result) {
			p.enqueuePartial(jc, gq, step, res)
		}
	}

	out, err := p.reasoner.Reason(jc.Ctx, gq.Query, gq.Context, onStep)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	result := domain.QueryExecutionResult{
		UserID:    gq.UserID,
		Query:     gq.Query,
		Result:    out.Normalize(),
		Timestamp: domain.NowMillis(),
	}
	if err := p.results.Append(jc.Ctx, result); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}
	if _, err := jc.Enqueuer.Enqueue(jc.Ctx, domain.StageVisualization, result.UserID, domain.VisualizationJob{Result: result}); err != nil {
		return nil, fmt.Errorf("enqueue visualization: %w", err)
	}
	jc.Log.Info("Query executed", "tool_results", len(result.Result.ToolResults))
	return &result, nil
}

// enqueuePartial schedules an early render of a single tool step. Failure
// here never fails the query.
func (p *Pipeline) enqueuePartial(jc *jobrt.Context, gq domain.GeneratedQuery, step int, res tools.Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		jc.Log.Warn("Partial step not encodable", "step", step, "error", err)
		return
	}
	job := domain.VisualizationJob{
		Result: domain.QueryExecutionResult{
			UserID: gq.UserID,
			Query:  gq.Query,
			Result: domain.ExecutionOutput{
				Text:        "Results from " + res.ToolName,
				ToolResults: []json.RawMessage{raw},
			},
			Timestamp: domain.NowMillis(),
		},
		IsPartial:  true,
		StepNumber: step,
	}
	if _, err := jc.Enqueuer.Enqueue(jc.Ctx, domain.StageVisualization, gq.UserID, job); err != nil {
		jc.Log.Warn("Partial visualization not enqueued", "step", step, "error", err)
	}
}
