package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
	"github.com/yungbote/vizflow-backend/internal/tools"
)

// StepFunc observes each executed tool step. step starts at 1.
type StepFunc func(ctx context.Context, step int, result tools.Result)

// FinancialReasoner answers a query by letting the model pick exactly one
// research tool and running it.
type FinancialReasoner interface {
	Reason(ctx context.Context, query string, qctx domain.QueryContext, onStep StepFunc) (domain.ExecutionOutput, error)
}

type financialReasoner struct {
	log   *logger.Logger
	ai    openai.Client
	tools tools.Executor
}

func NewFinancialReasoner(log *logger.Logger, ai openai.Client, exec tools.Executor) FinancialReasoner {
	return &financialReasoner{
		log:   log.With("service", "FinancialReasoner"),
		ai:    ai,
		tools: exec,
	}
}

func reasonerSystemPrompt(qctx domain.QueryContext) string {
	lines := []string{
		"You are a helpful assistant that can filter companies by certain criteria and retrieve basic stock information.",
		"You take the user queries and also enhance them to use more specific and accurate language.",
		"Return your findings to the user in an easy to understand format.",
		"",
		"You are able to run only the most relevant tool call per query. Only one!",
	}
	if len(qctx.RecentActions) > 0 || strings.TrimSpace(qctx.CurrentAction) != "" {
		recent := strings.Join(qctx.RecentActions, ", ")
		if recent == "" {
			recent = "None"
		}
		current := strings.TrimSpace(qctx.CurrentAction)
		if current == "" {
			current = "None"
		}
		lines = append(lines,
			"",
			"User recent actions: "+recent,
			"Current action: "+current,
			"",
			"Based on these interactions, determine what information might be most relevant to the user and which tool you should call.",
			"Provide the most appropriate arguments fitting the tool's input schema.",
		)
	}
	return strings.Join(lines, "\n")
}

func (r *financialReasoner) Reason(ctx context.Context, query string, qctx domain.QueryContext, onStep StepFunc) (domain.ExecutionOutput, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ExecutionOutput{}, fmt.Errorf("empty query")
	}
	if r.ai == nil || r.tools == nil {
		return domain.ExecutionOutput{}, fmt.Errorf("reasoner not configured")
	}

	step, err := r.ai.CallTools(ctx, reasonerSystemPrompt(qctx), query, r.tools.Definitions(), openai.ToolChoiceRequired)
	if err != nil {
		return domain.ExecutionOutput{}, fmt.Errorf("reasoner model call: %w", err)
	}
	if len(step.Calls) == 0 {
		return domain.ExecutionOutput{}, fmt.Errorf("reasoner chose no tool")
	}
	if len(step.Calls) > 1 {
		r.log.Warn("Model chose several tools; running the first", "calls", len(step.Calls))
	}

	res, err := r.tools.Execute(ctx, step.Calls[0])
	if err != nil {
		return domain.ExecutionOutput{}, err
	}
	if onStep != nil {
		onStep(ctx, 1, res)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return domain.ExecutionOutput{}, fmt.Errorf("encode tool result: %w", err)
	}
	out := domain.ExecutionOutput{
		Text:        strings.TrimSpace(step.Text),
		ToolResults: []json.RawMessage{raw},
	}
	return out.Normalize(), nil
}
