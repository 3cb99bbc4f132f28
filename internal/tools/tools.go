// Package tools holds the financial research functions the reasoner may call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/vizflow-backend/internal/clients/findata"
	"github.com/yungbote/vizflow-backend/internal/clients/news"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
)

const (
	FilterCompaniesByCriteria = "filterCompaniesByCriteria"
	GetCompanyStockSummary    = "getCompanyStockSummary"
	GetHistoricalStockPrice   = "getHistoricalStockPrice"
	GetCompanyData            = "getCompanyData"
	GetCurrentNews            = "getCurrentNews"
)

// Result is one executed call as it travels in toolResults.
type Result struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Result     json.RawMessage `json:"result"`
}

// Executor runs tool calls chosen by the model.
type Executor interface {
	Definitions() []openai.Tool
	Execute(ctx context.Context, call openai.ToolCall) (Result, error)
}

type execFunc func(ctx context.Context, args json.RawMessage) (any, error)

type entry struct {
	def openai.Tool
	run execFunc
}

type Registry struct {
	log     *logger.Logger
	metrics *observability.Metrics
	order   []string
	entries map[string]entry
}

// NewRegistry wires the five research tools. A nil news searcher makes the
// news tool answer with an error finding.
func NewRegistry(fin findata.Client, searcher news.Searcher, baseLog *logger.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		log:     baseLog.With("component", "ToolRegistry"),
		metrics: metrics,
		entries: map[string]entry{},
	}
	r.add(openai.Tool{
		Name:        FilterCompaniesByCriteria,
		Description: "Get a list of companies filtered by certain criteria.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{
				"type": "array",
				"description": strings.Join([]string{
					"Search with criteria. Each item is one criterion and its logical value,",
					`for example {"criteria":"ebitda","value":"is positive"} or {"criteria":"employees","value":"more than 10000"}.`,
				}, " "),
				"items": objectSchema(map[string]any{
					"criteria": map[string]any{"type": "string", "description": "The criteria to filter the companies by"},
					"value":    map[string]any{"type": "string", "description": "The value of the criteria"},
				}, "criteria", "value"),
			},
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query []struct {
				Criteria string `json:"criteria"`
				Value    string `json:"value"`
			} `json:"query"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		crit := make(map[string]string, len(args.Query))
		for _, q := range args.Query {
			if k := strings.TrimSpace(q.Criteria); k != "" {
				crit[k] = q.Value
			}
		}
		return fin.SearchWithCriteria(ctx, crit)
	})

	r.add(openai.Tool{
		Name:        GetCompanyStockSummary,
		Description: "Retrieves basic information about a company's stock.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The name of the company to search"},
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fin.Summary(ctx, args.Query)
	})

	r.add(openai.Tool{
		Name:        GetHistoricalStockPrice,
		Description: "Useful when you need information about a company's stock price history.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The name of the company to search"},
			"first": map[string]any{"type": "string", "description": "The first date of the stock price history to retrieve in dd.mm.yyyy format."},
			"last":  map[string]any{"type": "string", "description": "The last date of the stock price history to retrieve in dd.mm.yyyy format."},
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
			First string `json:"first"`
			Last  string `json:"last"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fin.OHLCV(ctx, args.Query, normalizeDate(args.First), normalizeDate(args.Last))
	})

	r.add(openai.Tool{
		Name: GetCompanyData,
		Description: strings.Join([]string{
			"Useful when you need information about one or more companies, such as employee numbers,",
			"market or financial information, ratios and fundamentals.",
		}, " "),
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{
				"type": "array",
				"items": objectSchema(map[string]any{
					"companyName": map[string]any{"type": "string", "description": "The name of the company to search"},
					"informationToRetrieve": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Short strings naming the information to retrieve about the company",
					},
					"year": map[string]any{"type": "integer", "description": "The year of the information to retrieve"},
				}, "companyName", "informationToRetrieve", "year"),
			},
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query []findata.CompanyDataRequest `json:"query"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return fin.CompanyData(ctx, args.Query)
	})

	r.add(openai.Tool{
		Name:        GetCurrentNews,
		Description: "Useful when you need information about the latest news about a company.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "A search query to retrieve the latest news about a company"},
		}, "query"),
	}, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return news.ErrorFindings(err), nil
		}
		if searcher == nil {
			return news.ErrorFindings(fmt.Errorf("news search is not configured")), nil
		}
		found, err := searcher.Search(ctx, args.Query)
		if err != nil {
			r.log.Warn("News search failed", "error", err)
			return news.ErrorFindings(err), nil
		}
		return found, nil
	})
	return r
}

func (r *Registry) add(def openai.Tool, run execFunc) {
	r.order = append(r.order, def.Name)
	r.entries[def.Name] = entry{def: def, run: run}
}

func (r *Registry) Definitions() []openai.Tool {
	out := make([]openai.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].def)
	}
	return out
}

func (r *Registry) Execute(ctx context.Context, call openai.ToolCall) (Result, error) {
	res := Result{ToolCallID: call.CallID, ToolName: call.Name, Args: call.Arguments}
	if len(res.Args) == 0 {
		res.Args = json.RawMessage(`{}`)
	}
	e, ok := r.entries[call.Name]
	if !ok {
		err := fmt.Errorf("unknown tool %q", call.Name)
		r.metrics.IncToolCall(call.Name, err)
		return res, err
	}

	start := time.Now()
	out, err := e.run(ctx, res.Args)
	r.metrics.IncToolCall(call.Name, err)
	if err != nil {
		r.log.Warn("Tool call failed",
			"tool", call.Name,
			"retryable", findata.Retryable(err),
			"duration", time.Since(start).String(),
			"error", err,
		)
		return res, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	switch v := out.(type) {
	case json.RawMessage:
		res.Result = v
	default:
		raw, merr := json.Marshal(v)
		if merr != nil {
			return res, fmt.Errorf("tool %s: encode result: %w", call.Name, merr)
		}
		res.Result = raw
	}
	r.log.Debug("Tool call finished", "tool", call.Name, "duration", time.Since(start).String())
	return res, nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

// normalizeDate accepts dd.mm.yyyy as is and rewrites ISO dates, which models
// produce despite the instructions.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := time.Parse(findata.DateLayout, s); err == nil {
		return s
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format(findata.DateLayout)
	}
	return s
}
