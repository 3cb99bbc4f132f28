package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/vizflow-backend/internal/clients/renderer"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
)

type cardRenderer struct {
	log *logger.Logger
	ai  openai.Client
}

// NewCardRenderer renders Adaptive Cards with the model. Each card comes back
// as a JSON string so the response schema can stay strict.
func NewCardRenderer(log *logger.Logger, ai openai.Client) renderer.Renderer {
	return &cardRenderer{
		log: log.With("service", "CardRenderer"),
		ai:  ai,
	}
}

var cardsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"cards"},
	"properties": map[string]any{
		"cards": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":        "string",
				"description": "One complete Adaptive Card (version 1.5) serialized as a JSON string.",
			},
		},
	},
}

func (c *cardRenderer) Render(ctx context.Context, req renderer.Request) (json.RawMessage, error) {
	if c.ai == nil {
		return nil, fmt.Errorf("card renderer not configured")
	}
	results := req.ToolResults
	if results == nil {
		results = []json.RawMessage{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode tool results: %w", err)
	}

	system := strings.Join([]string{
		"You turn financial research results into Adaptive Cards (schema version 1.5).",
		"Use only data present in the tool results; never invent numbers.",
		"Prefer FactSet for key figures, ColumnSet for comparisons and TextBlock for short summaries.",
		"Return ONLY JSON matching the schema.",
	}, "\n")
	mode := "complete"
	if req.IsPartial {
		mode = "partial (one intermediate step; keep it to a single compact card)"
	}
	user := strings.Join([]string{
		"USER_QUERY:",
		req.Query,
		"",
		"RESULT_KIND: " + mode,
		"",
		"TOOL_RESULTS_JSON:",
		string(data),
	}, "\n")

	obj, err := c.ai.GenerateJSON(ctx, system, user, "adaptive_cards", cardsSchema)
	if err != nil {
		return nil, fmt.Errorf("card generation: %w", err)
	}
	return decodeCards(obj)
}

// decodeCards unpacks {"cards": ["<json>", ...]} into a JSON array, dropping
// entries that are not JSON objects. All entries bad is an error.
func decodeCards(obj map[string]any) (json.RawMessage, error) {
	items, _ := obj["cards"].([]any)
	cards := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "{") || !json.Valid([]byte(s)) {
			continue
		}
		cards = append(cards, json.RawMessage(s))
	}
	if len(items) > 0 && len(cards) == 0 {
		return nil, fmt.Errorf("model returned %d unreadable cards", len(items))
	}
	return json.Marshal(cards)
}
