package services

import (
	"context"
	"strings"

	"github.com/yungbote/vizflow-backend/internal/pkg/jsonutil"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/platform/openai"
)

const (
	DefaultMaxQueries = 3
	// GeneratorFailedQuery stands in when the query model cannot be reached.
	GeneratorFailedQuery = "What financial data would be relevant based on user activity?"
)

// QueryGenerator proposes research questions for an interaction. It never
// returns an empty list.
type QueryGenerator interface {
	Generate(ctx context.Context, description string, recentActions []string) []string
}

type queryGenerator struct {
	log        *logger.Logger
	ai         openai.Client
	maxQueries int
}

func NewQueryGenerator(log *logger.Logger, ai openai.Client, maxQueries int) QueryGenerator {
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	return &queryGenerator{
		log:        log.With("service", "QueryGenerator"),
		ai:         ai,
		maxQueries: maxQueries,
	}
}

func (g *queryGenerator) Generate(ctx context.Context, description string, recentActions []string) []string {
	if g.ai == nil {
		return []string{GeneratorFailedQuery}
	}
	recent := strings.Join(recentActions, ", ")
	if recent == "" {
		recent = "None"
	}
	user := strings.Join([]string{
		`Based on the user's current interaction: "` + description + `"`,
		"And their recent actions: " + recent,
		"",
		"Generate 1-3 relevant financial data queries that would be useful to show to the user now.",
		"Each query should be specific and actionable.",
		"",
		"Format your response as a JSON array of query strings, for example:",
		`["What are the current stock prices for tech companies?", "Show financial news for Apple"]`,
	}, "\n")

	text, err := g.ai.GenerateText(ctx, "You plan financial research for a user based on what they are doing.", user)
	if err != nil {
		g.log.Warn("Query generation failed; using fallback", "error", err)
		return []string{GeneratorFailedQuery}
	}
	return ParseQueries(text, description, g.maxQueries)
}

// queryStrategy extracts candidate queries from model text. An empty result
// hands over to the next strategy.
type queryStrategy struct {
	name    string
	extract func(text string) []string
}

var queryStrategies = []queryStrategy{
	{name: "json_array", extract: func(text string) []string {
		out, _ := jsonutil.StringArray(text)
		return out
	}},
	{name: "embedded_array", extract: func(text string) []string {
		arr := jsonutil.ExtractArray(text)
		if arr == "" {
			return nil
		}
		out, _ := jsonutil.StringArray(arr)
		return out
	}},
	{name: "quoted_strings", extract: jsonutil.QuotedStrings},
}

// ParseQueries runs the strategies in order and caps the winner at max. When
// every strategy comes up empty it returns a single question built from the
// description.
func ParseQueries(text, description string, max int) []string {
	if max <= 0 {
		max = DefaultMaxQueries
	}
	for _, s := range queryStrategies {
		if out := s.extract(text); len(out) > 0 {
			if len(out) > max {
				out = out[:max]
			}
			return out
		}
	}
	return []string{DescriptionFallbackQuery(description)}
}

func DescriptionFallbackQuery(description string) string {
	return "What financial data about " + description + " would be relevant?"
}
