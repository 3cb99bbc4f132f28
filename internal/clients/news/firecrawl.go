// Package news searches recent company news through the Firecrawl search API.
package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/pkg/httpx"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type Finding struct {
	Title   string `json:"title"`
	Teaser  string `json:"teaser"`
	Details string `json:"details"`
	URL     string `json:"url,omitempty"`
}

type Findings struct {
	Findings []Finding `json:"findings"`
}

type Searcher interface {
	Search(ctx context.Context, query string) (Findings, error)
}

// ErrorFindings is what the news tool hands back instead of an error.
func ErrorFindings(err error) Findings {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Findings{Findings: []Finding{{
		Title:   "Error retrieving news",
		Teaser:  "Error occurred",
		Details: "Failed to retrieve news: " + msg,
	}}}
}

type firecrawl struct {
	log   *logger.Logger
	http  *resty.Client
	limit int
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
}

func NewFirecrawl(cfg config.NewsConfig, baseLog *logger.Logger) (Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing FIRECRAWL_API_KEY")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.firecrawl.dev"
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	rc := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &firecrawl{log: baseLog.With("client", "Firecrawl"), http: rc, limit: limit}, nil
}

func (f *firecrawl) Search(ctx context.Context, query string) (Findings, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Findings{}, fmt.Errorf("query required")
	}
	var out searchResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(&searchRequest{Query: query, Limit: f.limit}).
		SetResult(&out).
		Post("/v1/search")
	if err != nil {
		return Findings{}, fmt.Errorf("firecrawl search: %w", err)
	}
	if err := httpx.CheckResty("firecrawl search", resp); err != nil {
		return Findings{}, err
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "unsuccessful search"
		}
		return Findings{}, fmt.Errorf("firecrawl search: %s", out.Error)
	}

	findings := Findings{Findings: make([]Finding, 0, len(out.Data))}
	for _, d := range out.Data {
		details := strings.TrimSpace(d.Description)
		if details == "" {
			details = shorten(d.Markdown, 600)
		}
		findings.Findings = append(findings.Findings, Finding{
			Title:   d.Title,
			Teaser:  teaser(d.Title),
			Details: details,
			URL:     d.URL,
		})
	}
	f.log.Debug("News search finished", "results", len(findings.Findings))
	return findings, nil
}

// teaser keeps the first few words of a headline.
func teaser(title string) string {
	words := strings.Fields(title)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
