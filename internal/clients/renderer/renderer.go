// Package renderer turns tool results into Adaptive Card JSON.
package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/pkg/httpx"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type Request struct {
	Query       string
	ToolResults []json.RawMessage
	IsPartial   bool
}

// Renderer returns a JSON array of cards.
type Renderer interface {
	Render(ctx context.Context, req Request) (json.RawMessage, error)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(ctx context.Context, req Request) (json.RawMessage, error)

func (f RenderFunc) Render(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// ErrNotArray is returned when a renderer answers with something other than
// a JSON array.
var ErrNotArray = errors.New("renderer: response is not a JSON array")

type httpRenderer struct {
	log  *logger.Logger
	http *resty.Client
	url  string
}

type httpRequest struct {
	UserQuery          string            `json:"userQuery"`
	ToolCallJSONResult []json.RawMessage `json:"toolCallJsonResult"`
	IsPartial          bool              `json:"isPartial"`
}

// NewHTTP posts render requests to an external renderer. The caller's
// context bounds each call; timeout only caps a caller without a deadline.
func NewHTTP(url string, timeout time.Duration, baseLog *logger.Logger) (Renderer, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("missing RENDERER_URL")
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	rc := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &httpRenderer{log: baseLog.With("client", "HTTPRenderer"), http: rc, url: url}, nil
}

func (r *httpRenderer) Render(ctx context.Context, req Request) (json.RawMessage, error) {
	results := req.ToolResults
	if results == nil {
		results = []json.RawMessage{}
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(&httpRequest{UserQuery: req.Query, ToolCallJSONResult: results, IsPartial: req.IsPartial}).
		Post(r.url)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	if err := httpx.CheckResty("renderer", resp); err != nil {
		return nil, err
	}
	return asArray(resp.Body())
}

// asArray accepts a bare array or an object wrapping one under "cards" or
// "adaptiveCards".
func asArray(body []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if !json.Valid([]byte(trimmed)) {
			return nil, ErrNotArray
		}
		return json.RawMessage(trimmed), nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, ErrNotArray
	}
	for _, key := range []string{"adaptiveCards", "cards"} {
		if v, ok := wrapped[key]; ok && strings.HasPrefix(strings.TrimSpace(string(v)), "[") {
			return v, nil
		}
	}
	return nil, ErrNotArray
}

// New builds the configured renderer. llm is used when Mode is "llm".
func New(cfg config.RendererConfig, renderTimeout time.Duration, llm Renderer, baseLog *logger.Logger) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "http":
		return NewHTTP(cfg.URL, renderTimeout, baseLog)
	case "", "llm":
		if llm == nil {
			return nil, fmt.Errorf("llm renderer mode needs a model client")
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown renderer mode %q", cfg.Mode)
	}
}
