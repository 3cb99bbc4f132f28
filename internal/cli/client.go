package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/http/response"
	"github.com/yungbote/vizflow-backend/internal/jobs/queue"
)

// Client calls the pipeline's HTTP API.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("server url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: rc}, nil
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) do(req *resty.Request, method, path string) error {
	var envelope response.ErrorEnvelope
	req.SetError(&envelope)
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := envelope.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return &APIError{Status: resp.StatusCode(), Code: envelope.Error.Code, Message: msg}
	}
	return nil
}

func (c *Client) Queues(ctx context.Context) (map[string]queue.Counts, error) {
	var out struct {
		Queues map[string]queue.Counts `json:"queues"`
	}
	if err := c.do(c.http.R().SetContext(ctx).SetResult(&out), resty.MethodGet, "/api/queues"); err != nil {
		return nil, err
	}
	return out.Queues, nil
}

func (c *Client) SubmitEvent(ctx context.Context, userID, eventType string, data json.RawMessage) (string, error) {
	body := map[string]any{"userId": userID, "eventType": eventType}
	if len(data) > 0 {
		body["eventData"] = data
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	req := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out)
	if err := c.do(req, resty.MethodPost, "/api/pipeline/events"); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) Cancel(ctx context.Context, userID string) (int, error) {
	var out struct {
		CancelCount int `json:"cancelCount"`
	}
	req := c.http.R().SetContext(ctx).SetBody(map[string]string{"userId": userID}).SetResult(&out)
	if err := c.do(req, resty.MethodPost, "/api/visualizations/cancel"); err != nil {
		return 0, err
	}
	return out.CancelCount, nil
}

func (c *Client) Visualizations(ctx context.Context, userID string, limit int) ([]domain.VisualizationRecord, error) {
	var out struct {
		Visualizations []domain.VisualizationRecord `json:"visualizations"`
	}
	req := c.http.R().SetContext(ctx).
		SetQueryParam("userId", userID).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out)
	if err := c.do(req, resty.MethodGet, "/api/visualizations"); err != nil {
		return nil, err
	}
	return out.Visualizations, nil
}

func (c *Client) Partial(ctx context.Context, userID string, step int) (*domain.VisualizationRecord, error) {
	var out domain.VisualizationRecord
	req := c.http.R().SetContext(ctx).
		SetQueryParam("userId", userID).
		SetQueryParam("step", strconv.Itoa(step)).
		SetResult(&out)
	if err := c.do(req, resty.MethodGet, "/api/visualizations/partial"); err != nil {
		return nil, err
	}
	return &out, nil
}
