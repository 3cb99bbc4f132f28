// Package findata calls the financial data vendor behind the reasoner tools.
// Every endpoint is a POST with an empty JSON body; arguments travel in the
// query string. Responses are passed through untouched.
package findata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/pkg/httpx"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type Client interface {
	// SearchWithCriteria filters companies by criteria such as
	// {"ebitda": "is positive", "employees": "more than 10000"}.
	SearchWithCriteria(ctx context.Context, criteria map[string]string) (json.RawMessage, error)
	Summary(ctx context.Context, company string) (json.RawMessage, error)
	// OHLCV returns price history. first and last are optional dd.mm.yyyy dates.
	OHLCV(ctx context.Context, company, first, last string) (json.RawMessage, error)
	CompanyData(ctx context.Context, requests []CompanyDataRequest) (json.RawMessage, error)
}

type CompanyDataRequest struct {
	CompanyName           string   `json:"companyName"`
	InformationToRetrieve []string `json:"informationToRetrieve"`
	Year                  int      `json:"year"`
}

type client struct {
	log  *logger.Logger
	http *resty.Client
}

func New(cfg config.FinDataConfig, baseLog *logger.Logger) (Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("missing FINDATA_BASE_URL")
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &client{log: baseLog.With("client", "FinData"), http: rc}, nil
}

func (c *client) post(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx).SetBody(map[string]any{})
	for k, v := range params {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	start := time.Now()
	resp, err := req.Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("findata %s: %w", endpoint, err)
	}
	c.log.Debug("FinData call finished", "endpoint", endpoint, "status", resp.StatusCode(), "duration", time.Since(start).String())
	if err := httpx.CheckResty("findata "+endpoint, resp); err != nil {
		return nil, err
	}
	body := resp.Body()
	if len(body) == 0 || !json.Valid(body) {
		// Non-JSON replies are still useful to the renderer as text.
		quoted, _ := json.Marshal(string(body))
		return quoted, nil
	}
	return json.RawMessage(body), nil
}

func (c *client) SearchWithCriteria(ctx context.Context, criteria map[string]string) (json.RawMessage, error) {
	if len(criteria) == 0 {
		return nil, fmt.Errorf("at least one criterion required")
	}
	raw, err := json.Marshal(criteria)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/searchwithcriteria", map[string]string{"query": string(raw)})
}

func (c *client) Summary(ctx context.Context, company string) (json.RawMessage, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("company required")
	}
	return c.post(ctx, "/summary", map[string]string{"query": company})
}

func (c *client) OHLCV(ctx context.Context, company, first, last string) (json.RawMessage, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("company required")
	}
	for _, d := range []string{first, last} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return nil, fmt.Errorf("date %q is not dd.mm.yyyy", d)
		}
	}
	return c.post(ctx, "/ohlcv", map[string]string{"query": company, "first": first, "last": last})
}

func (c *client) CompanyData(ctx context.Context, requests []CompanyDataRequest) (json.RawMessage, error) {
	q, err := CompanyDataQuery(requests)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, "/companydatasearch", map[string]string{"query": q})
}

// DateLayout is the vendor's dd.mm.yyyy date format.
const DateLayout = "02.01.2006"

// CompanyDataQuery encodes requests as {"Company": "info, info|year"} with
// commas swapped for semicolons, which is what the vendor parses.
func CompanyDataQuery(requests []CompanyDataRequest) (string, error) {
	if len(requests) == 0 {
		return "", fmt.Errorf("at least one company required")
	}
	names := make([]string, 0, len(requests))
	byName := make(map[string]string, len(requests))
	for _, r := range requests {
		name := strings.TrimSpace(r.CompanyName)
		if name == "" {
			return "", fmt.Errorf("companyName required")
		}
		if _, seen := byName[name]; !seen {
			names = append(names, name)
		}
		byName[name] = strings.Join(r.InformationToRetrieve, ", ") + "|" + strconv.Itoa(r.Year)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		v, _ := json.Marshal(byName[name])
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return strings.ReplaceAll(b.String(), ",", ";"), nil
}

// Retryable reports whether a vendor error is worth another attempt.
func Retryable(err error) bool {
	return httpx.IsRetryableError(err)
}
