package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/vizflow-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		return d.parse(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got kind %d", node.Kind)
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = dd
	return nil
}

// Load resolves configuration from defaults, an optional file and the
// environment, in that order, then validates the result.
func Load() (*Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("VIZ_CONFIG_PATH"))
	if path == "" {
		path = findDefaultFile()
	}
	if path != "" {
		if err := readFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findDefaultFile() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		p := filepath.Join(wd, "config", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return json.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	if port := envutil.String("PORT", ""); port != "" {
		cfg.HTTP.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := envutil.String("CORS_ORIGINS", ""); origins != "" {
		cfg.HTTP.CORSOrigins = splitList(origins)
	}

	cfg.Redis.URL = envutil.String("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.String("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("REDIS_DB", cfg.Redis.DB)

	cfg.Storage.ListCap = envutil.Int("STORAGE_LIST_CAP", cfg.Storage.ListCap)
	cfg.Storage.ListTTL.Duration = envutil.Seconds("STORAGE_EXPIRY_SECONDS", cfg.Storage.ListTTL.Duration)
	cfg.Storage.PartialTTL.Duration = envutil.Seconds("STORAGE_PARTIAL_EXPIRY_SECONDS", cfg.Storage.PartialTTL.Duration)

	p := &cfg.Pipeline
	p.Interaction.Concurrency = envutil.Int("WORKER_INTERACTION_CONCURRENCY", p.Interaction.Concurrency)
	p.Execution.Concurrency = envutil.Int("WORKER_EXECUTION_CONCURRENCY", p.Execution.Concurrency)
	p.Visualization.Concurrency = envutil.Int("WORKER_VISUALIZATION_CONCURRENCY", p.Visualization.Concurrency)
	p.Visualization.RateLimit = envutil.Float("WORKER_VISUALIZATION_RATE_LIMIT", p.Visualization.RateLimit)
	p.MaxAttempts = envutil.Int("PIPELINE_MAX_ATTEMPTS", p.MaxAttempts)
	p.JobTimeout.Duration = envutil.Seconds("PIPELINE_JOB_TIMEOUT_SECONDS", p.JobTimeout.Duration)
	p.RenderTimeout.Duration = envutil.Seconds("PIPELINE_RENDER_TIMEOUT_SECONDS", p.RenderTimeout.Duration)
	p.PartialUpdates = envutil.Bool("PIPELINE_PARTIAL_UPDATES", p.PartialUpdates)
	if allowed := envutil.String("PIPELINE_ALLOWED_EVENT_TYPES", ""); allowed != "" {
		p.AllowedEventTypes = splitList(allowed)
	}

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = envutil.String("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", cfg.OpenAI.MaxRetries)
	cfg.OpenAI.Timeout.Duration = envutil.Seconds("OPENAI_TIMEOUT_SECONDS", cfg.OpenAI.Timeout.Duration)

	cfg.FinData.BaseURL = envutil.String("FINDATA_BASE_URL", cfg.FinData.BaseURL)
	cfg.News.BaseURL = envutil.String("FIRECRAWL_BASE_URL", cfg.News.BaseURL)
	cfg.News.APIKey = envutil.String("FIRECRAWL_API_KEY", cfg.News.APIKey)

	cfg.Renderer.Mode = envutil.String("RENDERER_MODE", cfg.Renderer.Mode)
	cfg.Renderer.URL = envutil.String("RENDERER_URL", cfg.Renderer.URL)

	cfg.Database.Driver = envutil.String("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = envutil.String("DATABASE_DSN", cfg.Database.DSN)

	cfg.Telemetry.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.Version = envutil.String("APP_VERSION", cfg.Telemetry.Version)
	cfg.Telemetry.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.Telemetry.MetricsEnabled)
	cfg.Telemetry.TracingEnabled = envutil.Bool("OTEL_ENABLED", cfg.Telemetry.TracingEnabled)
	cfg.Telemetry.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Telemetry.SampleRatio)
	cfg.Telemetry.OTLPEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.OTLPInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Telemetry.OTLPInsecure)
}

var knownEventTypes = map[string]bool{
	"click": true, "zoom": true, "voice": true, "hover": true, "navigation": true,
}

// Validate normalizes trivially fixable values and rejects the rest.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Redis.URL == "" && c.Redis.Addr == "" {
		return errors.New("redis: url or addr is required")
	}

	if c.Storage.ListCap < 1 {
		return fmt.Errorf("storage.list_cap must be >= 1, got %d", c.Storage.ListCap)
	}
	if c.Storage.ListTTL.Duration <= 0 || c.Storage.PartialTTL.Duration <= 0 {
		return errors.New("storage ttl values must be positive")
	}
	if c.Storage.EventLogCap < 1 {
		c.Storage.EventLogCap = 50
	}

	p := &c.Pipeline
	for name, sc := range map[string]*StageConfig{
		"interaction":   &p.Interaction,
		"execution":     &p.Execution,
		"visualization": &p.Visualization,
	} {
		if sc.Concurrency < 1 {
			return fmt.Errorf("pipeline.%s.concurrency must be >= 1", name)
		}
		if sc.RateLimit < 0 {
			return fmt.Errorf("pipeline.%s.rate_limit must be >= 0", name)
		}
		if sc.RateLimit > 0 && sc.Burst < 1 {
			sc.Burst = 1
		}
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Backoff.Duration <= 0 {
		return errors.New("pipeline.backoff must be positive")
	}
	if p.JobTimeout.Duration <= 0 {
		return errors.New("pipeline.job_timeout must be positive")
	}
	if p.RenderTimeout.Duration <= 0 || p.RenderTimeout.Duration >= p.JobTimeout.Duration {
		return fmt.Errorf("pipeline.render_timeout (%s) must be positive and shorter than job_timeout (%s)",
			p.RenderTimeout.Duration, p.JobTimeout.Duration)
	}
	if p.PollInterval.Duration <= 0 {
		p.PollInterval = D(500 * time.Millisecond)
	}
	if p.SweepInterval.Duration <= 0 {
		p.SweepInterval = D(time.Hour)
	}
	for _, t := range p.AllowedEventTypes {
		if !knownEventTypes[t] {
			return fmt.Errorf("pipeline.allowed_event_types: unknown event type %q", t)
		}
	}
	if p.MaxQueries < 1 {
		p.MaxQueries = 3
	}
	if p.RecentActions < 0 {
		p.RecentActions = 0
	}

	switch strings.ToLower(strings.TrimSpace(c.Renderer.Mode)) {
	case "", "llm":
		c.Renderer.Mode = "llm"
	case "http":
		c.Renderer.Mode = "http"
		if strings.TrimSpace(c.Renderer.URL) == "" {
			return errors.New("renderer.url is required when renderer.mode=http")
		}
	default:
		return fmt.Errorf("renderer.mode: unknown mode %q", c.Renderer.Mode)
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "":
	case "postgres", "sqlite":
		c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}

	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.FinData.BaseURL = strings.TrimRight(strings.TrimSpace(c.FinData.BaseURL), "/")
	c.News.BaseURL = strings.TrimRight(strings.TrimSpace(c.News.BaseURL), "/")
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
