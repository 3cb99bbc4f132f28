package config

import (
	"time"
)

// Duration accepts "5s" style strings or integer nanoseconds in config files.
type Duration struct {
	time.Duration
}

func D(d time.Duration) Duration { return Duration{Duration: d} }

type Config struct {
	Env       string          `json:"env" yaml:"env"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	FinData   FinDataConfig   `json:"findata" yaml:"findata"`
	News      NewsConfig      `json:"news" yaml:"news"`
	Renderer  RendererConfig  `json:"renderer" yaml:"renderer"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

type HTTPConfig struct {
	Addr            string   `json:"addr" yaml:"addr"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type RedisConfig struct {
	// URL takes precedence over Addr when set (redis:// or rediss://).
	URL         string   `json:"url" yaml:"url"`
	Addr        string   `json:"addr" yaml:"addr"`
	Password    string   `json:"password" yaml:"password"`
	DB          int      `json:"db" yaml:"db"`
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

type StorageConfig struct {
	ListCap     int      `json:"list_cap" yaml:"list_cap"`
	ListTTL     Duration `json:"list_ttl" yaml:"list_ttl"`
	PartialTTL  Duration `json:"partial_ttl" yaml:"partial_ttl"`
	EventLogCap int      `json:"event_log_cap" yaml:"event_log_cap"`
}

type StageConfig struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// RateLimit caps job starts per second; 0 disables the limiter.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst     int     `json:"burst" yaml:"burst"`
}

type PipelineConfig struct {
	Interaction   StageConfig `json:"interaction" yaml:"interaction"`
	Execution     StageConfig `json:"execution" yaml:"execution"`
	Visualization StageConfig `json:"visualization" yaml:"visualization"`

	MaxAttempts   int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff       Duration `json:"backoff" yaml:"backoff"`
	JobTimeout    Duration `json:"job_timeout" yaml:"job_timeout"`
	RenderTimeout Duration `json:"render_timeout" yaml:"render_timeout"`
	PollInterval  Duration `json:"poll_interval" yaml:"poll_interval"`

	CompletedRetention Duration `json:"completed_retention" yaml:"completed_retention"`
	FailedRetention    Duration `json:"failed_retention" yaml:"failed_retention"`
	SweepInterval      Duration `json:"sweep_interval" yaml:"sweep_interval"`

	AllowedEventTypes []string `json:"allowed_event_types" yaml:"allowed_event_types"`
	MaxQueries        int      `json:"max_queries" yaml:"max_queries"`
	RecentActions     int      `json:"recent_actions" yaml:"recent_actions"`
	PartialUpdates    bool     `json:"partial_updates" yaml:"partial_updates"`
}

type OpenAIConfig struct {
	APIKey     string   `json:"api_key" yaml:"api_key"`
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	Model      string   `json:"model" yaml:"model"`
	Timeout    Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries"`
}

type FinDataConfig struct {
	BaseURL string   `json:"base_url" yaml:"base_url"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

type NewsConfig struct {
	BaseURL string   `json:"base_url" yaml:"base_url"`
	APIKey  string   `json:"api_key" yaml:"api_key"`
	Limit   int      `json:"limit" yaml:"limit"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

type RendererConfig struct {
	// Mode is "llm" or "http".
	Mode    string        `json:"mode" yaml:"mode"`
	URL     string        `json:"url" yaml:"url"`
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32   `json:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         Duration `json:"open_timeout" yaml:"open_timeout"`
	HalfOpenRequests    uint32   `json:"half_open_requests" yaml:"half_open_requests"`
}

type DatabaseConfig struct {
	// Driver is "postgres", "sqlite" or empty (failure ledger disabled).
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type TelemetryConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	Version        string  `json:"version" yaml:"version"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled"`
	SampleRatio    float64 `json:"sample_ratio" yaml:"sample_ratio"`
	// OTLPEndpoint empty means spans go to stdout.
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure" yaml:"otlp_insecure"`
	// QueueScrapeInterval is how often queue depths are sampled into gauges.
	QueueScrapeInterval Duration `json:"queue_scrape_interval" yaml:"queue_scrape_interval"`
}

func Default() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr: ":8080",
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:5173",
				"http://127.0.0.1:5173",
			},
			ShutdownTimeout: D(15 * time.Second),
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: D(5 * time.Second),
		},
		Storage: StorageConfig{
			ListCap:     20,
			ListTTL:     D(time.Hour),
			PartialTTL:  D(5 * time.Minute),
			EventLogCap: 50,
		},
		Pipeline: PipelineConfig{
			Interaction:        StageConfig{Concurrency: 4},
			Execution:          StageConfig{Concurrency: 4},
			Visualization:      StageConfig{Concurrency: 2, RateLimit: 5, Burst: 2},
			MaxAttempts:        3,
			Backoff:            D(time.Second),
			JobTimeout:         D(60 * time.Second),
			RenderTimeout:      D(45 * time.Second),
			PollInterval:       D(500 * time.Millisecond),
			CompletedRetention: D(time.Hour),
			FailedRetention:    D(2 * time.Hour),
			SweepInterval:      D(time.Hour),
			AllowedEventTypes:  []string{"click"},
			MaxQueries:         3,
			RecentActions:      5,
			PartialUpdates:     true,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com",
			Model:      "gpt-4o-mini",
			Timeout:    D(60 * time.Second),
			MaxRetries: 2,
		},
		FinData: FinDataConfig{
			Timeout: D(30 * time.Second),
		},
		News: NewsConfig{
			BaseURL: "https://api.firecrawl.dev",
			Limit:   5,
			Timeout: D(30 * time.Second),
		},
		Renderer: RendererConfig{
			Mode: "llm",
			Breaker: BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         D(30 * time.Second),
				HalfOpenRequests:    1,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName:         "vizflow",
			MetricsEnabled:      true,
			SampleRatio:         0.1,
			QueueScrapeInterval: D(10 * time.Second),
		},
	}
}
