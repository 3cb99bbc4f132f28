package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate(default): %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("max attempts: got=%d want=3", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Storage.ListCap != 20 {
		t.Fatalf("list cap: got=%d want=20", cfg.Storage.ListCap)
	}
}

func TestValidateRejectsRenderTimeoutNotShorterThanJob(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.JobTimeout = D(30 * time.Second)
	cfg.Pipeline.RenderTimeout = D(30 * time.Second)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for render_timeout == job_timeout")
	}
}

func TestValidateRejectsUnknownEventType(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.AllowedEventTypes = []string{"click", "scroll"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestValidateHTTPRendererNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Renderer.Mode = "http"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for http renderer without url")
	}
}

func TestLoadYAMLFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
pipeline:
  max_attempts: 5
  backoff: 250ms
  job_timeout: 20s
  render_timeout: 15s
  interaction:
    rate_limit: 4
  visualization:
    concurrency: 3
    rate_limit: 2
    burst: 0
storage:
  partial_ttl: 2m
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIZ_CONFIG_PATH", path)
	t.Setenv("PORT", "9090")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("PIPELINE_ALLOWED_EVENT_TYPES", "click, zoom")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 5 {
		t.Fatalf("max attempts: got=%d want=5", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.Backoff.Duration != 250*time.Millisecond {
		t.Fatalf("backoff: got=%s want=250ms", cfg.Pipeline.Backoff.Duration)
	}
	if cfg.Storage.PartialTTL.Duration != 2*time.Minute {
		t.Fatalf("partial ttl: got=%s want=2m", cfg.Storage.PartialTTL.Duration)
	}
	if cfg.Storage.ListCap != 20 {
		t.Fatalf("list cap should keep default: got=%d", cfg.Storage.ListCap)
	}
	if cfg.Pipeline.Visualization.Burst != 1 {
		t.Fatalf("zero burst with a rate limit: got=%d want=1", cfg.Pipeline.Visualization.Burst)
	}
	if cfg.Pipeline.Interaction.Burst != 1 || cfg.Pipeline.Interaction.Concurrency != 4 {
		t.Fatalf("interaction stage: got=%+v want burst=1 concurrency=4", cfg.Pipeline.Interaction)
	}
	if cfg.Pipeline.Execution.Burst != 0 {
		t.Fatalf("unlimited stage burst: got=%d want=0", cfg.Pipeline.Execution.Burst)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr: got=%q want=:9090", cfg.HTTP.Addr)
	}
	if cfg.OpenAI.Model != "gpt-test" {
		t.Fatalf("model: got=%q", cfg.OpenAI.Model)
	}
	if len(cfg.Pipeline.AllowedEventTypes) != 2 || cfg.Pipeline.AllowedEventTypes[1] != "zoom" {
		t.Fatalf("allowed types: got=%v", cfg.Pipeline.AllowedEventTypes)
	}
}

func TestDurationUnmarshalJSON(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1500ms"`)); err != nil {
		t.Fatalf("string: %v", err)
	}
	if d.Duration != 1500*time.Millisecond {
		t.Fatalf("got=%s want=1.5s", d.Duration)
	}
	if err := d.UnmarshalJSON([]byte(`2000000000`)); err != nil {
		t.Fatalf("int: %v", err)
	}
	if d.Duration != 2*time.Second {
		t.Fatalf("got=%s want=2s", d.Duration)
	}
}
