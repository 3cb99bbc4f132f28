package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so callers
// never branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsEnqueued *prometheus.CounterVec
	jobsCanceled *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec

	notifications *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics set once. Returns nil when disabled.
func Init(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
	})
	return instance
}

// New builds an isolated metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vf_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vf_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_jobs_total",
			Help: "Job attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vf_job_duration_seconds",
			Help:    "Job attempt latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60, 120},
		}, []string{"stage", "outcome"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_jobs_enqueued_total",
			Help: "Jobs enqueued by stage.",
		}, []string{"stage"}),
		jobsCanceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_jobs_canceled_total",
			Help: "Jobs removed by user cancellation, by stage.",
		}, []string{"stage"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vf_queue_depth",
			Help: "Jobs per stage and state.",
		}, []string{"stage", "state"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_notifications_total",
			Help: "Notifications published by channel and status.",
		}, []string{"channel", "status"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_llm_requests_total",
			Help: "Model calls by model/operation/status.",
		}, []string{"model", "operation", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vf_llm_request_duration_seconds",
			Help:    "Model call latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"model", "operation"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vf_tool_calls_total",
			Help: "Financial tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vf_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vf_redis_up",
			Help: "1 when the last Redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vf_redis_ping_seconds",
			Help: "Latency of the last Redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobsTotal, m.jobDuration, m.jobsEnqueued, m.jobsCanceled, m.queueDepth,
		m.notifications, m.llmRequests, m.llmLatency, m.toolCalls, m.breakerState,
		m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format. A nil receiver answers 503.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

// CountAPI records a request without timing it.
func (m *Metrics) CountAPI(method, route, status string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveJob records one attempt. outcome is completed, retrying, failed,
// removed or timeout.
func (m *Metrics) ObserveJob(stage, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(stage, outcome).Inc()
	m.jobDuration.WithLabelValues(stage, outcome).Observe(dur.Seconds())
}

func (m *Metrics) IncEnqueued(stage string) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddCanceled(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsCanceled.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) SetQueueDepth(stage, state string, n int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(stage, state).Set(float64(n))
}

func (m *Metrics) IncNotification(channel string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, operation string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmRequests.WithLabelValues(model, operation, status).Inc()
	m.llmLatency.WithLabelValues(model, operation).Observe(dur.Seconds())
}

func (m *Metrics) IncToolCall(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// QueueCounter is implemented by the coordinator.
type QueueCounter interface {
	DepthSnapshot(ctx context.Context) (map[string]map[string]int64, error)
}

// Pinger is the slice of the store the Redis collector needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StartCollectors samples queue depth and Redis health until ctx ends.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, interval time.Duration, queues QueueCounter, redis Pinger) {
	if m == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectOnce(ctx, log, queues, redis)
			}
		}
	}()
}

func (m *Metrics) collectOnce(ctx context.Context, log *logger.Logger, queues QueueCounter, redis Pinger) {
	if redis != nil {
		start := time.Now()
		if err := redis.Ping(ctx); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
		} else {
			m.redisUp.Set(1)
			m.redisPing.Set(time.Since(start).Seconds())
		}
	}
	if queues != nil {
		snap, err := queues.DepthSnapshot(ctx)
		if err != nil {
			if log != nil {
				log.Warn("metrics: queue depth sample failed", "error", err)
			}
			return
		}
		for stage, states := range snap {
			for state, n := range states {
				m.SetQueueDepth(stage, state, n)
			}
		}
	}
}
