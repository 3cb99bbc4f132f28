package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// ErrRejected is returned while the breaker is open or saturated half-open.
var ErrRejected = errors.New("renderer: circuit open")

type breakerRenderer struct {
	next Renderer
	cb   *gobreaker.CircuitBreaker[json.RawMessage]
	log  *logger.Logger
}

// WithBreaker trips after cfg.ConsecutiveFailures failed renders and rejects
// calls until cfg.OpenTimeout has passed. Caller cancellation never counts as
// a renderer failure.
func WithBreaker(next Renderer, name string, cfg config.BreakerConfig, metrics *observability.Metrics, baseLog *logger.Logger) Renderer {
	log := baseLog.With("component", "RendererBreaker", "breaker", name)
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	openTimeout := cfg.OpenTimeout.Duration
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	metrics.SetBreakerState(name, int(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Breaker state change", "from", from.String(), "to", to.String())
			metrics.SetBreakerState(name, int(to))
		},
	})
	return &breakerRenderer{next: next, cb: cb, log: log}
}

func (b *breakerRenderer) Render(ctx context.Context, req Request) (json.RawMessage, error) {
	out, err := b.cb.Execute(func() (json.RawMessage, error) {
		return b.next.Render(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrRejected, err)
	}
	return out, err
}
