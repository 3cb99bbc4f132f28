package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/vizflow-backend/internal/domain"
)

// Handler runs one stage. A returned error counts as a failed attempt.
type Handler interface {
	Stage() domain.Stage
	Run(jc *Context) error
}

// FailureObserver is implemented by handlers that must react to a failed
// attempt, including timeouts and panics they never saw.
type FailureObserver interface {
	OnFailure(jc *Context, err error, final bool)
}

// Enqueuer schedules work on a stage. The coordinator implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, stage domain.Stage, userID string, payload any) (string, error)
}

// KeyedEnqueuer schedules work at most once per key. A producer that may be
// retried uses it so a second attempt does not duplicate jobs.
type KeyedEnqueuer interface {
	EnqueueKeyed(ctx context.Context, stage domain.Stage, userID, key string, payload any) (string, error)
}

// ErrNoHandler is the attempt error when a stage has no registered handler.
var ErrNoHandler = errors.New("no handler registered")

// Registry maps each stage to its handler. Workers resolve the handler per
// job through it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Stage]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.Stage]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	s := h.Stage()
	if !s.Valid() {
		return fmt.Errorf("handler stage %q is not a pipeline stage", s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[s]; exists {
		return fmt.Errorf("handler already registered for stage=%s", s)
	}
	r.handlers[s] = h
	return nil
}

func (r *Registry) Get(stage domain.Stage) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}
