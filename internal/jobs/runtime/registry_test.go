package runtime

import (
	"testing"

	"github.com/yungbote/vizflow-backend/internal/domain"
)

type stubHandler struct{ stage domain.Stage }

func (h stubHandler) Stage() domain.Stage   { return h.stage }
func (h stubHandler) Run(jc *Context) error { return nil }

func TestRegistryRejectsDuplicatesAndUnknownStages(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubHandler{stage: domain.StageExecution}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubHandler{stage: domain.StageExecution}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := r.Register(stubHandler{stage: "bogus"}); err == nil {
		t.Fatalf("expected unknown stage error")
	}
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
	if _, ok := r.Get(domain.StageExecution); !ok {
		t.Fatalf("registered handler not found")
	}
	if _, ok := r.Get(domain.StageVisualization); ok {
		t.Fatalf("unexpected handler for visualization")
	}
}
