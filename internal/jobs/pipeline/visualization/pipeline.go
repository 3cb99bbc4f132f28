package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/vizflow-backend/internal/clients/renderer"
	"github.com/yungbote/vizflow-backend/internal/domain"
	jobrt "github.com/yungbote/vizflow-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	_, err := p.Process(jc)
	return err
}

// Process renders, stores and announces one visualization. Storage happens
// before the notification so a listener can always read what it was told
// about.
func (p *Pipeline) Process(jc *jobrt.Context) (*domain.VisualizationRecord, error) {
	if jc == nil || jc.Job == nil {
		return nil, nil
	}
	var vj domain.VisualizationJob
	if err := jc.Decode(&vj); err != nil {
		return nil, err
	}
	res := vj.Result
	if strings.TrimSpace(res.UserID) == "" {
		return nil, fmt.Errorf("visualization without userId")
	}
	toolResults := res.Result.Normalize().ToolResults

	cards, err := p.render(jc.Ctx, renderer.Request{
		Query:       res.Query,
		ToolResults: toolResults,
		IsPartial:   vj.IsPartial,
	})
	if err != nil {
		return nil, err
	}

	rec := domain.VisualizationRecord{
		UserID:        res.UserID,
		Query:         res.Query,
		Text:          res.Result.Text,
		ToolResults:   toolResults,
		AdaptiveCards: cards,
		Timestamp:     domain.NowMillis(),
		IsPartial:     vj.IsPartial,
		StepNumber:    vj.StepNumber,
	}
	if err := p.visuals.Save(jc.Ctx, rec); err != nil {
		return nil, fmt.Errorf("persist visualization: %w", err)
	}

	if p.notifier != nil {
		var perr error
		if rec.IsPartial {
			perr = p.notifier.PublishPartial(jc.Ctx, rec)
		} else {
			perr = p.notifier.PublishComplete(jc.Ctx, rec)
		}
		if perr != nil {
			jc.Log.Warn("Visualization notification not published", "partial", rec.IsPartial, "error", perr)
		}
	}
	jc.Log.Info("Visualization stored", "partial", rec.IsPartial, "step", rec.StepNumber)
	return &rec, nil
}

// render bounds the renderer by renderTimeout so a slow renderer fails before
// the job itself times out.
func (p *Pipeline) render(ctx context.Context, req renderer.Request) (json.RawMessage, error) {
	rctx, cancel := context.WithTimeout(ctx, p.renderTimeout)
	defer cancel()
	cards, err := p.renderer.Render(rctx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("render timed out after %s: %w", p.renderTimeout, err)
		}
		return nil, fmt.Errorf("render: %w", err)
	}
	if len(strings.TrimSpace(string(cards))) == 0 || string(cards) == "null" {
		cards = json.RawMessage(`[]`)
	}
	return cards, nil
}

// OnFailure tells the UI that a partial step it may be waiting on failed.
// It runs for every failed partial attempt, including timeouts and panics.
func (p *Pipeline) OnFailure(jc *jobrt.Context, cause error, final bool) {
	if p.notifier == nil || jc == nil || jc.Job == nil {
		return
	}
	var vj domain.VisualizationJob
	if err := jc.Decode(&vj); err != nil || !vj.IsPartial {
		return
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(jc.Ctx), 5*time.Second)
	defer cancel()
	notice := domain.PartialErrorNotice{
		UserID:     vj.Result.UserID,
		Query:      vj.Result.Query,
		StepNumber: vj.StepNumber,
		Error:      msg,
		Attempt:    jc.Attempt(),
		Final:      final,
		Timestamp:  domain.NowMillis(),
	}
	if err := p.notifier.PublishPartialError(ctx, notice); err != nil {
		jc.Log.Warn("Partial error notification not published", "error", err)
	}
}

var _ jobrt.FailureObserver = (*Pipeline)(nil)
