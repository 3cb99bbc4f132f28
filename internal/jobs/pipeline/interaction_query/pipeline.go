package interaction_query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/vizflow-backend/internal/domain"
	jobrt "github.com/yungbote/vizflow-backend/internal/jobs/runtime"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	_, err := p.Process(jc)
	return err
}

// Process describes the event, decides whether it deserves research and, if
// so, persists and enqueues up to three queries. It returns the query texts.
// A retried job reuses the queries its earlier attempt stored and enqueues
// each one at most once.
func (p *Pipeline) Process(jc *jobrt.Context) ([]string, error) {
	if jc == nil || jc.Job == nil {
		return nil, nil
	}
	var ev domain.UserEvent
	if err := jc.Decode(&ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return nil, fmt.Errorf("event without userId")
	}
	batch := p.priorQueries(jc, ev.UserID)
	if len(batch) > 0 {
		jc.Log.Info("Reusing queries from earlier attempt", "count", len(batch), "attempt", jc.Job.Attempts)
	} else {
		var err error
		if batch, err = p.generate(jc, ev); err != nil {
			return nil, err
		}
	}

	if len(batch) > 0 && jc.Enqueuer == nil {
		return nil, fmt.Errorf("no enqueuer for %s", domain.StageExecution)
	}
	out := make([]string, 0, len(batch))
	for _, gq := range batch {
		if err := p.enqueue(jc, gq); err != nil {
			return out, fmt.Errorf("enqueue query: %w", err)
		}
		out = append(out, gq.Query)
	}
	jc.Log.Info("Generated queries", "count", len(out))
	return out, nil
}

// generate produces and stores a fresh batch. Every query is stored before
// any is enqueued so a retry can recover the whole batch.
func (p *Pipeline) generate(jc *jobrt.Context, ev domain.UserEvent) ([]domain.GeneratedQuery, error) {
	ev.Description = p.describer.Describe(jc.Ctx, ev)
	if !p.eligible(ev) {
		jc.Log.Debug("Event not eligible for queries", "event_type", ev.EventType)
		return nil, nil
	}

	recent := p.recentQueries(jc, ev.UserID)
	texts := p.generator.Generate(jc.Ctx, ev.Description, recent)

	batch := make([]domain.GeneratedQuery, 0, len(texts))
	for i, text := range texts {
		gq := domain.GeneratedQuery{
			UserID: ev.UserID,
			Query:  text,
			Context: domain.QueryContext{
				RecentActions: recent,
				CurrentAction: ev.Description,
			},
			Timestamp:     domain.NowMillis(),
			SourceEventID: jc.Job.ID,
			SourceIndex:   i,
		}
		if err := p.queries.Append(jc.Ctx, gq); err != nil {
			return nil, fmt.Errorf("persist query: %w", err)
		}
		batch = append(batch, gq)
	}
	return batch, nil
}

// priorQueries returns what an earlier attempt of this job stored, ordered by
// SourceIndex. First attempts skip the lookup.
func (p *Pipeline) priorQueries(jc *jobrt.Context, userID string) []domain.GeneratedQuery {
	if jc.Job.Attempts <= 1 {
		return nil
	}
	stored, err := p.queries.ListByUser(jc.Ctx, userID, 0)
	if err != nil {
		jc.Log.Warn("Earlier queries unavailable", "error", err)
		return nil
	}
	var out []domain.GeneratedQuery
	for _, q := range stored {
		if q.SourceEventID == jc.Job.ID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceIndex < out[j].SourceIndex })
	return out
}

// enqueue keys the execution job on the source job and query position when
// the enqueuer supports it.
func (p *Pipeline) enqueue(jc *jobrt.Context, gq domain.GeneratedQuery) error {
	if keyed, ok := jc.Enqueuer.(jobrt.KeyedEnqueuer); ok {
		key := fmt.Sprintf("%s/%d", gq.SourceEventID, gq.SourceIndex)
		_, err := keyed.EnqueueKeyed(jc.Ctx, domain.StageExecution, gq.UserID, key, gq)
		return err
	}
	_, err := jc.Enqueuer.Enqueue(jc.Ctx, domain.StageExecution, gq.UserID, gq)
	return err
}

func (p *Pipeline) eligible(ev domain.UserEvent) bool {
	return p.allowed[ev.EventType] && strings.TrimSpace(ev.Description) != ""
}

// recentQueries returns the queries behind the user's latest results. A
// store failure only costs context.
func (p *Pipeline) recentQueries(jc *jobrt.Context, userID string) []string {
	results, err := p.results.ListByUser(jc.Ctx, userID, p.recentActions)
	if err != nil {
		jc.Log.Warn("Recent results unavailable", "error", err)
		return []string{}
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		if q := strings.TrimSpace(r.Query); q != "" {
			out = append(out, q)
		}
	}
	return out
}
