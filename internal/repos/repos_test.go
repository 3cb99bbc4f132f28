package repos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*store.Memory, *testClock) {
	clk := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return store.NewMemory(store.WithClock(clk.Now)), clk
}

// queryLister adapts each bounded repo to append and list by query text.
type queryLister struct {
	appendQ func(ctx context.Context, uid, q string) error
	list    func(ctx context.Context, uid string, limit int) ([]string, error)
}

func listers(st store.Store) map[string]queryLister {
	opts := ListOptions{Cap: 20, TTL: time.Hour}
	queries := NewQueryRepo(st, logger.Nop(), opts)
	results := NewResultRepo(st, logger.Nop(), opts)
	visuals := NewVisualizationRepo(st, logger.Nop(), opts, 0)
	return map[string]queryLister{
		"queries": {
			appendQ: func(ctx context.Context, uid, q string) error {
				return queries.Append(ctx, domain.GeneratedQuery{UserID: uid, Query: q})
			},
			list: func(ctx context.Context, uid string, limit int) ([]string, error) {
				got, err := queries.ListByUser(ctx, uid, limit)
				out := make([]string, len(got))
				for i, g := range got {
					out[i] = g.Query
				}
				return out, err
			},
		},
		"results": {
			appendQ: func(ctx context.Context, uid, q string) error {
				return results.Append(ctx, domain.QueryExecutionResult{UserID: uid, Query: q})
			},
			list: func(ctx context.Context, uid string, limit int) ([]string, error) {
				got, err := results.ListByUser(ctx, uid, limit)
				out := make([]string, len(got))
				for i, g := range got {
					out[i] = g.Query
				}
				return out, err
			},
		},
		"visualizations": {
			appendQ: func(ctx context.Context, uid, q string) error {
				return visuals.AppendComplete(ctx, domain.VisualizationRecord{UserID: uid, Query: q})
			},
			list: func(ctx context.Context, uid string, limit int) ([]string, error) {
				got, err := visuals.ListByUser(ctx, uid, limit)
				out := make([]string, len(got))
				for i, g := range got {
					out[i] = g.Query
				}
				return out, err
			},
		},
	}
}

func TestBoundedReposKeepNewestTwenty(t *testing.T) {
	st, _ := newTestStore()
	for name, l := range listers(st) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 25; i++ {
				if err := l.appendQ(ctx, "u1", fmt.Sprintf("q%d", i)); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			got, err := l.list(ctx, "u1", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 20 {
				t.Fatalf("len: got=%d want=20", len(got))
			}
			if got[0] != "q24" || got[19] != "q5" {
				t.Fatalf("order: first=%s last=%s", got[0], got[19])
			}
			five, _ := l.list(ctx, "u1", 5)
			if len(five) != 5 || five[4] != "q20" {
				t.Fatalf("limit 5: got=%v", five)
			}
		})
	}
}

func TestKeySeparatorInUserIDIsRejected(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	repo := NewVisualizationRepo(st, logger.Nop(), ListOptions{}, 5*time.Minute)

	if err := repo.PutPartial(ctx, domain.VisualizationRecord{UserID: "bob", StepNumber: 1, Query: "bob step"}); err != nil {
		t.Fatalf("PutPartial(bob): %v", err)
	}
	err := repo.AppendComplete(ctx, domain.VisualizationRecord{UserID: "partial:bob:1", Query: "other"})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("AppendComplete: got=%v want=ErrInvalidArgument", err)
	}
	if _, err := repo.ListByUser(ctx, "partial:bob:1", 0); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("ListByUser: got=%v want=ErrInvalidArgument", err)
	}
	if _, err := repo.GetPartial(ctx, "bob:x", 1); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("GetPartial: got=%v want=ErrInvalidArgument", err)
	}

	rec, err := repo.GetPartial(ctx, "bob", 1)
	if err != nil || rec.Query != "bob step" {
		t.Fatalf("bob partial: rec=%+v err=%v", rec, err)
	}
	for name, l := range listers(st) {
		if err := l.appendQ(ctx, "a:b", "q"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("%s append: got=%v want=ErrInvalidArgument", name, err)
		}
	}
}

func TestListsExpireAfterTTL(t *testing.T) {
	ctx := context.Background()
	st, clk := newTestStore()
	repo := NewQueryRepo(st, logger.Nop(), ListOptions{Cap: 20, TTL: time.Hour})

	_ = repo.Append(ctx, domain.GeneratedQuery{UserID: "u1", Query: "a"})
	clk.Advance(30 * time.Minute)
	_ = repo.Append(ctx, domain.GeneratedQuery{UserID: "u1", Query: "b"})
	clk.Advance(45 * time.Minute)

	got, _ := repo.ListByUser(ctx, "u1", 0)
	if len(got) != 2 {
		t.Fatalf("ttl should refresh on write: got=%d want=2", len(got))
	}
	clk.Advance(time.Hour)
	got, _ = repo.ListByUser(ctx, "u1", 0)
	if len(got) != 0 {
		t.Fatalf("after expiry: got=%d want=0", len(got))
	}
}

func TestUsersDoNotLeak(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	repo := NewVisualizationRepo(st, logger.Nop(), ListOptions{}, 0)

	_ = repo.AppendComplete(ctx, domain.VisualizationRecord{UserID: "alice", Query: "a"})
	_ = repo.AppendComplete(ctx, domain.VisualizationRecord{UserID: "bob", Query: "b"})

	got, _ := repo.ListByUser(ctx, "alice", 0)
	if len(got) != 1 || got[0].UserID != "alice" {
		t.Fatalf("alice: got=%+v", got)
	}
}

func TestPartialVisualizationReplaceAndExpire(t *testing.T) {
	ctx := context.Background()
	st, clk := newTestStore()
	repo := NewVisualizationRepo(st, logger.Nop(), ListOptions{}, 5*time.Minute)

	if _, err := repo.GetPartial(ctx, "u1", 1); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing partial: want ErrNotFound, got %v", err)
	}

	_ = repo.Save(ctx, domain.VisualizationRecord{UserID: "u1", Query: "first", IsPartial: true, StepNumber: 1})
	_ = repo.Save(ctx, domain.VisualizationRecord{UserID: "u1", Query: "second", IsPartial: true, StepNumber: 1})

	rec, err := repo.GetPartial(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("GetPartial: %v", err)
	}
	if rec.Query != "second" || !rec.IsPartial || rec.StepNumber != 1 {
		t.Fatalf("partial: got=%+v", rec)
	}
	if hist, _ := repo.ListByUser(ctx, "u1", 0); len(hist) != 0 {
		t.Fatalf("partials must not enter history: got=%d", len(hist))
	}

	ttl, err := st.TTL(ctx, PartialKey("u1", 1))
	if err != nil || ttl != 5*time.Minute {
		t.Fatalf("partial ttl: got=%s err=%v", ttl, err)
	}

	clk.Advance(5 * time.Minute)
	if _, err := repo.GetPartial(ctx, "u1", 1); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expired partial: want ErrNotFound, got %v", err)
	}
}

func TestCompleteSaveClearsPartialFlags(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	repo := NewVisualizationRepo(st, logger.Nop(), ListOptions{}, 0)

	_ = repo.AppendComplete(ctx, domain.VisualizationRecord{UserID: "u1", StepNumber: 3})
	got, _ := repo.ListByUser(ctx, "u1", 0)
	if len(got) != 1 || got[0].IsPartial || got[0].StepNumber != 0 {
		t.Fatalf("complete: got=%+v", got)
	}
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	repo := NewUserEventRepo(st, logger.Nop(), ListOptions{Cap: 50, TTL: time.Hour})

	_ = repo.Append(ctx, domain.UserEvent{UserID: "u1", EventType: domain.EventClick})
	_, _ = st.LPush(ctx, EventsKey("u1"), "{not json")

	got, err := repo.ListByUser(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].EventType != domain.EventClick {
		t.Fatalf("got=%+v", got)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore()
	repo := NewQueryRepo(st, logger.Nop(), ListOptions{})
	boom := errors.New("redis down")
	st.SetFailure(boom)

	if err := repo.Append(ctx, domain.GeneratedQuery{UserID: "u1"}); !errors.Is(err, boom) {
		t.Fatalf("Append: want injected error, got %v", err)
	}
	if _, err := repo.ListByUser(ctx, "u1", 0); !errors.Is(err, boom) {
		t.Fatalf("ListByUser: want injected error, got %v", err)
	}
}
