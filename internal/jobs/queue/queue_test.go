package queue

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, name string) (*Queue, *store.Memory, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	st := store.NewMemory(store.WithClock(clk.Now))
	q := New(name, st, logger.Nop(), Options{
		MaxAttempts: 3,
		Backoff:     time.Second,
		Now:         clk.Now,
	})
	return q, st, clk
}

type payload struct {
	N int `json:"n"`
}

func TestClaimIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, "interaction-query")

	for i := 1; i <= 3; i++ {
		if _, err := q.Enqueue(ctx, "u1", payload{N: i}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	for want := 1; want <= 3; want++ {
		job, err := q.Claim(ctx)
		if err != nil || job == nil {
			t.Fatalf("Claim: job=%v err=%v", job, err)
		}
		var p payload
		if err := job.Decode(&p); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.N != want {
			t.Fatalf("order: got=%d want=%d", p.N, want)
		}
		if job.Attempts != 1 || job.State != StateActive {
			t.Fatalf("claimed job: attempts=%d state=%s", job.Attempts, job.State)
		}
	}
	if job, err := q.Claim(ctx); job != nil || err != nil {
		t.Fatalf("empty claim: job=%v err=%v", job, err)
	}
}

func TestEnqueueOnceSkipsStoredID(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, "query-execution")

	first, created, err := q.EnqueueOnce(ctx, "src-1/0", "u1", payload{N: 1})
	if err != nil || !created {
		t.Fatalf("first EnqueueOnce: created=%v err=%v", created, err)
	}
	again, created, err := q.EnqueueOnce(ctx, "src-1/0", "u1", payload{N: 2})
	if err != nil || created {
		t.Fatalf("repeat EnqueueOnce: created=%v err=%v", created, err)
	}
	if again.ID != first.ID {
		t.Fatalf("job id: got=%s want=%s", again.ID, first.ID)
	}
	var p payload
	if err := again.Decode(&p); err != nil || p.N != 1 {
		t.Fatalf("stored payload: got=%d err=%v want=1", p.N, err)
	}
	c, _ := q.Counts(ctx)
	if c.Waiting != 1 {
		t.Fatalf("waiting: got=%d want=1", c.Waiting)
	}
}

func TestCompleteMovesToCompleted(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, "visualization")
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	job, _ := q.Claim(ctx)

	if err := q.Complete(ctx, job); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	c, _ := q.Counts(ctx)
	if c.Active != 0 || c.Completed != 1 {
		t.Fatalf("counts: %+v", c)
	}
	if err := q.Complete(ctx, job); !errors.Is(err, ErrJobRemoved) {
		t.Fatalf("double complete: want ErrJobRemoved, got %v", err)
	}
}

func TestFailRetriesWithExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	q, _, clk := newTestQueue(t, "query-execution")
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	boom := errors.New("tool down")

	wantDelays := []time.Duration{time.Second, 2 * time.Second}
	for i, want := range wantDelays {
		job, err := q.Claim(ctx)
		if err != nil || job == nil {
			t.Fatalf("attempt %d claim: job=%v err=%v", i+1, job, err)
		}
		out, err := q.Fail(ctx, job, boom)
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if !out.Retrying || out.Final || out.Delay != want || out.Attempt != i+1 {
			t.Fatalf("attempt %d outcome: %+v", i+1, out)
		}

		if n, _ := q.PromoteDue(ctx); n != 0 {
			t.Fatalf("promoted before due: %d", n)
		}
		clk.Advance(want)
		if n, _ := q.PromoteDue(ctx); n != 1 {
			t.Fatalf("promote after %s: got=%d want=1", want, n)
		}
	}

	job, _ := q.Claim(ctx)
	if job.Attempts != 3 {
		t.Fatalf("attempts: got=%d want=3", job.Attempts)
	}
	out, err := q.Fail(ctx, job, boom)
	if err != nil {
		t.Fatalf("final Fail: %v", err)
	}
	if !out.Final || out.Retrying {
		t.Fatalf("final outcome: %+v", out)
	}
	c, _ := q.Counts(ctx)
	if c.Failed != 1 || c.Delayed != 0 || c.Waiting != 0 || c.Active != 0 {
		t.Fatalf("counts: %+v", c)
	}
	failed, _ := q.List(ctx, StateFailed, 10)
	if len(failed) != 1 || failed[0].LastError != "tool down" {
		t.Fatalf("failed list: %+v", failed)
	}
}

func TestRemoveByUserCoversAllPendingStates(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, "visualization")

	_, _ = q.Enqueue(ctx, "u1", payload{N: 1}) // becomes delayed
	_, _ = q.Enqueue(ctx, "u1", payload{N: 2}) // becomes active
	_, _ = q.Enqueue(ctx, "u2", payload{N: 3}) // other user, waiting
	_, _ = q.Enqueue(ctx, "u1", payload{N: 4}) // waiting

	first, _ := q.Claim(ctx)
	_, _ = q.Fail(ctx, first, errors.New("x"))
	active, _ := q.Claim(ctx)

	removed, activeIDs, err := q.RemoveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RemoveByUser: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("removed: got=%d want=3", len(removed))
	}
	if len(activeIDs) != 1 || activeIDs[0] != active.ID {
		t.Fatalf("active ids: got=%v want=[%s]", activeIDs, active.ID)
	}

	if err := q.Complete(ctx, active); !errors.Is(err, ErrJobRemoved) {
		t.Fatalf("complete after cancel: want ErrJobRemoved, got %v", err)
	}
	if _, err := q.Fail(ctx, active, errors.New("late")); !errors.Is(err, ErrJobRemoved) {
		t.Fatalf("fail after cancel: want ErrJobRemoved, got %v", err)
	}

	c, _ := q.Counts(ctx)
	if c.Waiting != 1 || c.Active != 0 || c.Delayed != 0 {
		t.Fatalf("counts after cancel: %+v", c)
	}
	left, _ := q.Claim(ctx)
	if left == nil || left.UserID != "u2" {
		t.Fatalf("remaining job: %+v", left)
	}
}

// promoteDuringScan runs the delayed-job promoter right after the first full
// scan of the delayed set, the way a concurrent worker would.
type promoteDuringScan struct {
	store.Store
	q     *Queue
	clk   *clock
	fired bool
}

func (s *promoteDuringScan) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	ids, err := s.Store.ZRangeByScore(ctx, key, min, max, limit)
	if !s.fired && s.q != nil && key == s.q.delayedKey() && math.IsInf(max, 1) {
		s.fired = true
		s.clk.Advance(time.Minute)
		_, _ = s.q.PromoteDue(ctx)
	}
	return ids, err
}

func TestRemoveByUserCatchesJobPromotedMidSweep(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	wrapped := &promoteDuringScan{Store: store.NewMemory(store.WithClock(clk.Now)), clk: clk}
	q := New("visualization", wrapped, logger.Nop(), Options{MaxAttempts: 3, Backoff: time.Second, Now: clk.Now})

	job, _ := q.Enqueue(ctx, "u1", payload{N: 1})
	claimed, _ := q.Claim(ctx)
	if out, err := q.Fail(ctx, claimed, errors.New("x")); err != nil || out.Final {
		t.Fatalf("fail: out=%+v err=%v", out, err)
	}
	wrapped.q = q

	removed, _, err := q.RemoveByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RemoveByUser: %v", err)
	}
	if !wrapped.fired {
		t.Fatalf("promoter never ran during the sweep")
	}
	if len(removed) != 1 || removed[0] != job.ID {
		t.Fatalf("removed: got=%v want=[%s]", removed, job.ID)
	}
	c, _ := q.Counts(ctx)
	if c.Waiting != 0 || c.Delayed != 0 || c.Active != 0 {
		t.Fatalf("counts after cancel: %+v", c)
	}
}

func TestPromoteOwnershipIsExclusive(t *testing.T) {
	ctx := context.Background()
	q, st, clk := newTestQueue(t, "interaction-query")
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	job, _ := q.Claim(ctx)
	_, _ = q.Fail(ctx, job, errors.New("x"))
	clk.Advance(time.Second)

	other := New("interaction-query", st, logger.Nop(), Options{Now: clk.Now})
	a, _ := q.PromoteDue(ctx)
	b, _ := other.PromoteDue(ctx)
	if a+b != 1 {
		t.Fatalf("promotions: got=%d want=1", a+b)
	}
	if n, _ := st.LLen(ctx, q.waitKey()); n != 1 {
		t.Fatalf("wait len: got=%d want=1", n)
	}
}

func TestCleanupHonorsRetention(t *testing.T) {
	ctx := context.Background()
	q, st, clk := newTestQueue(t, "visualization")
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	job, _ := q.Claim(ctx)
	_ = q.Complete(ctx, job)

	clk.Advance(30 * time.Minute)
	if n, _ := q.Cleanup(ctx, time.Hour, 2*time.Hour); n != 0 {
		t.Fatalf("early cleanup removed %d", n)
	}
	clk.Advance(31 * time.Minute)
	if n, _ := q.Cleanup(ctx, time.Hour, 2*time.Hour); n != 1 {
		t.Fatalf("cleanup: got=%d want=1", n)
	}
	if _, err := st.Get(ctx, q.jobKey(job.ID)); !errors.Is(err, store.ErrNil) {
		t.Fatalf("job body should be gone, got %v", err)
	}
}

func TestRecoverStalled(t *testing.T) {
	ctx := context.Background()
	q, _, clk := newTestQueue(t, "query-execution")
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	job, _ := q.Claim(ctx)

	if n, _ := q.RecoverStalled(ctx, 2*time.Minute); n != 0 {
		t.Fatalf("fresh job recovered: %d", n)
	}
	clk.Advance(3 * time.Minute)
	if n, _ := q.RecoverStalled(ctx, 2*time.Minute); n != 1 {
		t.Fatalf("stalled: got=%d want=1", n)
	}
	again, _ := q.Claim(ctx)
	if again == nil || again.ID != job.ID || again.Attempts != 2 {
		t.Fatalf("reclaimed: %+v", again)
	}
}

func TestRecoverStalledAfterFinalAttemptFails(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	st := store.NewMemory(store.WithClock(clk.Now))
	q := New("visualization", st, logger.Nop(), Options{MaxAttempts: 1, Now: clk.Now})
	_, _ = q.Enqueue(ctx, "u1", payload{N: 1})
	if job, _ := q.Claim(ctx); job == nil {
		t.Fatalf("expected claim")
	}

	clk.Advance(time.Hour)
	if n, err := q.RecoverStalled(ctx, time.Minute); err != nil || n != 1 {
		t.Fatalf("RecoverStalled: n=%d err=%v", n, err)
	}
	c, _ := q.Counts(ctx)
	if c.Waiting != 0 || c.Active != 0 || c.Failed != 1 {
		t.Fatalf("counts: %+v", c)
	}
}

func TestBackoffFor(t *testing.T) {
	q, _, _ := newTestQueue(t, "x")
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := q.BackoffFor(attempt); got != want {
			t.Fatalf("attempt %d: got=%s want=%s", attempt, got, want)
		}
	}
}
