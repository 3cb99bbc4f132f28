// Package queue is a durable per-stage job queue on top of store primitives.
//
// Layout for a queue named N:
//
//	vizflow:queue:N:wait       list, ids; LPush to enqueue, RPopLPush to claim (FIFO)
//	vizflow:queue:N:active     list, ids currently claimed
//	vizflow:queue:N:delayed    zset, id -> unix millis when it may run again
//	vizflow:queue:N:completed  zset, id -> finish millis
//	vizflow:queue:N:failed     zset, id -> finish millis
//	vizflow:queue:N:job:<id>   string, Job JSON
//
// A job removed by cancellation loses its job key and its list entry; every
// later transition notices the missing entry and returns ErrJobRemoved.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

var (
	// ErrJobRemoved is returned when a transition targets a job that was
	// cancelled or swept while it ran.
	ErrJobRemoved = errors.New("queue: job removed")
)

const KeyPrefix = "vizflow:queue:"

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var States = []State{StateWaiting, StateActive, StateDelayed, StateCompleted, StateFailed}

type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	UserID      string          `json:"userId"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   int64           `json:"createdAt"`
	ClaimedAt   int64           `json:"claimedAt,omitempty"`
	FinishedAt  int64           `json:"finishedAt,omitempty"`
	State       State           `json:"state"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if j == nil || len(j.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(j.Payload, v)
}

// FailOutcome reports what Fail did with the job.
type FailOutcome struct {
	Retrying bool
	Delay    time.Duration
	Attempt  int
	Final    bool
}

type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type Options struct {
	MaxAttempts int
	// Backoff is the first retry delay; attempt n waits Backoff*2^(n-1).
	Backoff time.Duration
	// CompletedTTL and FailedTTL bound how long finished job bodies live.
	CompletedTTL time.Duration
	FailedTTL    time.Duration
	Now          func() time.Time
}

type Queue struct {
	name string
	st   store.Store
	log  *logger.Logger
	opts Options
}

func New(name string, st store.Store, baseLog *logger.Logger, opts Options) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.CompletedTTL <= 0 {
		opts.CompletedTTL = time.Hour
	}
	if opts.FailedTTL <= 0 {
		opts.FailedTTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		name: name,
		st:   st,
		log:  baseLog.With("component", "Queue", "queue", name),
		opts: opts,
	}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) key(part string) string  { return KeyPrefix + q.name + ":" + part }
func (q *Queue) jobKey(id string) string { return q.key("job:" + id) }
func (q *Queue) waitKey() string         { return q.key("wait") }
func (q *Queue) activeKey() string       { return q.key("active") }
func (q *Queue) delayedKey() string      { return q.key("delayed") }
func (q *Queue) completedKey() string    { return q.key("completed") }
func (q *Queue) failedKey() string       { return q.key("failed") }
func (q *Queue) nowMillis() int64        { return q.opts.Now().UnixMilli() }
func millisScore(ms int64) float64       { return float64(ms) }
func (q *Queue) cutoff(age time.Duration) float64 {
	return millisScore(q.opts.Now().Add(-age).UnixMilli())
}

// BackoffFor returns the delay before retry number attempt (1-based).
func (q *Queue) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.opts.Backoff * time.Duration(math.Pow(2, float64(attempt-1)))
}

func (q *Queue) save(ctx context.Context, job *Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return q.st.Set(ctx, q.jobKey(job.ID), string(raw), ttl)
}

// Get loads a job body. Returns ErrJobRemoved when the key is gone.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := q.st.Get(ctx, q.jobKey(id))
	if errors.Is(err, store.ErrNil) {
		return nil, ErrJobRemoved
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Enqueue stores the payload and appends the job to the wait list.
func (q *Queue) Enqueue(ctx context.Context, userID string, payload any) (*Job, error) {
	return q.enqueue(ctx, uuid.NewString(), userID, payload)
}

// EnqueueOnce enqueues under a caller-chosen id. When a job with that id is
// still stored it is returned instead and created is false.
func (q *Queue) EnqueueOnce(ctx context.Context, id, userID string, payload any) (job *Job, created bool, err error) {
	existing, err := q.Get(ctx, id)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrJobRemoved):
		return nil, false, err
	}
	job, err = q.enqueue(ctx, id, userID, payload)
	return job, err == nil, err
}

func (q *Queue) enqueue(ctx context.Context, id, userID string, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := &Job{
		ID:          id,
		Queue:       q.name,
		UserID:      userID,
		Payload:     raw,
		MaxAttempts: q.opts.MaxAttempts,
		CreatedAt:   q.nowMillis(),
		State:       StateWaiting,
	}
	if err := q.save(ctx, job, 0); err != nil {
		return nil, err
	}
	if _, err := q.st.LPush(ctx, q.waitKey(), job.ID); err != nil {
		_, _ = q.st.Del(ctx, q.jobKey(job.ID))
		return nil, fmt.Errorf("lpush wait: %w", err)
	}
	return job, nil
}

// Claim moves the oldest waiting job to active and counts the attempt.
// Returns (nil, nil) when nothing is waiting.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	for {
		id, err := q.st.RPopLPush(ctx, q.waitKey(), q.activeKey())
		if errors.Is(err, store.ErrNil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobRemoved) {
			// Body vanished between enqueue and claim; drop the orphan id.
			_, _ = q.st.LRem(ctx, q.activeKey(), 1, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		job.Attempts++
		job.ClaimedAt = q.nowMillis()
		job.State = StateActive
		if err := q.save(ctx, job, 0); err != nil {
			return nil, err
		}
		return job, nil
	}
}

func (q *Queue) release(ctx context.Context, job *Job) error {
	n, err := q.st.LRem(ctx, q.activeKey(), 1, job.ID)
	if err != nil {
		return fmt.Errorf("lrem active: %w", err)
	}
	if n == 0 {
		return ErrJobRemoved
	}
	return nil
}

// Complete marks a claimed job done.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	if err := q.release(ctx, job); err != nil {
		return err
	}
	job.FinishedAt = q.nowMillis()
	job.State = StateCompleted
	job.LastError = ""
	if err := q.save(ctx, job, q.opts.CompletedTTL); err != nil {
		return err
	}
	return q.st.ZAdd(ctx, q.completedKey(), millisScore(job.FinishedAt), job.ID)
}

// Fail records a failed attempt and either schedules a retry or moves the
// job to the failed set.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (FailOutcome, error) {
	out := FailOutcome{Attempt: job.Attempts}
	if err := q.release(ctx, job); err != nil {
		return out, err
	}
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Attempts < job.MaxAttempts {
		out.Retrying = true
		out.Delay = q.BackoffFor(job.Attempts)
		job.State = StateDelayed
		if err := q.save(ctx, job, 0); err != nil {
			return out, err
		}
		due := q.opts.Now().Add(out.Delay).UnixMilli()
		return out, q.st.ZAdd(ctx, q.delayedKey(), millisScore(due), job.ID)
	}
	out.Final = true
	job.FinishedAt = q.nowMillis()
	job.State = StateFailed
	if err := q.save(ctx, job, q.opts.FailedTTL); err != nil {
		return out, err
	}
	return out, q.st.ZAdd(ctx, q.failedKey(), millisScore(job.FinishedAt), job.ID)
}

// Release returns a claimed job to the wait list without counting the
// attempt. Used when a worker shuts down before running what it claimed.
func (q *Queue) Release(ctx context.Context, job *Job) error {
	if err := q.release(ctx, job); err != nil {
		return err
	}
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.ClaimedAt = 0
	job.State = StateWaiting
	if err := q.save(ctx, job, 0); err != nil {
		return err
	}
	_, err := q.st.LPush(ctx, q.waitKey(), job.ID)
	return err
}

// PromoteDue moves delayed jobs whose time has come back onto the wait list.
// ZRem decides ownership so concurrent promoters never double-enqueue.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := q.st.ZRangeByScore(ctx, q.delayedKey(), math.Inf(-1), millisScore(q.nowMillis()), 100)
	if err != nil {
		return 0, fmt.Errorf("scan delayed: %w", err)
	}
	moved := 0
	for _, id := range ids {
		n, err := q.st.ZRem(ctx, q.delayedKey(), id)
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if _, err := q.st.LPush(ctx, q.waitKey(), id); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Cleanup drops finished jobs older than their retention.
func (q *Queue) Cleanup(ctx context.Context, completedAge, failedAge time.Duration) (int, error) {
	removed := 0
	for _, set := range []struct {
		key string
		age time.Duration
	}{{q.completedKey(), completedAge}, {q.failedKey(), failedAge}} {
		if set.age <= 0 {
			continue
		}
		ids, err := q.st.ZRangeByScore(ctx, set.key, math.Inf(-1), q.cutoff(set.age), 0)
		if err != nil {
			return removed, fmt.Errorf("scan %s: %w", set.key, err)
		}
		if len(ids) == 0 {
			continue
		}
		if _, err := q.st.ZRem(ctx, set.key, ids...); err != nil {
			return removed, err
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = q.jobKey(id)
		}
		if _, err := q.st.Del(ctx, keys...); err != nil {
			return removed, err
		}
		removed += len(ids)
	}
	return removed, nil
}

// RecoverStalled returns active jobs claimed longer than stallAfter ago to the
// wait list, or to the failed set once their attempts are spent. Only safe
// when stallAfter exceeds the worker job timeout.
func (q *Queue) RecoverStalled(ctx context.Context, stallAfter time.Duration) (int, error) {
	ids, err := q.st.LRange(ctx, q.activeKey(), 0, -1)
	if err != nil {
		return 0, fmt.Errorf("scan active: %w", err)
	}
	limit := q.opts.Now().Add(-stallAfter).UnixMilli()
	recovered := 0
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobRemoved) {
			_, _ = q.st.LRem(ctx, q.activeKey(), 1, id)
			continue
		}
		if err != nil {
			q.log.Warn("Skipping unreadable active job", "job_id", id, "error", err)
			continue
		}
		if job.ClaimedAt > limit {
			continue
		}
		n, err := q.st.LRem(ctx, q.activeKey(), 1, id)
		if err != nil {
			return recovered, err
		}
		if n == 0 {
			continue
		}
		if job.Attempts >= job.MaxAttempts {
			job.LastError = "stalled: worker lost after final attempt"
			job.FinishedAt = q.nowMillis()
			job.State = StateFailed
			if err := q.save(ctx, job, q.opts.FailedTTL); err != nil {
				return recovered, err
			}
			if err := q.st.ZAdd(ctx, q.failedKey(), millisScore(job.FinishedAt), id); err != nil {
				return recovered, err
			}
			q.log.Warn("Stalled job exhausted its attempts", "job_id", id, "user_id", job.UserID, "attempts", job.Attempts)
			recovered++
			continue
		}
		job.State = StateWaiting
		if err := q.save(ctx, job, 0); err != nil {
			return recovered, err
		}
		if _, err := q.st.LPush(ctx, q.waitKey(), id); err != nil {
			return recovered, err
		}
		q.log.Warn("Recovered stalled job", "job_id", id, "user_id", job.UserID, "attempts", job.Attempts)
		recovered++
	}
	return recovered, nil
}

// RemoveByUser deletes every delayed, waiting or active job owned by userID.
// Returns the removed ids; active ones may still be running locally.
func (q *Queue) RemoveByUser(ctx context.Context, userID string) (removed []string, activeIDs []string, err error) {
	scan := func(ids []string, drop func(id string) (int64, error), active bool) error {
		for _, id := range ids {
			job, gerr := q.Get(ctx, id)
			if errors.Is(gerr, ErrJobRemoved) {
				continue
			}
			if gerr != nil {
				return gerr
			}
			if job.UserID != userID {
				continue
			}
			n, derr := drop(id)
			if derr != nil {
				return derr
			}
			if n == 0 {
				continue
			}
			if _, derr := q.st.Del(ctx, q.jobKey(id)); derr != nil {
				return derr
			}
			removed = append(removed, id)
			if active {
				activeIDs = append(activeIDs, id)
			}
		}
		return nil
	}

	type pass struct {
		list   func() ([]string, error)
		drop   func(id string) (int64, error)
		active bool
	}
	delayed := pass{
		list: func() ([]string, error) {
			return q.st.ZRangeByScore(ctx, q.delayedKey(), math.Inf(-1), math.Inf(1), 0)
		},
		drop: func(id string) (int64, error) { return q.st.ZRem(ctx, q.delayedKey(), id) },
	}
	waiting := pass{
		list: func() ([]string, error) { return q.st.LRange(ctx, q.waitKey(), 0, -1) },
		drop: func(id string) (int64, error) { return q.st.LRem(ctx, q.waitKey(), 0, id) },
	}
	active := pass{
		list:   func() ([]string, error) { return q.st.LRange(ctx, q.activeKey(), 0, -1) },
		drop:   func(id string) (int64, error) { return q.st.LRem(ctx, q.activeKey(), 0, id) },
		active: true,
	}
	// Jobs only move delayed -> waiting -> active -> delayed. Sweeping in that
	// order and finishing with a second delayed pass catches a job the
	// promoter or a failing attempt moves while the sweep runs.
	for _, p := range []pass{delayed, waiting, active, delayed} {
		ids, err := p.list()
		if err != nil {
			return removed, activeIDs, err
		}
		if err := scan(ids, p.drop, p.active); err != nil {
			return removed, activeIDs, err
		}
	}
	return removed, activeIDs, nil
}

func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Waiting, err = q.st.LLen(ctx, q.waitKey()); err != nil {
		return c, err
	}
	if c.Active, err = q.st.LLen(ctx, q.activeKey()); err != nil {
		return c, err
	}
	if c.Delayed, err = q.st.ZCard(ctx, q.delayedKey()); err != nil {
		return c, err
	}
	if c.Completed, err = q.st.ZCard(ctx, q.completedKey()); err != nil {
		return c, err
	}
	if c.Failed, err = q.st.ZCard(ctx, q.failedKey()); err != nil {
		return c, err
	}
	return c, nil
}

// List returns up to limit job bodies in the given state.
func (q *Queue) List(ctx context.Context, state State, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	var err error
	switch state {
	case StateWaiting:
		ids, err = q.st.LRange(ctx, q.waitKey(), 0, int64(limit-1))
	case StateActive:
		ids, err = q.st.LRange(ctx, q.activeKey(), 0, int64(limit-1))
	case StateDelayed:
		ids, err = q.st.ZRangeByScore(ctx, q.delayedKey(), math.Inf(-1), math.Inf(1), int64(limit))
	case StateCompleted:
		ids, err = q.st.ZRangeByScore(ctx, q.completedKey(), math.Inf(-1), math.Inf(1), int64(limit))
	case StateFailed:
		ids, err = q.st.ZRangeByScore(ctx, q.failedKey(), math.Inf(-1), math.Inf(1), int64(limit))
	default:
		return nil, fmt.Errorf("unknown state %q", state)
	}
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if errors.Is(err, ErrJobRemoved) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func ParseState(s string) (State, error) {
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", s)
}
