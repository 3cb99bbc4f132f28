package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

const (
	QueriesKeyPrefix       = "user:queries:"
	ResultsKeyPrefix       = "user:results:"
	VisualizationKeyPrefix = "user:visualization:"
	PartialKeyPrefix       = "user:visualization:partial:"
	EventsKeyPrefix        = "user:events:"
)

func QueriesKey(userID string) string       { return QueriesKeyPrefix + userID }
func ResultsKey(userID string) string       { return ResultsKeyPrefix + userID }
func VisualizationKey(userID string) string { return VisualizationKeyPrefix + userID }
func EventsKey(userID string) string        { return EventsKeyPrefix + userID }
func PartialKey(userID string, step int) string {
	return fmt.Sprintf("%s%s:%d", PartialKeyPrefix, userID, step)
}

// userKey applies keyFn to a checked user id. Ids containing ':' are refused
// so one user's key can never equal another's ("partial:bob:1" against bob's
// step-1 partial).
func userKey(keyFn func(string) string, userID string) (string, error) {
	if err := domain.CheckUserID(userID); err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}
	return keyFn(userID), nil
}

// ListOptions bounds a per-user list.
type ListOptions struct {
	Cap int
	TTL time.Duration
}

// boundedList is a newest-first JSON list capped on every write. Push, trim
// and expire run as three separate commands; a crash in between can leave one
// extra element or a stale TTL until the next write.
type boundedList[T any] struct {
	st   store.Store
	log  *logger.Logger
	opts ListOptions
}

func (b boundedList[T]) push(ctx context.Context, keyFn func(string) string, userID string, v T) error {
	key, err := userKey(keyFn, userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := b.st.LPush(ctx, key, string(raw)); err != nil {
		return pkgerrors.Unavailable("lpush "+key, err)
	}
	if err := b.st.LTrim(ctx, key, 0, int64(b.opts.Cap-1)); err != nil {
		return pkgerrors.Unavailable("ltrim "+key, err)
	}
	if err := b.st.Expire(ctx, key, b.opts.TTL); err != nil {
		return pkgerrors.Unavailable("expire "+key, err)
	}
	return nil
}

// read returns up to limit entries, newest first. limit <= 0 reads the whole cap.
func (b boundedList[T]) read(ctx context.Context, keyFn func(string) string, userID string, limit int) ([]T, error) {
	key, err := userKey(keyFn, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > b.opts.Cap {
		limit = b.opts.Cap
	}
	raws, err := b.st.LRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, pkgerrors.Unavailable("lrange "+key, err)
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			b.log.Warn("Skipping malformed list entry", "key", key, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizeListOptions(opts ListOptions) ListOptions {
	if opts.Cap <= 0 {
		opts.Cap = 20
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return opts
}
