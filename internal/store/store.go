package store

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned when a key or list element does not exist.
var ErrNil = errors.New("store: nil")

// Store is the set of primitives the pipeline needs from its key/list/pub-sub
// backend. Every method is a single atomic operation; callers compose them
// sequentially and accept best-effort consistency across keys.
type Store interface {
	Ping(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	LLen(ctx context.Context, key string) (int64, error)
	// RPopLPush moves the tail of src to the head of dst and returns it.
	RPopLPush(ctx context.Context, src, dst string) (string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	// ZRangeByScore returns members with min <= score <= max, lowest first.
	// limit <= 0 means no limit.
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)

	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	Close() error
}

type Message struct {
	Channel string
	Payload string
}

// Subscription delivers published messages until closed. Delivery is
// at-most-once: a slow reader may miss messages.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}
