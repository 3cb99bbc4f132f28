package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type Redis struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedis dials and pings the configured Redis. URL wins over Addr.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	dialTimeout := cfg.DialTimeout.Duration
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	var opts *goredis.Options
	if u := strings.TrimSpace(cfg.URL); u != "" {
		parsed, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		addr := strings.TrimSpace(cfg.Addr)
		if addr == "" {
			return nil, fmt.Errorf("missing REDIS_ADDR")
		}
		opts = &goredis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	opts.DialTimeout = dialTimeout

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		log: log.With("component", "RedisStore"),
		rdb: rdb,
	}, nil
}

// NewRedisFromClient wraps an existing client without pinging it.
func NewRedisFromClient(rdb *goredis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{log: log.With("component", "RedisStore"), rdb: rdb}
}

func mapNil(err error) error {
	if errors.Is(err, goredis.Nil) {
		return ErrNil
	}
	return err
}

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	return v, mapNil(err)
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.rdb.Del(ctx, keys...).Result()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	switch d {
	case -2:
		return 0, ErrNil
	case -1:
		return -1, nil
	}
	return d, nil
}

func toArgs(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (r *Redis) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	return r.rdb.LPush(ctx, key, toArgs(values)...).Result()
}

func (r *Redis) LTrim(ctx context.Context, key string, start, stop int64) error {
	return r.rdb.LTrim(ctx, key, start, stop).Err()
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.rdb.LRange(ctx, key, start, stop).Result()
}

func (r *Redis) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return r.rdb.LRem(ctx, key, count, value).Result()
}

func (r *Redis) LLen(ctx context.Context, key string) (int64, error) {
	return r.rdb.LLen(ctx, key).Result()
}

func (r *Redis) RPopLPush(ctx context.Context, src, dst string) (string, error) {
	v, err := r.rdb.RPopLPush(ctx, src, dst).Result()
	return v, mapNil(err)
}

func (r *Redis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (r *Redis) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return r.rdb.ZRem(ctx, key, toArgs(members)...).Result()
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (r *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error) {
	by := &goredis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}
	if limit > 0 {
		by.Count = limit
	}
	return r.rdb.ZRangeByScore(ctx, key, by).Result()
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return r.rdb.ZCard(ctx, key).Result()
}

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one channel required")
	}
	ps := r.rdb.Subscribe(ctx, channels...)

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan Message, 64), done: make(chan struct{})}
	go sub.pump(ctx)
	return sub, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

type redisSubscription struct {
	ps   *goredis.PubSub
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.ps.Close()
			return
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			select {
			case s.out <- Message{Channel: m.Channel, Payload: m.Payload}:
			default:
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
