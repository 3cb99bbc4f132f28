//go:build integration

package store

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

func startRedis(t *testing.T) *Redis {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	r, err := NewRedis(ctx, config.RedisConfig{Addr: host + ":" + port.Port()}, logger.Nop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisStorePrimitives(t *testing.T) {
	r := startRedis(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if _, err := r.LPush(ctx, "list", v); err != nil {
			t.Fatalf("LPush: %v", err)
		}
	}
	if err := r.LTrim(ctx, "list", 0, 1); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	got, err := r.LRange(ctx, "list", 0, -1)
	if err != nil || len(got) != 2 || got[0] != "c" {
		t.Fatalf("LRange: got=%v err=%v", got, err)
	}

	if _, err := r.Get(ctx, "nope"); !errors.Is(err, ErrNil) {
		t.Fatalf("Get missing: want ErrNil, got %v", err)
	}
	if err := r.Set(ctx, "s", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ttl, err := r.TTL(ctx, "s")
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("TTL: got=%s err=%v", ttl, err)
	}

	if _, err := r.RPopLPush(ctx, "empty", "dst"); !errors.Is(err, ErrNil) {
		t.Fatalf("RPopLPush empty: want ErrNil, got %v", err)
	}

	_ = r.ZAdd(ctx, "z", 2, "b")
	_ = r.ZAdd(ctx, "z", 1, "a")
	members, err := r.ZRangeByScore(ctx, "z", math.Inf(-1), math.Inf(1), 1)
	if err != nil || len(members) != 1 || members[0] != "a" {
		t.Fatalf("ZRangeByScore: got=%v err=%v", members, err)
	}
}

func TestRedisStorePubSub(t *testing.T) {
	r := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := r.Subscribe(ctx, "visualization-updates")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := r.Publish(ctx, "visualization-updates", `{"userId":"u1"}`); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case msg := <-sub.Messages():
		if msg.Payload != `{"userId":"u1"}` {
			t.Fatalf("payload: got=%s", msg.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for published message")
	}
}
