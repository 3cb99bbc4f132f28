package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := UserChannel("u1")

	clientA := hub.NewSSEClient("u1")
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventPartialUpdate, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCompleteUpdate, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventPartialUpdate {
		t.Fatalf("first event: want=%s got=%s", SSEEventPartialUpdate, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventCompleteUpdate {
		t.Fatalf("second event: want=%s got=%s", SSEEventCompleteUpdate, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: got=%d want=0", n)
	}

	clientB := hub.NewSSEClient("u1")
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCancelled})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventCancelled {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventCancelled, got.Event)
	}
}

func TestSSEHubIsolatesUsers(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	alice := hub.NewSSEClient("alice")
	bob := hub.NewSSEClient("bob")
	hub.AddChannel(alice, UserChannel("alice"))
	hub.AddChannel(bob, UserChannel("bob"))

	hub.Broadcast(SSEMessage{Channel: UserChannel("alice"), Event: SSEEventCompleteUpdate})

	recvMessage(t, alice.Outbound, time.Second)
	select {
	case msg := <-bob.Outbound:
		t.Fatalf("bob received alice's message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient("u1")
	hub.AddChannel(client, UserChannel("u1"))

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: UserChannel("u1"), Event: SSEEventPartialUpdate})
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("buffered: got=%d want=%d", got, cap(client.Outbound))
	}
}

func TestSSEServeHTTPStreamsEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient("u1")
	hub.AddChannel(client, UserChannel("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	hub.Broadcast(SSEMessage{Channel: UserChannel("u1"), Event: SSEEventCompleteUpdate, Data: map[string]any{"userId": "u1"}})
	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req, client)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: visualization-updates") || !strings.Contains(body, `"userId":"u1"`) {
		t.Fatalf("body: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
}
