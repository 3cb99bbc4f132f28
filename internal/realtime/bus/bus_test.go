package bus

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime"
	"github.com/yungbote/vizflow-backend/internal/store"
)

func TestNotifierPayloadShape(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := store.NewMemory()
	sub, err := st.Subscribe(ctx, domain.ChannelCompleteUpdate)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	n := NewNotifier(st, logger.Nop(), nil)
	rec := domain.VisualizationRecord{UserID: "u1", Query: "AAPL revenue"}
	if err := n.PublishComplete(ctx, rec); err != nil {
		t.Fatalf("PublishComplete: %v", err)
	}

	select {
	case m := <-sub.Messages():
		var got map[string]any
		if err := json.Unmarshal([]byte(m.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got["userId"] != "u1" {
			t.Fatalf("userId: got=%v", got["userId"])
		}
		data, ok := got["visualizationData"].(map[string]any)
		if !ok || data["query"] != "AAPL revenue" {
			t.Fatalf("visualizationData: got=%v", got["visualizationData"])
		}
		if _, ok := got["timestamp"].(float64); !ok {
			t.Fatalf("timestamp missing: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no notification")
	}
}

func TestForwarderRoutesByUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := store.NewMemory()
	hub := realtime.NewSSEHub(logger.Nop())
	client := hub.NewSSEClient("u1")
	hub.AddChannel(client, realtime.UserChannel("u1"))

	fwd := NewForwarder(st, hub, logger.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- fwd.Serve(ctx) }()

	n := NewNotifier(st, logger.Nop(), nil)
	deadline := time.After(2 * time.Second)
	for {
		_ = n.PublishCancellation(ctx, domain.CancellationNotice{UserID: "u2", CancelCount: 1})
		_ = n.PublishCancellation(ctx, domain.CancellationNotice{UserID: "u1", CancelCount: 2})
		select {
		case msg := <-client.Outbound:
			if msg.Event != realtime.SSEEventCancelled {
				t.Fatalf("event: got=%s", msg.Event)
			}
			raw, _ := json.Marshal(msg.Data)
			var notice domain.CancellationNotice
			_ = json.Unmarshal(raw, &notice)
			if notice.UserID != "u1" || notice.CancelCount != 2 {
				t.Fatalf("notice: %+v", notice)
			}
			cancel()
			<-errCh
			return
		case <-deadline:
			t.Fatalf("no forwarded message")
		case <-time.After(20 * time.Millisecond):
			// forwarder may not have subscribed yet
		}
	}
}
