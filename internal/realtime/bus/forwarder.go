package bus

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/realtime"
	"github.com/yungbote/vizflow-backend/internal/store"
)

// Forwarder relays notification channels into the local hub, routed by the
// payload's userId. One forwarder per process; it implements suture.Service.
type Forwarder struct {
	st  store.Store
	hub *realtime.SSEHub
	log *logger.Logger
}

func NewForwarder(st store.Store, hub *realtime.SSEHub, baseLog *logger.Logger) *Forwarder {
	return &Forwarder{
		st:  st,
		hub: hub,
		log: baseLog.With("service", "RealtimeForwarder"),
	}
}

func (f *Forwarder) String() string { return "realtime-forwarder" }

func (f *Forwarder) Serve(ctx context.Context) error {
	sub, err := f.st.Subscribe(ctx, domain.NotificationChannels...)
	if err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	defer sub.Close()
	f.log.Info("Forwarding notifications", "channels", domain.NotificationChannels)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("notification subscription closed")
			}
			f.forward(m)
		}
	}
}

type userEnvelope struct {
	UserID string `json:"userId"`
}

func (f *Forwarder) forward(m store.Message) {
	var env userEnvelope
	if err := json.Unmarshal([]byte(m.Payload), &env); err != nil || env.UserID == "" {
		f.log.Warn("Dropping notification without userId", "channel", m.Channel, "error", err)
		return
	}
	f.hub.Broadcast(realtime.SSEMessage{
		Channel: realtime.UserChannel(env.UserID),
		Event:   realtime.SSEEvent(m.Channel),
		Data:    json.RawMessage(m.Payload),
	})
}
