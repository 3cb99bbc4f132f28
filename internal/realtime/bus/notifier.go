package bus

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/observability"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

// Notifier publishes pipeline notifications. Delivery is fire-and-forget:
// nobody listening is not an error.
type Notifier interface {
	PublishPartial(ctx context.Context, rec domain.VisualizationRecord) error
	PublishComplete(ctx context.Context, rec domain.VisualizationRecord) error
	PublishPartialError(ctx context.Context, n domain.PartialErrorNotice) error
	PublishCancellation(ctx context.Context, n domain.CancellationNotice) error
}

type storeNotifier struct {
	st      store.Store
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewNotifier(st store.Store, baseLog *logger.Logger, metrics *observability.Metrics) Notifier {
	return &storeNotifier{
		st:      st,
		log:     baseLog.With("service", "Notifier"),
		metrics: metrics,
	}
}

func (n *storeNotifier) publish(ctx context.Context, channel string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s notice: %w", channel, err)
	}
	err = n.st.Publish(ctx, channel, string(raw))
	n.metrics.IncNotification(channel, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (n *storeNotifier) PublishPartial(ctx context.Context, rec domain.VisualizationRecord) error {
	return n.publish(ctx, domain.ChannelPartialUpdate, domain.VisualizationNotice{
		UserID:            rec.UserID,
		VisualizationData: rec,
		Timestamp:         domain.NowMillis(),
	})
}

func (n *storeNotifier) PublishComplete(ctx context.Context, rec domain.VisualizationRecord) error {
	return n.publish(ctx, domain.ChannelCompleteUpdate, domain.VisualizationNotice{
		UserID:            rec.UserID,
		VisualizationData: rec,
		Timestamp:         domain.NowMillis(),
	})
}

func (n *storeNotifier) PublishPartialError(ctx context.Context, notice domain.PartialErrorNotice) error {
	if notice.Timestamp == 0 {
		notice.Timestamp = domain.NowMillis()
	}
	return n.publish(ctx, domain.ChannelPartialError, notice)
}

func (n *storeNotifier) PublishCancellation(ctx context.Context, notice domain.CancellationNotice) error {
	if notice.Timestamp == 0 {
		notice.Timestamp = domain.NowMillis()
	}
	return n.publish(ctx, domain.ChannelCancellation, notice)
}
