package repos

import (
	"context"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

// UserEventRepo is the bounded per-user interaction log. Oldest events are
// evicted by the cap.
type UserEventRepo interface {
	Append(ctx context.Context, ev domain.UserEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.UserEvent, error)
}

type userEventRepo struct {
	list boundedList[domain.UserEvent]
}

func NewUserEventRepo(st store.Store, baseLog *logger.Logger, opts ListOptions) UserEventRepo {
	return &userEventRepo{list: boundedList[domain.UserEvent]{
		st:   st,
		log:  baseLog.With("repo", "UserEventRepo"),
		opts: normalizeListOptions(opts),
	}}
}

func (r *userEventRepo) Append(ctx context.Context, ev domain.UserEvent) error {
	return r.list.push(ctx, EventsKey, ev.UserID, ev)
}

func (r *userEventRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.UserEvent, error) {
	return r.list.read(ctx, EventsKey, userID, limit)
}
