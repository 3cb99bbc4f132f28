package repos

import (
	"context"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type QueryRepo interface {
	Append(ctx context.Context, q domain.GeneratedQuery) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.GeneratedQuery, error)
}

type queryRepo struct {
	list boundedList[domain.GeneratedQuery]
}

func NewQueryRepo(st store.Store, baseLog *logger.Logger, opts ListOptions) QueryRepo {
	return &queryRepo{list: boundedList[domain.GeneratedQuery]{
		st:   st,
		log:  baseLog.With("repo", "QueryRepo"),
		opts: normalizeListOptions(opts),
	}}
}

func (r *queryRepo) Append(ctx context.Context, q domain.GeneratedQuery) error {
	return r.list.push(ctx, QueriesKey, q.UserID, q)
}

func (r *queryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.GeneratedQuery, error) {
	return r.list.read(ctx, QueriesKey, userID, limit)
}
