package repos

import (
	"context"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

type ResultRepo interface {
	Append(ctx context.Context, r domain.QueryExecutionResult) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.QueryExecutionResult, error)
}

type resultRepo struct {
	list boundedList[domain.QueryExecutionResult]
}

func NewResultRepo(st store.Store, baseLog *logger.Logger, opts ListOptions) ResultRepo {
	return &resultRepo{list: boundedList[domain.QueryExecutionResult]{
		st:   st,
		log:  baseLog.With("repo", "ResultRepo"),
		opts: normalizeListOptions(opts),
	}}
}

func (r *resultRepo) Append(ctx context.Context, res domain.QueryExecutionResult) error {
	return r.list.push(ctx, ResultsKey, res.UserID, res)
}

func (r *resultRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.QueryExecutionResult, error) {
	return r.list.read(ctx, ResultsKey, userID, limit)
}
