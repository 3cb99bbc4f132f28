package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/vizflow-backend/internal/domain"
	pkgerrors "github.com/yungbote/vizflow-backend/internal/pkg/errors"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
	"github.com/yungbote/vizflow-backend/internal/store"
)

// VisualizationRepo stores complete records in a bounded history list and
// partial records as single keys that are overwritten and expire quickly.
type VisualizationRepo interface {
	AppendComplete(ctx context.Context, rec domain.VisualizationRecord) error
	PutPartial(ctx context.Context, rec domain.VisualizationRecord) error
	// Save picks the discipline from rec.IsPartial.
	Save(ctx context.Context, rec domain.VisualizationRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.VisualizationRecord, error)
	// GetPartial returns pkg/errors.ErrNotFound when the step is absent or expired.
	GetPartial(ctx context.Context, userID string, step int) (*domain.VisualizationRecord, error)
}

type visualizationRepo struct {
	st         store.Store
	log        *logger.Logger
	list       boundedList[domain.VisualizationRecord]
	partialTTL time.Duration
}

func NewVisualizationRepo(st store.Store, baseLog *logger.Logger, opts ListOptions, partialTTL time.Duration) VisualizationRepo {
	if partialTTL <= 0 {
		partialTTL = 5 * time.Minute
	}
	repoLog := baseLog.With("repo", "VisualizationRepo")
	return &visualizationRepo{
		st:  st,
		log: repoLog,
		list: boundedList[domain.VisualizationRecord]{
			st:   st,
			log:  repoLog,
			opts: normalizeListOptions(opts),
		},
		partialTTL: partialTTL,
	}
}

func (r *visualizationRepo) AppendComplete(ctx context.Context, rec domain.VisualizationRecord) error {
	rec.IsPartial = false
	rec.StepNumber = 0
	return r.list.push(ctx, VisualizationKey, rec.UserID, rec)
}

func (r *visualizationRepo) PutPartial(ctx context.Context, rec domain.VisualizationRecord) error {
	rec.IsPartial = true
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode partial: %w", err)
	}
	key, err := partialKey(rec.UserID, rec.StepNumber)
	if err != nil {
		return err
	}
	if err := r.st.Set(ctx, key, string(raw), r.partialTTL); err != nil {
		return pkgerrors.Unavailable("set "+key, err)
	}
	return nil
}

func (r *visualizationRepo) Save(ctx context.Context, rec domain.VisualizationRecord) error {
	if rec.IsPartial {
		return r.PutPartial(ctx, rec)
	}
	return r.AppendComplete(ctx, rec)
}

func (r *visualizationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.VisualizationRecord, error) {
	return r.list.read(ctx, VisualizationKey, userID, limit)
}

func (r *visualizationRepo) GetPartial(ctx context.Context, userID string, step int) (*domain.VisualizationRecord, error) {
	key, err := partialKey(userID, step)
	if err != nil {
		return nil, err
	}
	raw, err := r.st.Get(ctx, key)
	if errors.Is(err, store.ErrNil) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Unavailable("get "+key, err)
	}
	var rec domain.VisualizationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

func partialKey(userID string, step int) (string, error) {
	return userKey(func(uid string) string { return PartialKey(uid, step) }, userID)
}
