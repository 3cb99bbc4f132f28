package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

type FailedJobFilter struct {
	Stage  string
	UserID string
	Since  time.Time
	Limit  int
}

type FailedJobRepo interface {
	// Record upserts by job id so a re-failed job keeps one row.
	Record(ctx context.Context, tx *gorm.DB, job *domain.FailedJob) error
	List(ctx context.Context, tx *gorm.DB, f FailedJobFilter) ([]*domain.FailedJob, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type failedJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFailedJobRepo(db *gorm.DB, baseLog *logger.Logger) FailedJobRepo {
	return &failedJobRepo{
		db:  db,
		log: baseLog.With("repo", "FailedJobRepo"),
	}
}

func (r *failedJobRepo) Record(ctx context.Context, tx *gorm.DB, job *domain.FailedJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil
	}
	if job.FailedAt.IsZero() {
		job.FailedAt = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"attempts", "error", "payload", "failed_at", "updated_at"}),
		}).
		Create(job).Error
}

func (r *failedJobRepo) List(ctx context.Context, tx *gorm.DB, f FailedJobFilter) ([]*domain.FailedJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := transaction.WithContext(ctx).Model(&domain.FailedJob{})
	if f.Stage != "" {
		q = q.Where("stage = ?", f.Stage)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if !f.Since.IsZero() {
		q = q.Where("failed_at >= ?", f.Since)
	}
	var out []*domain.FailedJob
	if err := q.Order("failed_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *failedJobRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).Where("failed_at < ?", cutoff).Delete(&domain.FailedJob{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info("Pruned failed job rows", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
