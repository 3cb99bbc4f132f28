package repos

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

func newLedger(t *testing.T) FailedJobRepo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.FailedJob{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewFailedJobRepo(db, logger.Nop())
}

func TestFailedJobRecordUpsertsByJobID(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	first := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := ledger.Record(ctx, nil, &domain.FailedJob{
		JobID: "j1", Stage: "visualization", UserID: "u1", Attempts: 3,
		Error: "render failed", Payload: datatypes.JSON(`{"isPartial":true}`), FailedAt: first,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := ledger.Record(ctx, nil, &domain.FailedJob{
		JobID: "j1", Stage: "visualization", UserID: "u1", Attempts: 3,
		Error: "stalled", FailedAt: first.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	_ = ledger.Record(ctx, nil, &domain.FailedJob{JobID: "j2", Stage: "query-execution", UserID: "u2", Attempts: 3, FailedAt: first})

	rows, err := ledger.List(ctx, nil, FailedJobFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got=%d want=2", len(rows))
	}
	if rows[0].JobID != "j1" || rows[0].Error != "stalled" {
		t.Fatalf("newest row: got=%+v", rows[0])
	}

	byStage, _ := ledger.List(ctx, nil, FailedJobFilter{Stage: "query-execution"})
	if len(byStage) != 1 || byStage[0].UserID != "u2" {
		t.Fatalf("stage filter: %+v", byStage)
	}
	byUser, _ := ledger.List(ctx, nil, FailedJobFilter{UserID: "u1", Since: first.Add(30 * time.Second)})
	if len(byUser) != 1 {
		t.Fatalf("user+since filter: got=%d want=1", len(byUser))
	}
}

func TestFailedJobDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Now().UTC()
	_ = ledger.Record(ctx, nil, &domain.FailedJob{JobID: "old", Stage: "visualization", UserID: "u1", FailedAt: now.Add(-48 * time.Hour)})
	_ = ledger.Record(ctx, nil, &domain.FailedJob{JobID: "new", Stage: "visualization", UserID: "u1", FailedAt: now})

	n, err := ledger.DeleteOlderThan(ctx, nil, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan: n=%d err=%v", n, err)
	}
	rows, _ := ledger.List(ctx, nil, FailedJobFilter{})
	if len(rows) != 1 || rows[0].JobID != "new" {
		t.Fatalf("remaining: %+v", rows)
	}
}
