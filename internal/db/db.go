package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/vizflow-backend/internal/config"
	"github.com/yungbote/vizflow-backend/internal/domain"
	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// Service owns the relational failure ledger. It is optional: a blank driver
// yields a nil Service and the pipeline keeps failures only in Redis.
type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Service, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		return nil, nil
	}
	serviceLog := log.With("service", "DatabaseService", "driver", driver)

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	serviceLog.Info("Connecting to database...")
	gdb, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		serviceLog.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return &Service{db: gdb, log: serviceLog}, nil
}

// NewFromGorm wraps an already-open handle; tests use it with in-memory sqlite.
func NewFromGorm(gdb *gorm.DB, log *logger.Logger) *Service {
	return &Service{db: gdb, log: log.With("service", "DatabaseService")}
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := s.db.AutoMigrate(&domain.FailedJob{}); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	return nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
