package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/utils"
)

// SQLiteService backs local runs and tests. SQLITE_PATH of ":memory:" gives a
// throwaway store.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(log *logger.Logger) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")

	path := utils.GetEnv("SQLITE_PATH", "ohgrt.db", log)

	serviceLog.Info("Opening sqlite store...", "path", path)
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	// Serialized writes; gorm shares one underlying connection for :memory:.
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteService{db: gormDB, log: serviceLog}, nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	if err := autoMigrate(s.db); err != nil {
		s.log.Error("Auto migration failed for sqlite tables", "error", err)
		return err
	}
	return nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
