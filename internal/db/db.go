package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
	"github.com/ohgrt/ohgrt-backend/internal/utils"
)

// Service is implemented by both the postgres and the sqlite store. Which one
// runs is decided by configuration at construction time, not by branches in
// caller code.
type Service interface {
	DB() *gorm.DB
	AutoMigrateAll() error
}

// NewFromEnv selects the store driver from STORE_DRIVER (postgres|sqlite).
func NewFromEnv(log *logger.Logger) (Service, error) {
	driver := strings.ToLower(utils.GetEnv("STORE_DRIVER", "postgres", log))
	switch driver {
	case "postgres":
		return NewPostgresService(log)
	case "sqlite", "lite":
		return NewSQLiteService(log)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.UserProfile{},
		&types.ConversationContext{},
		&types.Subscription{},
		&types.ScheduledTask{},
		&types.RateWindow{},
		&types.DeliveryLog{},
	)
}
