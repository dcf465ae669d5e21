package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type DeliveryLogRepo interface {
	Record(ctx context.Context, tx *gorm.DB, entry *types.DeliveryLog) error
	// RecentSuccess reports whether the source had a successful delivery inside
	// the dedupe window. Used as the fallback duplicate check when redis is
	// not configured.
	RecentSuccess(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, since time.Time) (bool, error)
}

type deliveryLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeliveryLogRepo(db *gorm.DB, baseLog *logger.Logger) DeliveryLogRepo {
	return &deliveryLogRepo{db: db, log: baseLog.With("repo", "DeliveryLogRepo")}
}

func (r *deliveryLogRepo) Record(ctx context.Context, tx *gorm.DB, entry *types.DeliveryLog) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(entry).Error
}

func (r *deliveryLogRepo) RecentSuccess(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, since time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.DeliveryLog{}).
		Where("source_id = ? AND success = ? AND created_at >= ?", sourceID, true, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
