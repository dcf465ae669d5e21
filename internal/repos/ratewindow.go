package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type RateWindowRepo interface {
	GetByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) (*types.RateWindow, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.RateWindow) error
}

type rateWindowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRateWindowRepo(db *gorm.DB, baseLog *logger.Logger) RateWindowRepo {
	return &rateWindowRepo{db: db, log: baseLog.With("repo", "RateWindowRepo")}
}

func (r *rateWindowRepo) GetByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) (*types.RateWindow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var row types.RateWindow
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ?", id.Channel, id.ExternalID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *rateWindowRepo) Save(ctx context.Context, tx *gorm.DB, row *types.RateWindow) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(row).Error
}
