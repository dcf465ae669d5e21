package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type ContextRepo interface {
	// GetLive returns unexpired contexts for an identity; readers never see
	// rows past their expires_at even before the sweeper deletes them.
	GetLive(ctx context.Context, tx *gorm.DB, id types.Identity, now time.Time) ([]*types.ConversationContext, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.ConversationContext) error
	Delete(ctx context.Context, tx *gorm.DB, id types.Identity, contextType string) error
	DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type contextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContextRepo(db *gorm.DB, baseLog *logger.Logger) ContextRepo {
	return &contextRepo{db: db, log: baseLog.With("repo", "ContextRepo")}
}

func (r *contextRepo) GetLive(ctx context.Context, tx *gorm.DB, id types.Identity, now time.Time) ([]*types.ConversationContext, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []*types.ConversationContext
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ? AND expires_at > ?", id.Channel, id.ExternalID, now).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *contextRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.ConversationContext) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "external_id"}, {Name: "context_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at", "expires_at"}),
		}).
		Create(row).Error
}

func (r *contextRepo) Delete(ctx context.Context, tx *gorm.DB, id types.Identity, contextType string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ? AND context_type = ?", id.Channel, id.ExternalID, contextType).
		Delete(&types.ConversationContext{}).Error
}

func (r *contextRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&types.ConversationContext{})
	return res.RowsAffected, res.Error
}
