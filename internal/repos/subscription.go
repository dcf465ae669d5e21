package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ohgrt/ohgrt-backend/internal/logger"
	"github.com/ohgrt/ohgrt-backend/internal/types"
)

type SubscriptionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sub *types.Subscription) error
	Update(ctx context.Context, tx *gorm.DB, sub *types.Subscription) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Subscription, error)
	GetByIdentityAndKind(ctx context.Context, tx *gorm.DB, id types.Identity, kind string) (*types.Subscription, error)
	ListByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) ([]*types.Subscription, error)
	ListDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*types.Subscription, error)
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.SubscriptionStatus) error
	// Claim flips the claimed flag on an unclaimed row; it reports false when
	// the row was already claimed so a subscription is never delivered to
	// concurrently with itself.
	Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error)
	FinishSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID, nextDueAt time.Time) error
	FinishFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, degraded bool) error
}

type subscriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	return &subscriptionRepo{db: db, log: baseLog.With("repo", "SubscriptionRepo")}
}

func (r *subscriptionRepo) Create(ctx context.Context, tx *gorm.DB, sub *types.Subscription) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepo) Update(ctx context.Context, tx *gorm.DB, sub *types.Subscription) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Save(sub).Error
}

func (r *subscriptionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Subscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var sub types.Subscription
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepo) GetByIdentityAndKind(ctx context.Context, tx *gorm.DB, id types.Identity, kind string) (*types.Subscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var sub types.Subscription
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ? AND kind = ? AND status <> ?",
			id.Channel, id.ExternalID, kind, types.SubscriptionCancelled).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepo) ListByIdentity(ctx context.Context, tx *gorm.DB, id types.Identity) ([]*types.Subscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var subs []*types.Subscription
	err := transaction.WithContext(ctx).
		Where("channel = ? AND external_id = ?", id.Channel, id.ExternalID).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*types.Subscription, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var subs []*types.Subscription
	q := transaction.WithContext(ctx).
		Where("status = ? AND next_due_at <= ?", types.SubscriptionActive, now).
		Order("next_due_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.SubscriptionStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *subscriptionRepo) Claim(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	// Stale claims are reclaimable after ten minutes so a crashed tick does
	// not strand the row.
	staleBefore := now.Add(-10 * time.Minute)
	res := transaction.WithContext(ctx).
		Model(&types.Subscription{}).
		Where("id = ? AND status = ? AND (claimed = ? OR claimed_at < ?)",
			id, types.SubscriptionActive, false, staleBefore).
		Updates(map[string]interface{}{"claimed": true, "claimed_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *subscriptionRepo) FinishSuccess(ctx context.Context, tx *gorm.DB, id uuid.UUID, nextDueAt time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_due_at": nextDueAt,
			"attempts":    0,
			"degraded":    false,
			"claimed":     false,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *subscriptionRepo) FinishFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, degraded bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"degraded":   degraded,
			"claimed":    false,
			"updated_at": time.Now().UTC(),
		}).Error
}
